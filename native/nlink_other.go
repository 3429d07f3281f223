//go:build !linux && !darwin

// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package native

import "os"

func nlinkIno(os.FileInfo) (uint64, uint64) { return 1, 0 }
