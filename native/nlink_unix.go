//go:build linux || darwin

// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package native

import (
	"os"
	"syscall"
)

func nlinkIno(fi os.FileInfo) (uint64, uint64) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Nlink), st.Ino
	}
	return 1, 0
}
