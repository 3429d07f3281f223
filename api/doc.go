// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api defines the public capability surface of hioload-loop:
// the Watcher contract exposed to schedulers, the Backend primitive set
// implemented by native event loops, event masks, status codes and the
// error taxonomy shared by all watcher kinds.
package api
