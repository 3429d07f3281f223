// File: native/status.go
// Author: momentics <momentics@gmail.com>
//
// Errno-style status codes for native primitives. Negative values
// follow the Linux errno numbering so the loop can surface poller
// failures unchanged.

package native

import "github.com/momentics/hioload-loop/api"

const (
	StatusOK       api.Status = 0
	StatusEPERM    api.Status = -1
	StatusENOENT   api.Status = -2
	StatusEINTR    api.Status = -4
	StatusEIO      api.Status = -5
	StatusEBADF    api.Status = -9
	StatusEAGAIN   api.Status = -11
	StatusENOMEM   api.Status = -12
	StatusEBUSY    api.Status = -16
	StatusEEXIST   api.Status = -17
	StatusEINVAL   api.Status = -22
	StatusENOSYS   api.Status = -38
	StatusEALREADY api.Status = -114
)

var statusNames = map[api.Status]string{
	StatusEPERM:    "EPERM",
	StatusENOENT:   "ENOENT",
	StatusEINTR:    "EINTR",
	StatusEIO:      "EIO",
	StatusEBADF:    "EBADF",
	StatusEAGAIN:   "EAGAIN",
	StatusENOMEM:   "ENOMEM",
	StatusEBUSY:    "EBUSY",
	StatusEEXIST:   "EEXIST",
	StatusEINVAL:   "EINVAL",
	StatusENOSYS:   "ENOSYS",
	StatusEALREADY: "EALREADY",
}

var statusMessages = map[api.Status]string{
	StatusEPERM:    "operation not permitted",
	StatusENOENT:   "no such file or directory",
	StatusEINTR:    "interrupted system call",
	StatusEIO:      "i/o error",
	StatusEBADF:    "bad file descriptor",
	StatusEAGAIN:   "resource temporarily unavailable",
	StatusENOMEM:   "not enough memory",
	StatusEBUSY:    "resource busy or locked",
	StatusEEXIST:   "file already exists",
	StatusEINVAL:   "invalid argument",
	StatusENOSYS:   "function not implemented",
	StatusEALREADY: "operation already in progress",
}

// ErrName maps a status to its errno name.
func ErrName(s api.Status) string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	if s >= 0 {
		return "OK"
	}
	return "EUNKNOWN"
}

// StrError maps a status to a human-readable message.
func StrError(s api.Status) string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	if s >= 0 {
		return "success"
	}
	return "unknown error"
}
