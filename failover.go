package tiercache

import (
	"context"
	"errors"
	"strings"
	"syscall"
)

// isPermanentStoreError reports whether an error returned by the Store
// collaborator looks like a permanent/media-level condition rather than a
// transient one. ResilienceStrategy treats every StoreAccessError the same
// way when deciding recovery, but uses this distinction to pick a log level
// when it swallows a best-effort store.remove/store.clear failure during
// invalidation.
func isPermanentStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	permanent := []syscall.Errno{
		syscall.EIO,    // generic I/O error
		syscall.ENODEV, // no such device
		syscall.EROFS,  // filesystem turned read-only
		syscall.ENOSPC, // no space left on device
	}
	for _, code := range permanent {
		if errors.Is(err, code) {
			return true
		}
	}

	s := err.Error()
	return strings.Contains(s, "read-only file system") || strings.Contains(s, "readonly file system")
}
