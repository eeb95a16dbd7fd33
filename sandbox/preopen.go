package sandbox

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/descriptor"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
)

// AddPreopen opens hostPath as a directory and installs it as a
// preopened root reachable by the guest at guestPath, granting base
// and inheriting as the starting rights for the subtree. The guest
// observes the new descriptor, and guestPath (never hostPath), via
// fd_prestat_get/fd_prestat_dir_name; it is never closeable via
// fd_close.
func (c *Context) AddPreopen(guestPath, hostPath string, base, inheriting rights.Rights) (uint32, errs.Errno) {
	f, err := os.OpenFile(hostPath, os.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return 0, errs.FromOSError(err)
	}

	e := descriptor.Entry{
		FileType:         abi.FileTypeDirectory,
		Descriptor:       descriptor.Descriptor{Kind: descriptor.KindFile, File: f},
		RightsBase:       base,
		RightsInheriting: inheriting,
		PreopenPath:      guestPath,
	}
	h, errno := c.Table.Insert(e)
	if errno != errs.Success {
		_ = f.Close()
		return 0, errno
	}
	return h, errs.Success
}
