package sandbox

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/descriptor"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/pathresolve"
	"github.com/marmistrz/wasi-common/rights"
)

// resolveFor is the shared entry point every path-taking operation
// uses: checks the base descriptor's own rights, then runs the
// resolver confined to its subtree.
func (c *Context) resolveFor(dirfd uint32, needed rights.Rights, path string, followTerminal bool, willCreate pathresolve.WillCreate) (descriptor.Entry, pathresolve.Result, errs.Errno) {
	e, errno := c.Table.Get(dirfd, needed, 0)
	if errno != errs.Success {
		return descriptor.Entry{}, pathresolve.Result{}, errno
	}
	if e.FileType != abi.FileTypeDirectory {
		return descriptor.Entry{}, pathresolve.Result{}, errs.NotDir
	}
	res, errno := pathresolve.Resolve(e.Descriptor.Fd(), path, followTerminal, willCreate)
	if errno != errs.Success {
		return descriptor.Entry{}, pathresolve.Result{}, errno
	}
	return e, res, errs.Success
}

// PathOpen implements path_open.
func (c *Context) PathOpen(dirfd uint32, dirflags abi.LookupFlags, path string, oflags abi.OpenFlags, fsRightsBase, fsRightsInheriting rights.Rights, fdflags abi.FDFlags) (uint32, errs.Errno) {
	creat := oflags&abi.OpenCreat != 0
	trunc := oflags&abi.OpenTrunc != 0
	needed := rights.FromOpenFlags(creat, trunc)
	if !needed.Subset(fsRightsBase) {
		return 0, errs.NotCapable
	}

	dirNeeded := rights.PathOpen
	willCreate := pathresolve.WillCreate(creat)
	followTerminal := dirflags&abi.LookupSymlinkFollow != 0

	dirEntry, res, errno := c.resolveFor(dirfd, dirNeeded, path, followTerminal, willCreate)
	if errno != errs.Success {
		return 0, errno
	}
	defer res.Close()

	osFlags := unix.O_RDWR
	if creat {
		osFlags |= unix.O_CREAT
	}
	if oflags&abi.OpenExcl != 0 {
		osFlags |= unix.O_EXCL
	}
	if trunc {
		osFlags |= unix.O_TRUNC
	}
	if oflags&abi.OpenDirectory != 0 {
		// Directories are opened read-only; the kernel refuses
		// write access to them with EISDIR.
		osFlags &^= unix.O_RDWR
		osFlags |= unix.O_DIRECTORY
	}
	if !followTerminal || bool(willCreate) {
		osFlags |= unix.O_NOFOLLOW
	}
	if fdflags&abi.FDFlagAppend != 0 {
		osFlags |= unix.O_APPEND
	}
	if fdflags&abi.FDFlagNonblock != 0 {
		osFlags |= unix.O_NONBLOCK
	}
	if fdflags&abi.FDFlagSync != 0 {
		osFlags |= unix.O_SYNC
	}
	if fdflags&abi.FDFlagDsync != 0 {
		osFlags |= unix.O_DSYNC
	}

	fd, err := unix.Openat(res.DirFd, res.Component, osFlags, 0o644)
	if err != nil {
		return 0, errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	f := os.NewFile(uintptr(fd), path)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = f.Close()
		return 0, errs.FromOSError(err)
	}
	ft := fileTypeFromMode(st.Mode)

	base := fsRightsBase.Intersect(dirEntry.RightsInheriting)
	inheriting := fsRightsInheriting.Intersect(dirEntry.RightsInheriting)
	inheriting |= rights.FromFdFlags(fdflags&abi.FDFlagDsync != 0, fdflags&abi.FDFlagSync != 0)

	h, errno := c.Table.Insert(descriptor.Entry{
		FileType:         ft,
		Descriptor:       descriptor.Descriptor{Kind: descriptor.KindFile, File: f},
		RightsBase:       base,
		RightsInheriting: inheriting,
	})
	if errno != errs.Success {
		_ = f.Close()
		return 0, errno
	}
	return h, errs.Success
}

// PathCreateDirectory implements path_create_directory.
func (c *Context) PathCreateDirectory(dirfd uint32, path string) errs.Errno {
	_, res, errno := c.resolveFor(dirfd, rights.PathCreateDirectory, path, false, true)
	if errno != errs.Success {
		return errno
	}
	defer res.Close()
	if err := unix.Mkdirat(res.DirFd, res.Component, 0o755); err != nil {
		return errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	return errs.Success
}

// PathRemoveDirectory implements path_remove_directory.
func (c *Context) PathRemoveDirectory(dirfd uint32, path string) errs.Errno {
	_, res, errno := c.resolveFor(dirfd, rights.PathRemoveDirectory, path, false, false)
	if errno != errs.Success {
		return errno
	}
	defer res.Close()
	if err := unix.Unlinkat(res.DirFd, res.Component, unix.AT_REMOVEDIR); err != nil {
		return errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	return errs.Success
}

// PathUnlinkFile implements path_unlink_file.
func (c *Context) PathUnlinkFile(dirfd uint32, path string) errs.Errno {
	_, res, errno := c.resolveFor(dirfd, rights.PathUnlinkFile, path, false, false)
	if errno != errs.Success {
		return errno
	}
	defer res.Close()
	if err := unix.Unlinkat(res.DirFd, res.Component, 0); err != nil {
		return errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	return errs.Success
}

// PathLink implements path_link.
func (c *Context) PathLink(oldDirfd uint32, oldFollow bool, oldPath string, newDirfd uint32, newPath string) errs.Errno {
	_, oldRes, errno := c.resolveFor(oldDirfd, rights.PathLinkSource, oldPath, oldFollow, false)
	if errno != errs.Success {
		return errno
	}
	defer oldRes.Close()

	_, newRes, errno := c.resolveFor(newDirfd, rights.PathLinkTarget, newPath, false, true)
	if errno != errs.Success {
		return errno
	}
	defer newRes.Close()

	flags := 0
	if oldFollow {
		flags = unix.AT_SYMLINK_FOLLOW
	}
	if err := unix.Linkat(oldRes.DirFd, oldRes.Component, newRes.DirFd, newRes.Component, flags); err != nil {
		return errs.FromOSErrorAt(err, newRes.DirFd, newRes.Component)
	}
	return errs.Success
}

// PathRename implements path_rename.
func (c *Context) PathRename(oldDirfd uint32, oldPath string, newDirfd uint32, newPath string) errs.Errno {
	_, oldRes, errno := c.resolveFor(oldDirfd, rights.PathRenameSource, oldPath, false, false)
	if errno != errs.Success {
		return errno
	}
	defer oldRes.Close()

	_, newRes, errno := c.resolveFor(newDirfd, rights.PathRenameTarget, newPath, false, true)
	if errno != errs.Success {
		return errno
	}
	defer newRes.Close()

	if err := unix.Renameat(oldRes.DirFd, oldRes.Component, newRes.DirFd, newRes.Component); err != nil {
		return errs.FromOSErrorAt(err, newRes.DirFd, newRes.Component)
	}
	return errs.Success
}

// PathSymlink implements path_symlink. The target string is written
// verbatim as the link's content and is never itself resolved.
func (c *Context) PathSymlink(target string, dirfd uint32, linkPath string) errs.Errno {
	_, res, errno := c.resolveFor(dirfd, rights.PathSymlink, linkPath, false, true)
	if errno != errs.Success {
		return errno
	}
	defer res.Close()
	if err := unix.Symlinkat(target, res.DirFd, res.Component); err != nil {
		return errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	return errs.Success
}

// PathReadlink implements path_readlink. A zero-length buffer still
// succeeds with used=0 and the link unread.
func (c *Context) PathReadlink(mem *abi.Memory, dirfd uint32, path string, buf, bufLen uint32) (uint32, errs.Errno) {
	if bufLen == 0 {
		_, res, errno := c.resolveFor(dirfd, rights.PathReadlink, path, false, true)
		if errno != errs.Success {
			return 0, errno
		}
		res.Close()
		return 0, errs.Success
	}

	_, res, errno := c.resolveFor(dirfd, rights.PathReadlink, path, false, true)
	if errno != errs.Success {
		return 0, errno
	}
	defer res.Close()

	target := make([]byte, 4096)
	n, err := unix.Readlinkat(res.DirFd, res.Component, target)
	if err != nil {
		return 0, errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	used := n
	if uint32(used) > bufLen {
		used = int(bufLen)
	}
	if errno := mem.EncodeBytes(buf, target[:used]); errno != errs.Success {
		return 0, errno
	}
	return uint32(used), errs.Success
}

// PathFilestatGet implements path_filestat_get.
func (c *Context) PathFilestatGet(mem *abi.Memory, dirfd uint32, followTerminal bool, path string, out uint32) errs.Errno {
	_, res, errno := c.resolveFor(dirfd, rights.PathFilestatGet, path, followTerminal, false)
	if errno != errs.Success {
		return errno
	}
	defer res.Close()

	flags := unix.AT_SYMLINK_NOFOLLOW
	if followTerminal {
		flags = 0
	}
	var st unix.Stat_t
	if err := unix.Fstatat(res.DirFd, res.Component, &st, flags); err != nil {
		return errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	stat := abi.Filestat{
		Dev: uint64(st.Dev), Ino: st.Ino, Filetype: fileTypeFromMode(st.Mode),
		Nlink: uint64(st.Nlink), Size: uint64(st.Size),
		Atim: uint64(st.Atim.Nano()), Mtim: uint64(st.Mtim.Nano()), Ctim: uint64(st.Ctim.Nano()),
	}
	return mem.EncodeFilestat(out, stat)
}

// PathFilestatSetTimes implements path_filestat_set_times.
func (c *Context) PathFilestatSetTimes(dirfd uint32, followTerminal bool, path string, atim, mtim uint64, setAtim, setMtim, atimNow, mtimNow bool) errs.Errno {
	_, res, errno := c.resolveFor(dirfd, rights.PathFilestatSetTimes, path, followTerminal, false)
	if errno != errs.Success {
		return errno
	}
	defer res.Close()

	flags := unix.AT_SYMLINK_NOFOLLOW
	if followTerminal {
		flags = 0
	}
	ts := timesToUtimbuf(atim, mtim, setAtim, setMtim, atimNow, mtimNow)
	if err := unix.UtimesNanoAt(res.DirFd, res.Component, ts, flags); err != nil {
		return errs.FromOSErrorAt(err, res.DirFd, res.Component)
	}
	return errs.Success
}
