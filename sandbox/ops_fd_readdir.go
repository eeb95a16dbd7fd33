package sandbox

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
)

// FDReaddir implements fd_readdir. The `.` and `..` entries are
// always synthesized first with cookies 1 and 2; real directory
// entries follow starting at cookie 3. Each call re-lists the
// directory from scratch and skips everything at or before `cookie`,
// which tolerates concurrent mutation at the cost of not being a true
// streaming cursor.
func (c *Context) FDReaddir(mem *abi.Memory, h uint32, buf, bufLen uint32, cookie abi.DirCookie) (uint32, errs.Errno) {
	e, errno := c.Table.Get(h, rights.FDReaddir, 0)
	if errno != errs.Success {
		return 0, errno
	}
	if e.Descriptor.IsBorrowed() {
		return 0, errs.NotDir
	}

	names, err := listDirNames(e.Descriptor.Fd())
	if err != nil {
		return 0, errs.FromOSError(err)
	}

	type resolved struct {
		name string
		ft   abi.FileType
		ino  uint64
	}
	all := make([]resolved, 0, len(names)+2)
	all = append(all, resolved{name: ".", ft: abi.FileTypeDirectory}, resolved{name: "..", ft: abi.FileTypeDirectory})
	for _, n := range names {
		ft, ino := statDirentAt(e.Descriptor.Fd(), n)
		all = append(all, resolved{name: n, ft: ft, ino: ino})
	}

	var written uint32
	for i, ent := range all {
		resumeCookie := abi.DirCookie(i + 1)
		if resumeCookie <= cookie {
			continue
		}
		nameBytes := []byte(ent.name)
		need := abi.DirentHeaderSize + uint32(len(nameBytes))
		if written+need > bufLen {
			break
		}
		d := abi.Dirent{Next: resumeCookie, Ino: ent.ino, Type: ent.ft, Name: ent.name}
		if errno := mem.EncodeDirentHeader(buf+written, d); errno != errs.Success {
			return written, errno
		}
		if errno := mem.EncodeBytes(buf+written+abi.DirentHeaderSize, nameBytes); errno != errs.Success {
			return written, errno
		}
		written += need
	}
	return written, errs.Success
}

func listDirNames(dirFd int) ([]string, error) {
	dupFd, err := unix.Dup(dirFd)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(dupFd), "")
	defer f.Close()
	return f.Readdirnames(-1)
}

func statDirentAt(dirFd int, name string) (abi.FileType, uint64) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirFd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return abi.FileTypeUnknown, 0
	}
	return fileTypeFromMode(st.Mode), st.Ino
}

func fileTypeFromMode(mode uint32) abi.FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return abi.FileTypeDirectory
	case unix.S_IFREG:
		return abi.FileTypeRegularFile
	case unix.S_IFLNK:
		return abi.FileTypeSymbolicLink
	case unix.S_IFCHR:
		return abi.FileTypeCharacterDevice
	case unix.S_IFBLK:
		return abi.FileTypeBlockDevice
	case unix.S_IFSOCK:
		return abi.FileTypeSocketStream
	default:
		return abi.FileTypeUnknown
	}
}
