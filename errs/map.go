package errs

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// osErrnoTable maps the POSIX errno values the host platform can
// actually return into the ABI taxonomy. Unlisted values fall through
// to IO.
var osErrnoTable = map[unix.Errno]Errno{
	unix.E2BIG:       TooBig,
	unix.EACCES:      Acces,
	unix.EADDRINUSE:  AddrInUse,
	unix.EAGAIN:      Again,
	unix.EALREADY:    Already,
	unix.EBADF:       BadF,
	unix.EBADMSG:     BadMsg,
	unix.EBUSY:       Busy,
	unix.ECANCELED:   Canceled,
	unix.ECHILD:      Child,
	unix.ECONNABORTED: ConnAborted,
	unix.ECONNREFUSED: ConnRefused,
	unix.ECONNRESET:  ConnReset,
	unix.EDEADLK:     Deadlk,
	unix.EDESTADDRREQ: DestAddrReq,
	unix.EDOM:        Dom,
	unix.EDQUOT:      DQuot,
	unix.EEXIST:      Exist,
	unix.EFAULT:      Fault,
	unix.EFBIG:       FBig,
	unix.EHOSTUNREACH: HostUnreach,
	unix.EIDRM:       IDRM,
	unix.EILSEQ:      IlSeq,
	unix.EINPROGRESS: InProgress,
	unix.EINTR:       Interrupted,
	unix.EINVAL:      Inval,
	unix.EIO:         IO,
	unix.EISCONN:     IsConn,
	unix.EISDIR:      IsDir,
	unix.ELOOP:       Loop,
	unix.EMFILE:      MFile,
	unix.EMLINK:      MLink,
	unix.EMSGSIZE:    MsgSize,
	unix.EMULTIHOP:   Multihop,
	unix.ENAMETOOLONG: NameTooLong,
	unix.ENETDOWN:    NetDown,
	unix.ENETRESET:   NetReset,
	unix.ENETUNREACH: NetUnreach,
	unix.ENFILE:      NFile,
	unix.ENOBUFS:     NoBufs,
	unix.ENODEV:      NoDev,
	unix.ENOENT:      NoEnt,
	unix.ENOEXEC:     NoExec,
	unix.ENOLCK:      NoLck,
	unix.ENOLINK:     NoLink,
	unix.ENOMEM:      NoMem,
	unix.ENOMSG:      NoMsg,
	unix.ENOPROTOOPT: NoProtoOpt,
	unix.ENOSPC:      NoSpc,
	unix.ENOSYS:      NoSys,
	unix.ENOTCONN:    NotConn,
	unix.ENOTDIR:     NotDir,
	unix.ENOTEMPTY:   NotEmpty,
	unix.ENOTSOCK:    NotSock,
	unix.ENOTSUP:     NotSup,
	unix.ENOTTY:      NotTTY,
	unix.ENXIO:       NXIO,
	unix.EOVERFLOW:   Overflow,
	unix.EOWNERDEAD:  OwnerDead,
	unix.EPERM:       Perm,
	unix.EPIPE:       Pipe,
	unix.EPROTO:      Proto,
	unix.EPROTONOSUPPORT: ProtoNoSupport,
	unix.EPROTOTYPE:  ProtoType,
	unix.ERANGE:      Range,
	unix.EROFS:       ROFS,
	unix.ESPIPE:      SPipe,
	unix.ESRCH:       SRCH,
	unix.ESTALE:      Stale,
	unix.ETIMEDOUT:   TimedOut,
	unix.ETXTBSY:     TxtBsy,
	unix.EXDEV:       XDev,
}

// FromOSError maps a host OS error into the fixed Errno taxonomy:
// unknown errno maps to IO, nil maps to Success.
//
// It deliberately does not apply the ENOTDIR/EPERM/EMLINK remaps, two
// of which require a follow-up stat to disambiguate — those are applied by
// FromOSErrorAt, which call sites with a path available should prefer.
func FromOSError(err error) Errno {
	if err == nil {
		return Success
	}

	var errno unix.Errno
	if errors.As(err, &errno) {
		if mapped, ok := osErrnoTable[errno]; ok {
			return mapped
		}
		return IO
	}

	if errors.Is(err, fs.ErrNotExist) {
		return NoEnt
	}
	if errors.Is(err, fs.ErrExist) {
		return Exist
	}
	if errors.Is(err, fs.ErrPermission) {
		return Perm
	}

	return IO
}

// FromOSErrorAt applies the remaps that require a confirming stat of
// path (relative to dirfd, not following the final
// symlink):
//
//   - ENOTDIR returned from an O_NOFOLLOW|O_DIRECTORY open is remapped
//     to Loop if a lstat of the same path shows a symlink (the
//     component was a symlink, not a plain non-directory).
//   - EPERM returned from an unlink-style call is remapped to IsDir if
//     a stat of the same path shows a directory (some platforms return
//     EPERM instead of EISDIR for unlink on a directory).
//   - EMLINK substituted by the OS under O_NOFOLLOW is treated like
//     ELOOP.
func FromOSErrorAt(err error, dirfd int, component string) Errno {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return FromOSError(err)
	}

	switch errno {
	case unix.ENOTDIR:
		if isSymlinkAt(dirfd, component) {
			return Loop
		}
	case unix.EPERM:
		if isDirAt(dirfd, component) {
			return IsDir
		}
	case unix.EMLINK:
		return Loop
	}

	return FromOSError(err)
}

func isSymlinkAt(dirfd int, component string) bool {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, component, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFLNK
}

func isDirAt(dirfd int, component string) bool {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, component, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFDIR
}

// IsNotCapable is a convenience used by tests and callers that need to
// branch on the specific "rights failure" case rather than a
// Success/not-Success check.
func IsNotCapable(e Errno) bool { return e == NotCapable }

// osFileIsSocket reports whether err is a PathError carrying ENXIO or
// EOPNOTSUPP, the codes returned when opening a socket file node.
// FromOSError does not call it; it maps those codes through
// osErrnoTable.
func osFileIsSocket(err error) bool {
	var pe *os.PathError
	if !errors.As(err, &pe) {
		return false
	}
	var errno unix.Errno
	if !errors.As(pe.Err, &errno) {
		return false
	}
	return errno == unix.ENXIO || errno == unix.EOPNOTSUPP
}
