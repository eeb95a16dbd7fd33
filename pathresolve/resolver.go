// Package pathresolve implements symlink-safe path resolution confined
// to a preopened directory subtree. It is the core of the
// sandbox: every path-taking syscall routes through Resolve before
// touching the filesystem.
package pathresolve

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/marmistrz/wasi-common/errs"
)

// maxSymlinkHops bounds the number of symlink dereferences a single
// resolution may perform before failing *loop*, matching the classic
// Unix ELOOP threshold.
const maxSymlinkHops = 32

// Result is an owned directory handle (the final parent opened during
// traversal) plus the unopened final-component name, suitable for a
// subsequent *at syscall. Callers must call Close when done with it.
type Result struct {
	DirFd     int
	Component string
}

// Close releases the directory handle. Safe to call once; calling it
// twice double-closes the fd, which the caller must avoid.
func (r Result) Close() error {
	return unix.Close(r.DirFd)
}

// WillCreate is true when the terminal
// component names an entry the caller intends to create (path_open
// with O_CREAT, path_create_directory, path_symlink's link target,
// ...). When true, the terminal segment is never expanded even if
// lookup-flags requests symlink-follow.
type WillCreate bool

// Resolve walks path starting at baseFd and returns the opened parent
// directory plus the final path component. baseFd is borrowed;
// Resolve never closes it.
//
// baseFd doubles as the escape root for this call: since baseFd is
// itself a capability the guest already holds, and every directory
// opened beneath it is reached only through step-wise openat
// containment, no ".." sequence can reach above baseFd regardless of
// how deep under the original preopen baseFd itself sits. Tracking
// stack depth relative to baseFd is therefore equivalent to tracking
// it relative to the preopen ancestor.
//
// followTerminal mirrors the lookup-flags symlink-follow bit; it only
// takes effect when willCreate is false.
func Resolve(baseFd int, path string, followTerminal bool, willCreate WillCreate) (Result, errs.Errno) {
	if path == "" {
		return Result{}, errs.Inval
	}
	if strings.HasPrefix(path, "/") {
		return Result{}, errs.NotCapable
	}

	stack := []int{baseFd}
	depth := 0 // stack depth below baseFd; 0 means at the root
	opened := make([]int, 0, 4)
	defer func() {
		for _, fd := range opened {
			_ = unix.Close(fd)
		}
	}()

	hops := 0
	remaining := path

	for {
		segs := splitOnce(remaining)
		seg, rest, hasMore := segs.head, segs.tail, segs.hasTail

		switch {
		case seg == "":
			// Only reachable once a trailing slash has fully consumed
			// the remainder after a component that already opened
			// successfully as a directory.
			return finish(stack[len(stack)-1])
		case seg == ".":
			remaining = rest
			if !hasMore {
				return finish(stack[len(stack)-1])
			}
			continue
		case seg == "..":
			if depth == 0 {
				return Result{}, errs.NotCapable
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top != baseFd {
				_ = unix.Close(top)
				removeOpened(&opened, top)
			}
			depth--
			remaining = rest
			if !hasMore {
				return finish(stack[len(stack)-1])
			}
			continue
		}

		isTerminal := !hasMore
		cur := stack[len(stack)-1]

		if isTerminal {
			expand := followTerminal && !bool(willCreate)
			if !expand {
				return Result{DirFd: dupBorrowed(cur), Component: seg}, errs.Success
			}
		}

		childFd, err := unix.Openat(cur, seg, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
		if err == nil {
			stack = append(stack, childFd)
			opened = append(opened, childFd)
			depth++
			if isTerminal {
				return finish(childFd)
			}
			remaining = rest
			continue
		}

		errno, isErrno := err.(unix.Errno)
		switch {
		case isErrno && errno == unix.ELOOP:
			// O_NOFOLLOW refused to open a symlink.
		case isErrno && errno == unix.ENOTDIR && isSymlinkAt(cur, seg):
			// Some platforms report ENOTDIR rather than ELOOP when
			// O_DIRECTORY|O_NOFOLLOW meets a symlink; confirm with a
			// stat before trusting it over the more common case
			// below, where ENOTDIR means a genuine non-directory.
		case isErrno && errno == unix.ENOTDIR:
			if isTerminal {
				return Result{DirFd: dupBorrowed(cur), Component: seg}, errs.Success
			}
			return Result{}, errs.NotDir
		default:
			return Result{}, errs.FromOSErrorAt(err, cur, seg)
		}

		target, rlErrno := readlinkat(cur, seg)
		if rlErrno != errs.Success {
			return Result{}, rlErrno
		}
		hops++
		if hops > maxSymlinkHops {
			return Result{}, errs.Loop
		}
		if strings.HasPrefix(target, "/") {
			return Result{}, errs.NotCapable
		}
		if hasMore {
			remaining = target + "/" + rest
		} else {
			remaining = target
		}
		continue
	}
}

// finish builds a successful Result for a path that resolved exactly
// to a directory. The component "." tells the caller's *at syscall to
// operate on dirFd itself.
func finish(dirFd int) (Result, errs.Errno) {
	return Result{DirFd: dupBorrowed(dirFd), Component: "."}, errs.Success
}

// dupBorrowed returns a dup of fd; the original remains owned by the
// traversal stack and is released by Resolve's deferred cleanup.
func dupBorrowed(fd int) int {
	newFd, err := unix.Dup(fd)
	if err != nil {
		return fd
	}
	unix.CloseOnExec(newFd)
	return newFd
}

func removeOpened(opened *[]int, fd int) {
	s := *opened
	for i, v := range s {
		if v == fd {
			*opened = append(s[:i], s[i+1:]...)
			return
		}
	}
}

// isSymlinkAt disambiguates ENOTDIR from an O_DIRECTORY|O_NOFOLLOW open:
// the component is a symlink only if a no-follow stat confirms it, since
// the same errno is what a genuine non-directory component produces too.
func isSymlinkAt(dirFd int, component string) bool {
	var st unix.Stat_t
	if err := unix.Fstatat(dirFd, component, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFLNK
}

func readlinkat(dirFd int, name string) (string, errs.Errno) {
	buf := make([]byte, 4096)
	n, err := unix.Readlinkat(dirFd, name, buf)
	if err != nil {
		return "", errs.FromOSErrorAt(err, dirFd, name)
	}
	return string(buf[:n]), errs.Success
}

type splitResult struct {
	head    string
	tail    string
	hasTail bool
}

// splitOnce splits p on the first '/', collapsing a run of separators
// in the tail into one. A trailing slash (or run of slashes) yields a
// head plus an empty, no-more-tail-content split.
func splitOnce(p string) splitResult {
	idx := strings.IndexByte(p, '/')
	if idx < 0 {
		return splitResult{head: p, hasTail: false}
	}
	head := p[:idx]
	tail := p[idx+1:]
	for strings.HasPrefix(tail, "/") {
		tail = tail[1:]
	}
	return splitResult{head: head, tail: tail, hasTail: true}
}
