package sandbox

import (
	"golang.org/x/sys/unix"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
)

func adviceToFadvise(a abi.Advice) int {
	switch a {
	case abi.AdviceSequential:
		return unix.FADV_SEQUENTIAL
	case abi.AdviceRandom:
		return unix.FADV_RANDOM
	case abi.AdviceWillNeed:
		return unix.FADV_WILLNEED
	case abi.AdviceDontNeed:
		return unix.FADV_DONTNEED
	case abi.AdviceNoReuse:
		return unix.FADV_NOREUSE
	default:
		return unix.FADV_NORMAL
	}
}

func getFDFlags(fd int) (abi.FDFlags, error) {
	raw, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return 0, err
	}
	var f abi.FDFlags
	if raw&unix.O_APPEND != 0 {
		f |= abi.FDFlagAppend
	}
	if raw&unix.O_NONBLOCK != 0 {
		f |= abi.FDFlagNonblock
	}
	if raw&unix.O_SYNC != 0 {
		f |= abi.FDFlagSync
	}
	if raw&unix.O_DSYNC != 0 {
		f |= abi.FDFlagDsync
	}
	return f, nil
}

func setFDFlags(fd int, f abi.FDFlags) errs.Errno {
	raw, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return errs.FromOSError(err)
	}
	const settable = unix.O_APPEND | unix.O_NONBLOCK
	raw &^= settable
	if f&abi.FDFlagAppend != 0 {
		raw |= unix.O_APPEND
	}
	if f&abi.FDFlagNonblock != 0 {
		raw |= unix.O_NONBLOCK
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, raw); err != nil {
		return errs.FromOSError(err)
	}
	return errs.Success
}

func statFD(fd int, ft abi.FileType) (abi.Filestat, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return abi.Filestat{}, err
	}
	return abi.Filestat{
		Dev:      uint64(st.Dev),
		Ino:      st.Ino,
		Filetype: ft,
		Nlink:    uint64(st.Nlink),
		Size:     uint64(st.Size),
		Atim:     uint64(st.Atim.Nano()),
		Mtim:     uint64(st.Mtim.Nano()),
		Ctim:     uint64(st.Ctim.Nano()),
	}, nil
}

// timesToUtimbuf builds the two Timespecs UtimesNanoAt expects,
// honoring the "now" and "set" flags from fd_filestat_set_times /
// path_filestat_set_times: set takes the explicit value, now requests
// the current time, and neither leaves the timestamp untouched.
func timesToUtimbuf(atim, mtim uint64, setAtim, setMtim, atimNow, mtimNow bool) []unix.Timespec {
	ts := make([]unix.Timespec, 2)
	ts[0] = timespecFor(atim, setAtim, atimNow)
	ts[1] = timespecFor(mtim, setMtim, mtimNow)
	return ts
}

func timespecFor(value uint64, set, now bool) unix.Timespec {
	switch {
	case now:
		return unix.Timespec{Nsec: unix.UTIME_NOW}
	case set:
		return unix.NsecToTimespec(int64(value))
	default:
		return unix.Timespec{Nsec: unix.UTIME_OMIT}
	}
}
