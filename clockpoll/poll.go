package clockpoll

import (
	"math"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
)

// FDReadiness abstracts the descriptor-to-raw-fd lookup poll_oneoff
// needs without importing the descriptor package, avoiding a cyclic
// dependency between clockpoll and descriptor/sandbox.
type FDReadiness interface {
	// RawFD returns the OS file descriptor backing a guest handle, or
	// ok=false if the handle is not pollable this way.
	RawFD(handle uint32) (fd int, ok bool)
}

// PollOneoff implements poll_oneoff: waits for the earliest of
// a set of clock deadlines or fd-readiness subscriptions, and emits
// one event per satisfied subscription.
func PollOneoff(src Source, fds FDReadiness, subs []abi.Subscription) ([]abi.Event, errs.Errno) {
	if len(subs) == 0 {
		return nil, errs.Success
	}

	var winningClock *abi.Subscription
	var deadline time.Duration
	haveDeadline := false

	type fdSub struct {
		sub abi.Subscription
		pfd unix.PollFd
	}
	var fdSubs []fdSub

	for i := range subs {
		s := &subs[i]
		switch s.Kind {
		case abi.SubscriptionClock:
			rel, errno := clockRelativeTimeout(src, *s)
			if errno != errs.Success {
				return []abi.Event{{Userdata: s.Userdata, Error: errno, Kind: s.Kind}}, errs.Success
			}
			if !haveDeadline || rel < deadline {
				deadline = rel
				haveDeadline = true
				winningClock = s
			}
		case abi.SubscriptionFDRead, abi.SubscriptionFDWrite:
			rawFD, ok := fds.RawFD(s.FD)
			if !ok {
				fdSubs = append(fdSubs, fdSub{sub: *s, pfd: unix.PollFd{Fd: -1}})
				continue
			}
			events := int16(unix.POLLIN)
			if s.Kind == abi.SubscriptionFDWrite {
				events = int16(unix.POLLOUT)
			}
			fdSubs = append(fdSubs, fdSub{sub: *s, pfd: unix.PollFd{Fd: int32(rawFD), Events: events}})
		}
	}

	if len(fdSubs) == 0 {
		if !haveDeadline {
			return nil, errs.Success
		}
		sleepFor(deadline)
		return []abi.Event{{Userdata: winningClock.Userdata, Error: errs.Success, Kind: abi.SubscriptionClock}}, errs.Success
	}

	pollFds := make([]unix.PollFd, len(fdSubs))
	badHandles := 0
	for i, fs := range fdSubs {
		pollFds[i] = fs.pfd
		if fs.pfd.Fd < 0 {
			badHandles++
		}
	}

	timeoutMs := -1
	if haveDeadline {
		timeoutMs = millisClamped(deadline)
	}
	// Unknown handles are reported at once, so the poll does not block.
	if badHandles > 0 {
		timeoutMs = 0
	}

	n, err := pollRetrying(pollFds, timeoutMs)
	if err != nil {
		return nil, errs.FromOSError(err)
	}

	if n == 0 && badHandles == 0 {
		return []abi.Event{{Userdata: winningClock.Userdata, Error: errs.Success, Kind: abi.SubscriptionClock}}, errs.Success
	}

	events := make([]abi.Event, 0, n+badHandles)
	for i, fs := range fdSubs {
		pfd := pollFds[i]
		if pfd.Fd < 0 {
			events = append(events, abi.Event{Userdata: fs.sub.Userdata, Error: errs.BadF, Kind: fs.sub.Kind, FDFlags: hangupFlag()})
			continue
		}
		if pfd.Revents == 0 {
			continue
		}
		events = append(events, eventFromRevents(fs.sub, pfd.Revents, int(pfd.Fd)))
	}
	return events, errs.Success
}

func clockRelativeTimeout(src Source, s abi.Subscription) (time.Duration, errs.Errno) {
	if s.Flags&abi.SubscriptionClockAbsolute == 0 {
		return time.Duration(s.Timeout), errs.Success
	}
	now, errno := src.Now(s.ClockID)
	if errno != errs.Success {
		return 0, errs.NotCapable
	}
	target := time.Unix(0, int64(s.Timeout))
	rel := target.Sub(now)
	if rel < 0 {
		rel = 0
	}
	return rel, errs.Success
}

// millisClamped converts d to milliseconds for unix.Poll, saturating
// at math.MaxInt32 (poll's timeout is a C int) rather than overflowing.
func millisClamped(d time.Duration) int {
	ms := d.Milliseconds()
	const maxInt = int64(math.MaxInt32)
	if ms > maxInt {
		return int(maxInt)
	}
	if ms < 0 {
		return 0
	}
	return int(ms)
}

// pollRetrying calls unix.Poll, restarting on EINTR with the
// remaining timeout recomputed from wall-clock elapsed time rather
// than restarting from the original timeout.
func pollRetrying(fds []unix.PollFd, timeoutMs int) (int, error) {
	if timeoutMs < 0 {
		for {
			n, err := unix.Poll(fds, timeoutMs)
			if err == unix.EINTR {
				continue
			}
			return n, err
		}
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err != unix.EINTR {
			return n, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		timeoutMs = int(remaining.Milliseconds())
	}
}

func sleepFor(d time.Duration) {
	time.Sleep(d)
}

func hangupFlag() uint16 { return 1 }

func eventFromRevents(sub abi.Subscription, revents int16, rawFD int) abi.Event {
	ev := abi.Event{Userdata: sub.Userdata, Kind: sub.Kind}

	switch {
	case revents&unix.POLLNVAL != 0:
		ev.Error = errs.BadF
		ev.FDFlags = hangupFlag()
	case revents&unix.POLLERR != 0:
		ev.Error = errs.IO
		ev.FDFlags = hangupFlag()
	case revents&unix.POLLHUP != 0:
		ev.Error = errs.Success
		ev.FDFlags = hangupFlag()
		ev.NBytes = 0
	case revents&(unix.POLLIN|unix.POLLOUT) != 0:
		ev.Error = errs.Success
		if sub.Kind == abi.SubscriptionFDRead {
			ev.NBytes = abi.Filesize(nbytesAvailable(rawFD))
		}
	default:
		ev.Error = errs.Success
	}
	return ev
}

// nbytesAvailable best-effort reads the FIONREAD byte count for a
// ready-for-read fd; unavailable ioctls report 0.
func nbytesAvailable(rawFD int) uint64 {
	n, err := unix.IoctlGetInt(rawFD, unix.FIONREAD)
	if err != nil || n < 0 {
		return 0
	}
	return uint64(n)
}
