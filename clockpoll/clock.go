// Package clockpoll implements the clock and poll_oneoff subsystem:
// clock reads across the four ABI clock ids, and a unified wait over
// fd-readiness and clock deadlines.
package clockpoll

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
)

// Clock is the wall/monotonic time source consulted by clock_time_get
// and by poll_oneoff's clock-subscription handling. Swappable for
// deterministic tests instead of depending on time.Now directly.
type Clock interface {
	Now() time.Time
}

// RealClock reports the host's wall-clock time.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time { return time.Now() }

// SimulatedClock is a clock that only advances when AdvanceTime or
// SetTime is called, for deterministic poll/clock tests. The zero
// value is a clock initialized to the zero time.
type SimulatedClock struct {
	mu sync.RWMutex
	t  time.Time // GUARDED_BY(mu)
}

// NewSimulatedClock constructs a SimulatedClock starting at startTime.
func NewSimulatedClock(startTime time.Time) *SimulatedClock {
	return &SimulatedClock{t: startTime}
}

func (sc *SimulatedClock) Now() time.Time {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.t
}

// SetTime sets the clock's current time.
func (sc *SimulatedClock) SetTime(t time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.t = t
}

// AdvanceTime moves the clock forward by d.
func (sc *SimulatedClock) AdvanceTime(d time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.t = sc.t.Add(d)
}

// Source reads all four ABI clocks. realtime and monotonic are
// backed by the injected Clock, which a caller may point at
// SimulatedClock in tests; process- and thread-cputime always read
// the host, since simulating CPU-time accounting has no deterministic
// analogue worth building.
type Source struct {
	Wall Clock // backs ClockRealtime
	Mono Clock // backs ClockMonotonic
}

// NewRealSource returns a Source backed entirely by the host clock.
func NewRealSource() Source {
	return Source{Wall: RealClock{}, Mono: RealClock{}}
}

// Now reads the time for id. Unknown ids fail *invalid-argument*.
func (s Source) Now(id abi.ClockID) (time.Time, errs.Errno) {
	switch id {
	case abi.ClockRealtime:
		return s.Wall.Now(), errs.Success
	case abi.ClockMonotonic:
		return s.Mono.Now(), errs.Success
	case abi.ClockProcessCputimeID, abi.ClockThreadCputimeID:
		return cputimeNow(id)
	default:
		return time.Time{}, errs.Inval
	}
}

// Res reports the clock's resolution in nanoseconds. A zero
// resolution from the OS is remapped to *invalid-argument*, since the
// ABI forbids a zero result.
func (s Source) Res(id abi.ClockID) (time.Duration, errs.Errno) {
	var clockid int32
	switch id {
	case abi.ClockRealtime:
		clockid = unix.CLOCK_REALTIME
	case abi.ClockMonotonic:
		clockid = unix.CLOCK_MONOTONIC
	case abi.ClockProcessCputimeID:
		clockid = unix.CLOCK_PROCESS_CPUTIME_ID
	case abi.ClockThreadCputimeID:
		clockid = unix.CLOCK_THREAD_CPUTIME_ID
	default:
		return 0, errs.Inval
	}

	var ts unix.Timespec
	if err := unix.ClockGetres(clockid, &ts); err != nil {
		return 0, errs.FromOSError(err)
	}
	res := time.Duration(ts.Nano())
	if res == 0 {
		return 0, errs.Inval
	}
	return res, errs.Success
}

func cputimeNow(id abi.ClockID) (time.Time, errs.Errno) {
	var clockid int32
	if id == abi.ClockProcessCputimeID {
		clockid = unix.CLOCK_PROCESS_CPUTIME_ID
	} else {
		clockid = unix.CLOCK_THREAD_CPUTIME_ID
	}

	var ts unix.Timespec
	if err := unix.ClockGettime(clockid, &ts); err != nil {
		return time.Time{}, errs.FromOSError(err)
	}
	return time.Unix(ts.Sec, ts.Nsec), errs.Success
}
