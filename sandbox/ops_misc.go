package sandbox

import (
	"runtime"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/clockpoll"
	"github.com/marmistrz/wasi-common/errs"
)

// RandomGet implements random_get: fills the guest buffer from
// a cryptographically seeded PRNG.
func (c *Context) RandomGet(mem *abi.Memory, buf, bufLen uint32) errs.Errno {
	dst, errno := mem.DecodeBytes(buf, bufLen)
	if errno != errs.Success {
		return errno
	}
	if _, err := c.Rand.Read(dst); err != nil {
		return errs.IO
	}
	return errs.Success
}

// ClockResGet implements clock_res_get.
func (c *Context) ClockResGet(mem *abi.Memory, idOffset, resOffset uint32) errs.Errno {
	id, errno := mem.DecodeClockID(idOffset)
	if errno != errs.Success {
		return errno
	}
	res, errno := c.Clocks.Res(id)
	if errno != errs.Success {
		return errno
	}
	return mem.EncodeU64(resOffset, uint64(res.Nanoseconds()))
}

// ClockTimeGet implements clock_time_get. The precision argument is
// accepted for ABI compatibility but unused: this host always reports
// the finest resolution it can read.
func (c *Context) ClockTimeGet(mem *abi.Memory, idOffset uint32, precision uint64, timeOffset uint32) errs.Errno {
	id, errno := mem.DecodeClockID(idOffset)
	if errno != errs.Success {
		return errno
	}
	now, errno := c.Clocks.Now(id)
	if errno != errs.Success {
		return errno
	}
	nanos := now.UnixNano()
	if nanos < 0 {
		return errs.Overflow
	}
	return mem.EncodeU64(timeOffset, uint64(nanos))
}

// PollOneoff implements poll_oneoff: decodes the subscription array,
// runs the wait, and encodes the resulting events. Returns the number
// of events written.
func (c *Context) PollOneoff(mem *abi.Memory, subsOffset uint32, subsCount uint32, eventsOffset uint32) (uint32, errs.Errno) {
	subs := make([]abi.Subscription, subsCount)
	const subscriptionSize = 48
	for i := uint32(0); i < subsCount; i++ {
		s, errno := mem.DecodeSubscription(subsOffset + i*subscriptionSize)
		if errno != errs.Success {
			return 0, errno
		}
		subs[i] = s
	}

	events, errno := clockpoll.PollOneoff(c.Clocks, c, subs)
	if errno != errs.Success {
		return 0, errno
	}

	const eventSize = 32
	for i, ev := range events {
		if errno := mem.EncodeEvent(eventsOffset+uint32(i)*eventSize, ev); errno != errs.Success {
			return 0, errno
		}
	}
	return uint32(len(events)), errs.Success
}

// SchedYield implements sched_yield: a cooperative yield to the host
// scheduler. Always succeeds.
func (c *Context) SchedYield() errs.Errno {
	runtime.Gosched()
	return errs.Success
}

// ExitError is returned by ProcExit to unwind out of the syscall
// dispatch loop with the guest's requested exit code. It is not an
// ABI errno: the embedder's dispatch loop must check for it
// explicitly, since proc_exit never returns control to the guest.
type ExitError struct {
	Code uint32
}

func (e *ExitError) Error() string {
	return "proc_exit requested"
}

// ProcExit implements proc_exit: terminates the
// sandbox instance with the given exit code. Embedders drive this by
// checking for *ExitError after every dispatched call.
func (c *Context) ProcExit(code uint32) error {
	return &ExitError{Code: code}
}
