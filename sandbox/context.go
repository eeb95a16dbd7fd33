// Package sandbox implements the guest-facing syscall surface: the
// glue that decodes ABI arguments, checks rights, resolves paths,
// invokes the host OS, and encodes results back into guest memory.
package sandbox

import (
	"crypto/rand"
	"io"

	"github.com/marmistrz/wasi-common/clockpoll"
	"github.com/marmistrz/wasi-common/descriptor"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
)

// stdioRights is the base right set granted to the three standard
// streams: read/write plus the bits poll_oneoff needs to subscribe to
// them.
const stdioRights = rights.FDRead | rights.FDWrite | rights.FDFdstatSetFlags | rights.PollFDReadwrite

// Context is the per-instance sandbox state: the aggregate owning the
// descriptor table and the argv/envp the guest observes. One Context
// exists per sandbox instance for its whole lifetime.
type Context struct {
	Table   *descriptor.Table
	Args    []string
	Environ []string
	Clocks  clockpoll.Source
	Rand    io.Reader
}

// New constructs a Context with stdio preseeded at handles 0/1/2. No
// preopens are installed; call AddPreopen for each sandboxed
// directory root before running guest code.
func New(args, environ []string) *Context {
	tbl := descriptor.NewTable()
	tbl.Preseed(0, descriptor.Entry{Descriptor: descriptor.Descriptor{Kind: descriptor.KindStdin}, RightsBase: stdioRights})
	tbl.Preseed(1, descriptor.Entry{Descriptor: descriptor.Descriptor{Kind: descriptor.KindStdout}, RightsBase: stdioRights})
	tbl.Preseed(2, descriptor.Entry{Descriptor: descriptor.Descriptor{Kind: descriptor.KindStderr}, RightsBase: stdioRights})

	return &Context{
		Table:   tbl,
		Args:    args,
		Environ: environ,
		Clocks:  clockpoll.NewRealSource(),
		Rand:    rand.Reader,
	}
}

// Close tears down the context, releasing every owned descriptor.
func (c *Context) Close() {
	c.Table.CloseAll()
}

// RawFD implements clockpoll.FDReadiness by looking handle up in the
// descriptor table.
func (c *Context) RawFD(handle uint32) (int, bool) {
	e, errno := c.Table.Get(handle, 0, 0)
	if errno != errs.Success {
		return 0, false
	}
	return e.Descriptor.Fd(), true
}
