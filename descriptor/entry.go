// Package descriptor implements the guest-handle-indexed descriptor
// table: the mapping from a 32-bit guest handle
// to the host resource and rights mask backing it.
package descriptor

import (
	"os"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/rights"
)

// Kind tags the closed set of Descriptor variants.
type Kind uint8

const (
	// KindFile is an owned OS file or directory handle opened by this
	// sandbox instance.
	KindFile Kind = iota
	// KindStdin/KindStdout/KindStderr are borrowed standard streams:
	// never owned, never closed by fd_close or context teardown.
	KindStdin
	KindStdout
	KindStderr
)

// Descriptor is the tagged union over an owned OS file handle or a
// borrowed standard stream.
type Descriptor struct {
	Kind Kind
	File *os.File // nil for the standard-stream variants if unused
}

// IsBorrowed reports whether the underlying OS handle is owned by the
// host process rather than this descriptor (stdin/stdout/stderr).
func (d Descriptor) IsBorrowed() bool {
	return d.Kind != KindFile
}

// Close releases the underlying OS handle unless it is borrowed: it is
// idempotent and a no-op for borrowed handles.
func (d Descriptor) Close() error {
	if d.IsBorrowed() || d.File == nil {
		return nil
	}
	return d.File.Close()
}

// Fd returns the raw OS file descriptor number backing d, used by the
// poll subsystem and by *at-style syscalls that need a directory fd.
func (d Descriptor) Fd() int {
	switch d.Kind {
	case KindStdin:
		return 0
	case KindStdout:
		return 1
	case KindStderr:
		return 2
	default:
		if d.File == nil {
			return -1
		}
		return int(d.File.Fd())
	}
}

// Entry is one row of the descriptor table.
type Entry struct {
	FileType         abi.FileType
	Descriptor       Descriptor
	RightsBase       rights.Rights
	RightsInheriting rights.Rights

	// PreopenPath is set iff this entry is a preopened directory root.
	// Invariant: non-empty implies FileType == abi.FileTypeDirectory and
	// the entry is never removed via the guest-facing close operation.
	PreopenPath string
}

// IsPreopen reports whether e is a preopened directory root.
func (e Entry) IsPreopen() bool { return e.PreopenPath != "" }

// ReduceRights narrows e's rights masks in place. Both new masks must
// already be subsets of the current ones, since rights only ever
// narrow; callers are expected to have validated this via
// rights.Rights.Narrow before calling ReduceRights.
func (e *Entry) ReduceRights(base, inheriting rights.Rights) {
	e.RightsBase = base
	e.RightsInheriting = inheriting
}
