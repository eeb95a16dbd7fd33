// Package abi marshals fixed-layout ABI records and primitives across
// the guest's linear memory: a structured-decode shape similar to a
// kernel-protocol request/response marshaller, but for a
// byte-addressed flat memory rather than a length-prefixed message.
package abi

import "github.com/marmistrz/wasi-common/errs"

// Memory is a borrowed view over the guest's linear memory for the
// duration of a single syscall. No decoded value may retain a
// reference into it once the syscall returns: callers must copy out anything that needs to outlive the
// call.
type Memory struct {
	buf []byte
}

// NewMemory wraps buf. The caller retains ownership; Memory never
// reallocates it.
func NewMemory(buf []byte) *Memory {
	return &Memory{buf: buf}
}

// Len returns the size of the backing buffer in bytes.
func (m *Memory) Len() int { return len(m.buf) }

// clamp returns the sub-slice [offset, offset+length) of the backing
// buffer, or ok=false if that range is out of bounds or the addition
// overflows a 32-bit offset space.
func (m *Memory) clamp(offset, length uint32) (b []byte, ok bool) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end], true
}

// View returns a borrowed, mutable slice of length bytes starting at
// offset. It fails with errs.Fault if offset+length overflows or the
// range is out of bounds.
func (m *Memory) View(offset, length uint32) ([]byte, errs.Errno) {
	b, ok := m.clamp(offset, length)
	if !ok {
		return nil, errs.Fault
	}
	return b, errs.Success
}
