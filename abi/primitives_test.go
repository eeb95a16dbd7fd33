package abi

import (
	"testing"

	"github.com/marmistrz/wasi-common/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestU32RoundTrip(t *testing.T) {
	mem := NewMemory(make([]byte, 8))
	require.Equal(t, errs.Success, mem.EncodeU32(0, 0xdeadbeef))
	got, errno := mem.DecodeU32(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint32(0xdeadbeef), got)
}

func TestDecodeWhenceRejectsOutOfRange(t *testing.T) {
	mem := NewMemory(make([]byte, 1))
	require.Equal(t, errs.Success, mem.EncodeU8(0, 5))
	_, errno := mem.DecodeWhence(0)
	assert.Equal(t, errs.Inval, errno)
}

func TestDecodeWhenceAcceptsValid(t *testing.T) {
	mem := NewMemory(make([]byte, 1))
	require.Equal(t, errs.Success, mem.EncodeU8(0, uint8(WhenceCur)))
	w, errno := mem.DecodeWhence(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, WhenceCur, w)
}

func TestDecodeClockIDRejectsOutOfRange(t *testing.T) {
	mem := NewMemory(make([]byte, 4))
	require.Equal(t, errs.Success, mem.EncodeU32(0, 99))
	_, errno := mem.DecodeClockID(0)
	assert.Equal(t, errs.Inval, errno)
}

func TestDecodeOpenFlags(t *testing.T) {
	mem := NewMemory(make([]byte, 2))
	require.Equal(t, errs.Success, mem.EncodeU16(0, uint16(OpenCreat|OpenTrunc)))
	f, errno := mem.DecodeOpenFlags(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, OpenCreat|OpenTrunc, f)
}
