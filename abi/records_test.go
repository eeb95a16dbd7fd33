package abi

import (
	"testing"

	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFdstatRoundTrip exercises encode/decode symmetry: decode(encode(x))
// == x for the fdstat record.
func TestFdstatRoundTrip(t *testing.T) {
	mem := NewMemory(make([]byte, 64))
	want := Fdstat{
		FileType:         FileTypeRegularFile,
		Flags:            FDFlagAppend | FDFlagNonblock,
		RightsBase:       rights.FDRead | rights.FDWrite,
		RightsInheriting: rights.FDRead,
	}

	require.Equal(t, errs.Success, mem.EncodeFdstat(8, want))
	got, errno := mem.DecodeFdstat(8)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, want, got)
}

func TestFdstatLayoutIsFixed(t *testing.T) {
	mem := NewMemory(make([]byte, 24))
	s := Fdstat{
		FileType:         FileTypeDirectory,
		Flags:            0,
		RightsBase:       rights.Rights(0x0102030405060708),
		RightsInheriting: rights.Rights(0x1112131415161718),
	}
	require.Equal(t, errs.Success, mem.EncodeFdstat(0, s))

	raw, errno := mem.DecodeBytes(0, 24)
	require.Equal(t, errs.Success, errno)

	assert.Equal(t, uint8(FileTypeDirectory), raw[0])
	assert.Equal(t, byte(0x08), raw[8]) // low byte of rights_base, little-endian
	assert.Equal(t, byte(0x18), raw[16])
}

func TestFilestatRoundTrip(t *testing.T) {
	mem := NewMemory(make([]byte, 64))
	want := Filestat{
		Dev: 1, Ino: 2, Filetype: FileTypeSymbolicLink,
		Nlink: 1, Size: 4096, Atim: 111, Mtim: 222, Ctim: 333,
	}

	require.Equal(t, errs.Success, mem.EncodeFilestat(0, want))
	got, errno := mem.DecodeFilestat(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, want, got)
}

func TestPrestatRoundTrip(t *testing.T) {
	mem := NewMemory(make([]byte, 8))
	want := Prestat{NameLen: 42}

	require.Equal(t, errs.Success, mem.EncodePrestat(0, want))
	got, errno := mem.DecodePrestat(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, want, got)
}

func TestSubscriptionRoundTripClock(t *testing.T) {
	mem := NewMemory(make([]byte, 48))
	want := Subscription{
		Userdata: 7, Kind: SubscriptionClock,
		ClockID: ClockID(ClockMonotonic), Timeout: 1_000_000, Precision: 0,
		Flags: SubscriptionClockAbsolute,
	}

	require.Equal(t, errs.Success, mem.EncodeSubscription(0, want))
	got, errno := mem.DecodeSubscription(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, want, got)
}

func TestSubscriptionRoundTripFD(t *testing.T) {
	mem := NewMemory(make([]byte, 48))
	want := Subscription{Userdata: 9, Kind: SubscriptionFDRead, FD: 5}

	require.Equal(t, errs.Success, mem.EncodeSubscription(0, want))
	got, errno := mem.DecodeSubscription(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, want, got)
}

func TestEventRoundTrip(t *testing.T) {
	mem := NewMemory(make([]byte, 32))
	want := Event{Userdata: 3, Error: errs.Success, Kind: SubscriptionFDWrite, NBytes: 128}

	require.Equal(t, errs.Success, mem.EncodeEvent(0, want))
	got, errno := mem.DecodeEvent(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, want, got)
}

func TestEventClockKindHasNoUnionBody(t *testing.T) {
	mem := NewMemory(make([]byte, 32))
	want := Event{Userdata: 1, Error: errs.Success, Kind: SubscriptionClock}

	require.Equal(t, errs.Success, mem.EncodeEvent(0, want))
	got, errno := mem.DecodeEvent(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, want, got)
}

func TestDirentHeaderEncode(t *testing.T) {
	mem := NewMemory(make([]byte, DirentHeaderSize+4))
	d := Dirent{Next: 5, Ino: 99, Type: FileTypeDirectory, Name: "abcd"}

	require.Equal(t, errs.Success, mem.EncodeDirentHeader(0, d))
	require.Equal(t, errs.Success, mem.EncodeBytes(DirentHeaderSize, []byte(d.Name)))

	raw, errno := mem.DecodeBytes(0, DirentHeaderSize+4)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, "abcd", string(raw[DirentHeaderSize:]))
}

func TestOutOfBoundsIsFault(t *testing.T) {
	mem := NewMemory(make([]byte, 4))
	_, errno := mem.View(2, 8)
	assert.Equal(t, errs.Fault, errno)
}

func TestDecodeU32OutOfBoundsIsInvalidArgument(t *testing.T) {
	mem := NewMemory(make([]byte, 2))
	_, errno := mem.DecodeU32(0)
	assert.Equal(t, errs.Inval, errno)
}
