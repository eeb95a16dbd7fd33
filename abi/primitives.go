package abi

import (
	"encoding/binary"

	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
)

// All ABI scalars are little-endian.

// DecodeU8 reads a single byte at offset.
func (m *Memory) DecodeU8(offset uint32) (uint8, errs.Errno) {
	b, ok := m.clamp(offset, 1)
	if !ok {
		return 0, errs.Inval
	}
	return b[0], errs.Success
}

// DecodeU16 reads a little-endian u16 at offset.
func (m *Memory) DecodeU16(offset uint32) (uint16, errs.Errno) {
	b, ok := m.clamp(offset, 2)
	if !ok {
		return 0, errs.Inval
	}
	return binary.LittleEndian.Uint16(b), errs.Success
}

// DecodeU32 reads a little-endian u32 at offset.
func (m *Memory) DecodeU32(offset uint32) (uint32, errs.Errno) {
	b, ok := m.clamp(offset, 4)
	if !ok {
		return 0, errs.Inval
	}
	return binary.LittleEndian.Uint32(b), errs.Success
}

// DecodeU64 reads a little-endian u64 at offset.
func (m *Memory) DecodeU64(offset uint32) (uint64, errs.Errno) {
	b, ok := m.clamp(offset, 8)
	if !ok {
		return 0, errs.Inval
	}
	return binary.LittleEndian.Uint64(b), errs.Success
}

// DecodeI64 reads a little-endian i64 at offset.
func (m *Memory) DecodeI64(offset uint32) (int64, errs.Errno) {
	u, errno := m.DecodeU64(offset)
	return int64(u), errno
}

// EncodeU8 writes a single byte at offset.
func (m *Memory) EncodeU8(offset uint32, v uint8) errs.Errno {
	b, ok := m.clamp(offset, 1)
	if !ok {
		return errs.Fault
	}
	b[0] = v
	return errs.Success
}

// EncodeU16 writes a little-endian u16 at offset.
func (m *Memory) EncodeU16(offset uint32, v uint16) errs.Errno {
	b, ok := m.clamp(offset, 2)
	if !ok {
		return errs.Fault
	}
	binary.LittleEndian.PutUint16(b, v)
	return errs.Success
}

// EncodeU32 writes a little-endian u32 at offset.
func (m *Memory) EncodeU32(offset uint32, v uint32) errs.Errno {
	b, ok := m.clamp(offset, 4)
	if !ok {
		return errs.Fault
	}
	binary.LittleEndian.PutUint32(b, v)
	return errs.Success
}

// EncodeU64 writes a little-endian u64 at offset.
func (m *Memory) EncodeU64(offset uint32, v uint64) errs.Errno {
	b, ok := m.clamp(offset, 8)
	if !ok {
		return errs.Fault
	}
	binary.LittleEndian.PutUint64(b, v)
	return errs.Success
}

// EncodeI64 writes a little-endian i64 at offset.
func (m *Memory) EncodeI64(offset uint32, v int64) errs.Errno {
	return m.EncodeU64(offset, uint64(v))
}

// Whence is the seek origin enum.
type Whence uint8

const (
	WhenceSet Whence = iota
	WhenceCur
	WhenceEnd
)

// DecodeWhence decodes and range-checks a seek-whence value.
func (m *Memory) DecodeWhence(offset uint32) (Whence, errs.Errno) {
	v, errno := m.DecodeU8(offset)
	if errno != errs.Success {
		return 0, errno
	}
	if v > uint8(WhenceEnd) {
		return 0, errs.Inval
	}
	return Whence(v), errs.Success
}

// Advice is the fd_advise posix_fadvise-style hint enum.
type Advice uint8

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
	AdviceDontNeed
	AdviceNoReuse
)

// DecodeAdvice decodes and range-checks an advice value.
func (m *Memory) DecodeAdvice(offset uint32) (Advice, errs.Errno) {
	v, errno := m.DecodeU8(offset)
	if errno != errs.Success {
		return 0, errno
	}
	if v > uint8(AdviceNoReuse) {
		return 0, errs.Inval
	}
	return Advice(v), errs.Success
}

// OpenFlags are the path_open O_* request flags.
type OpenFlags uint16

const (
	OpenCreat OpenFlags = 1 << iota
	OpenDirectory
	OpenExcl
	OpenTrunc
)

// DecodeOpenFlags decodes path_open's oflags argument.
func (m *Memory) DecodeOpenFlags(offset uint32) (OpenFlags, errs.Errno) {
	v, errno := m.DecodeU16(offset)
	if errno != errs.Success {
		return 0, errno
	}
	return OpenFlags(v), errs.Success
}

// LookupFlags control symlink-following during path resolution.
type LookupFlags uint32

const LookupSymlinkFollow LookupFlags = 1

// DecodeLookupFlags decodes a path-taking syscall's lookup flags.
func (m *Memory) DecodeLookupFlags(offset uint32) (LookupFlags, errs.Errno) {
	v, errno := m.DecodeU32(offset)
	if errno != errs.Success {
		return 0, errno
	}
	return LookupFlags(v), errs.Success
}

// DecodeRights decodes a 64-bit rights mask. Every bit is a
// recognized right (the mask has no reserved bits), so no
// out-of-range rejection is needed beyond the generic bounds check.
func (m *Memory) DecodeRights(offset uint32) (rights.Rights, errs.Errno) {
	v, errno := m.DecodeU64(offset)
	if errno != errs.Success {
		return 0, errno
	}
	return rights.Rights(v), errs.Success
}

// EncodeRights encodes a rights mask.
func (m *Memory) EncodeRights(offset uint32, r rights.Rights) errs.Errno {
	return m.EncodeU64(offset, uint64(r))
}

// FDFlags are the fd_fdstat_set_flags argument bits.
type FDFlags uint16

const (
	FDFlagAppend FDFlags = 1 << iota
	FDFlagDsync
	FDFlagNonblock
	FDFlagRsync
	FDFlagSync
)

// DecodeFDFlags decodes an fdstat flags value.
func (m *Memory) DecodeFDFlags(offset uint32) (FDFlags, errs.Errno) {
	v, errno := m.DecodeU16(offset)
	if errno != errs.Success {
		return 0, errno
	}
	return FDFlags(v), errs.Success
}

// EncodeFDFlags encodes an fdstat flags value.
func (m *Memory) EncodeFDFlags(offset uint32, f FDFlags) errs.Errno {
	return m.EncodeU16(offset, uint16(f))
}

// DirCookie is the opaque fd_readdir resume offset.
type DirCookie uint64

// DecodeDirCookie decodes a directory cookie.
func (m *Memory) DecodeDirCookie(offset uint32) (DirCookie, errs.Errno) {
	v, errno := m.DecodeU64(offset)
	return DirCookie(v), errno
}

// ClockID identifies which clock a clock_res_get/clock_time_get/
// subscription call refers to.
type ClockID uint32

const (
	ClockRealtime ClockID = iota
	ClockMonotonic
	ClockProcessCputimeID
	ClockThreadCputimeID
)

// DecodeClockID decodes and range-checks a clock id.
func (m *Memory) DecodeClockID(offset uint32) (ClockID, errs.Errno) {
	v, errno := m.DecodeU32(offset)
	if errno != errs.Success {
		return 0, errno
	}
	if v > uint32(ClockThreadCputimeID) {
		return 0, errs.Inval
	}
	return ClockID(v), errs.Success
}

// DecodeHandle decodes a 32-bit guest handle.
func (m *Memory) DecodeHandle(offset uint32) (uint32, errs.Errno) {
	return m.DecodeU32(offset)
}

// EncodeHandle encodes a 32-bit guest handle.
func (m *Memory) EncodeHandle(offset uint32, h uint32) errs.Errno {
	return m.EncodeU32(offset, h)
}

// Filesize is a 64-bit file size or offset.
type Filesize = uint64

// Timestamp is nanoseconds since a clock's epoch.
type Timestamp = uint64
