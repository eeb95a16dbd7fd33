package abi

import (
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
)

// FileType is the descriptor's kind as seen by the guest.
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeBlockDevice
	FileTypeCharacterDevice
	FileTypeDirectory
	FileTypeRegularFile
	FileTypeSocketDgram
	FileTypeSocketStream
	FileTypeSymbolicLink
)

// Fdstat mirrors the wire-level 24-byte fdstat record.
type Fdstat struct {
	FileType         FileType
	Flags            FDFlags
	RightsBase       rights.Rights
	RightsInheriting rights.Rights
}

// EncodeFdstat writes an Fdstat at offset, field-by-field, in the
// ABI's documented layout: filetype(u8) @0, pad @1-1, flags(u16) @2,
// pad @4-7, rights_base(u64) @8, rights_inheriting(u64) @16. 24 bytes
// total.
func (m *Memory) EncodeFdstat(offset uint32, s Fdstat) errs.Errno {
	if errno := m.EncodeU8(offset+0, uint8(s.FileType)); errno != errs.Success {
		return errno
	}
	if errno := m.EncodeU16(offset+2, uint16(s.Flags)); errno != errs.Success {
		return errno
	}
	if errno := m.EncodeU64(offset+8, uint64(s.RightsBase)); errno != errs.Success {
		return errno
	}
	return m.EncodeU64(offset+16, uint64(s.RightsInheriting))
}

// DecodeFdstat is the inverse of EncodeFdstat; provided for encode/
// decode symmetry testing and for guests that write an fdstat to
// request a narrowing via fd_fdstat_set_rights.
func (m *Memory) DecodeFdstat(offset uint32) (Fdstat, errs.Errno) {
	var s Fdstat
	ft, errno := m.DecodeU8(offset + 0)
	if errno != errs.Success {
		return s, errno
	}
	flags, errno := m.DecodeU16(offset + 2)
	if errno != errs.Success {
		return s, errno
	}
	base, errno := m.DecodeU64(offset + 8)
	if errno != errs.Success {
		return s, errno
	}
	inheriting, errno := m.DecodeU64(offset + 16)
	if errno != errs.Success {
		return s, errno
	}
	s.FileType = FileType(ft)
	s.Flags = FDFlags(flags)
	s.RightsBase = rights.Rights(base)
	s.RightsInheriting = rights.Rights(inheriting)
	return s, errs.Success
}

// Filestat mirrors the wire-level 64-byte filestat record.
type Filestat struct {
	Dev      uint64
	Ino      uint64
	Filetype FileType
	Nlink    uint64
	Size     Filesize
	Atim     Timestamp
	Mtim     Timestamp
	Ctim     Timestamp
}

// EncodeFilestat writes a Filestat at offset: dev(u64)@0, ino(u64)@8,
// filetype(u8)@16 + 7 bytes padding, nlink(u64)@24, size(u64)@32,
// atim(u64)@40, mtim(u64)@48, ctim(u64)@56. 64 bytes total.
func (m *Memory) EncodeFilestat(offset uint32, s Filestat) errs.Errno {
	for _, step := range []struct {
		off uint32
		v   uint64
	}{
		{0, s.Dev},
		{8, s.Ino},
		{24, s.Nlink},
		{32, s.Size},
		{40, s.Atim},
		{48, s.Mtim},
		{56, s.Ctim},
	} {
		if errno := m.EncodeU64(offset+step.off, step.v); errno != errs.Success {
			return errno
		}
	}
	return m.EncodeU8(offset+16, uint8(s.Filetype))
}

// DecodeFilestat is the inverse of EncodeFilestat.
func (m *Memory) DecodeFilestat(offset uint32) (Filestat, errs.Errno) {
	var s Filestat
	var errno errs.Errno
	if s.Dev, errno = m.DecodeU64(offset + 0); errno != errs.Success {
		return s, errno
	}
	if s.Ino, errno = m.DecodeU64(offset + 8); errno != errs.Success {
		return s, errno
	}
	ft, errno := m.DecodeU8(offset + 16)
	if errno != errs.Success {
		return s, errno
	}
	s.Filetype = FileType(ft)
	if s.Nlink, errno = m.DecodeU64(offset + 24); errno != errs.Success {
		return s, errno
	}
	if s.Size, errno = m.DecodeU64(offset + 32); errno != errs.Success {
		return s, errno
	}
	if s.Atim, errno = m.DecodeU64(offset + 40); errno != errs.Success {
		return s, errno
	}
	if s.Mtim, errno = m.DecodeU64(offset + 48); errno != errs.Success {
		return s, errno
	}
	if s.Ctim, errno = m.DecodeU64(offset + 56); errno != errs.Success {
		return s, errno
	}
	return s, errs.Success
}

// Prestat mirrors the wire-level 8-byte tagged prestat record. Only the
// "directory" tag is defined by this ABI.
type Prestat struct {
	NameLen uint32
}

const prestatTagDir uint8 = 0

// EncodePrestat writes tag(u8)@0 + 3 bytes padding, pr_name_len(u32)@4.
// 8 bytes total.
func (m *Memory) EncodePrestat(offset uint32, p Prestat) errs.Errno {
	if errno := m.EncodeU8(offset+0, prestatTagDir); errno != errs.Success {
		return errno
	}
	return m.EncodeU32(offset+4, p.NameLen)
}

// DecodePrestat is the inverse of EncodePrestat; rejects any tag other
// than "directory" as invalid-argument since this ABI never produces
// another kind.
func (m *Memory) DecodePrestat(offset uint32) (Prestat, errs.Errno) {
	tag, errno := m.DecodeU8(offset + 0)
	if errno != errs.Success {
		return Prestat{}, errno
	}
	if tag != prestatTagDir {
		return Prestat{}, errs.Inval
	}
	nameLen, errno := m.DecodeU32(offset + 4)
	if errno != errs.Success {
		return Prestat{}, errno
	}
	return Prestat{NameLen: nameLen}, errs.Success
}

// SubscriptionKind tags a Subscription's union.
type SubscriptionKind uint8

const (
	SubscriptionClock SubscriptionKind = iota
	SubscriptionFDRead
	SubscriptionFDWrite
)

// SubscriptionClockFlags controls whether a clock subscription's
// timeout is absolute or relative.
type SubscriptionClockFlags uint16

const SubscriptionClockAbsolute SubscriptionClockFlags = 1

// Subscription mirrors the wire-level 48-byte subscription record.
type Subscription struct {
	Userdata uint64
	Kind     SubscriptionKind

	// Clock fields, valid when Kind == SubscriptionClock.
	ClockID   ClockID
	Timeout   Timestamp
	Precision Timestamp
	Flags     SubscriptionClockFlags

	// FD field, valid when Kind is SubscriptionFDRead/SubscriptionFDWrite.
	FD uint32
}

// Layout: userdata(u64)@0, tag(u8)@8 + 7 bytes padding, union body @16
// (32 bytes): for clock, clock_id(u32)@16, pad@20, timeout(u64)@24,
// precision(u64)@32, flags(u16)@40; for fd_read/fd_write, fd(u32)@16.
// 48 bytes total.
func (m *Memory) EncodeSubscription(offset uint32, s Subscription) errs.Errno {
	if errno := m.EncodeU64(offset+0, s.Userdata); errno != errs.Success {
		return errno
	}
	if errno := m.EncodeU8(offset+8, uint8(s.Kind)); errno != errs.Success {
		return errno
	}

	switch s.Kind {
	case SubscriptionClock:
		if errno := m.EncodeU32(offset+16, uint32(s.ClockID)); errno != errs.Success {
			return errno
		}
		if errno := m.EncodeU64(offset+24, s.Timeout); errno != errs.Success {
			return errno
		}
		if errno := m.EncodeU64(offset+32, s.Precision); errno != errs.Success {
			return errno
		}
		return m.EncodeU16(offset+40, uint16(s.Flags))
	case SubscriptionFDRead, SubscriptionFDWrite:
		return m.EncodeU32(offset+16, s.FD)
	default:
		return errs.Inval
	}
}

// DecodeSubscription is the inverse of EncodeSubscription.
func (m *Memory) DecodeSubscription(offset uint32) (Subscription, errs.Errno) {
	var s Subscription
	userdata, errno := m.DecodeU64(offset + 0)
	if errno != errs.Success {
		return s, errno
	}
	s.Userdata = userdata

	kind, errno := m.DecodeU8(offset + 8)
	if errno != errs.Success {
		return s, errno
	}
	s.Kind = SubscriptionKind(kind)

	switch s.Kind {
	case SubscriptionClock:
		clockID, errno := m.DecodeU32(offset + 16)
		if errno != errs.Success {
			return s, errno
		}
		if clockID > uint32(ClockThreadCputimeID) {
			return s, errs.Inval
		}
		s.ClockID = ClockID(clockID)
		if s.Timeout, errno = m.DecodeU64(offset + 24); errno != errs.Success {
			return s, errno
		}
		if s.Precision, errno = m.DecodeU64(offset + 32); errno != errs.Success {
			return s, errno
		}
		flags, errno := m.DecodeU16(offset + 40)
		if errno != errs.Success {
			return s, errno
		}
		s.Flags = SubscriptionClockFlags(flags)
	case SubscriptionFDRead, SubscriptionFDWrite:
		fd, errno := m.DecodeU32(offset + 16)
		if errno != errs.Success {
			return s, errno
		}
		s.FD = fd
	default:
		return s, errs.Inval
	}

	return s, errs.Success
}

// Event mirrors the wire-level 32-byte event record.
type Event struct {
	Userdata uint64
	Error    errs.Errno
	Kind     SubscriptionKind
	FDFlags  uint16 // hangup bit etc., populated for fd_read/fd_write events
	NBytes   Filesize
}

const eventFDReadwriteHangup uint16 = 1

// HangupFlag returns the fd_readwrite event's EVENTRWFLAGS_FD_CLOSED
// bit per the error-first event layout.
func (e Event) HangupFlag() bool { return e.FDFlags&eventFDReadwriteHangup != 0 }

// Layout: userdata(u64)@0, error(u16)@8, type(u8)@10 + 5 bytes padding,
// union body @16 (16 bytes): for fd_read/fd_write, nbytes(u64)@16,
// flags(u16)@24. 32 bytes total.
func (m *Memory) EncodeEvent(offset uint32, e Event) errs.Errno {
	if errno := m.EncodeU64(offset+0, e.Userdata); errno != errs.Success {
		return errno
	}
	if errno := m.EncodeU16(offset+8, uint16(e.Error)); errno != errs.Success {
		return errno
	}
	if errno := m.EncodeU8(offset+10, uint8(e.Kind)); errno != errs.Success {
		return errno
	}
	if e.Kind == SubscriptionClock {
		return errs.Success
	}
	if errno := m.EncodeU64(offset+16, e.NBytes); errno != errs.Success {
		return errno
	}
	return m.EncodeU16(offset+24, e.FDFlags)
}

// DecodeEvent is the inverse of EncodeEvent.
func (m *Memory) DecodeEvent(offset uint32) (Event, errs.Errno) {
	var e Event
	userdata, errno := m.DecodeU64(offset + 0)
	if errno != errs.Success {
		return e, errno
	}
	e.Userdata = userdata

	errVal, errno := m.DecodeU16(offset + 8)
	if errno != errs.Success {
		return e, errno
	}
	e.Error = errs.Errno(errVal)

	kind, errno := m.DecodeU8(offset + 10)
	if errno != errs.Success {
		return e, errno
	}
	e.Kind = SubscriptionKind(kind)

	if e.Kind != SubscriptionClock {
		nbytes, errno := m.DecodeU64(offset + 16)
		if errno != errs.Success {
			return e, errno
		}
		e.NBytes = nbytes
		flags, errno := m.DecodeU16(offset + 24)
		if errno != errs.Success {
			return e, errno
		}
		e.FDFlags = flags
	}

	return e, errs.Success
}

// Dirent mirrors fd_readdir's 24-byte-header-plus-name record.
type Dirent struct {
	Next    DirCookie
	Ino     uint64
	Type    FileType
	Name    string
}

// DirentHeaderSize is the fixed portion preceding the variable-length
// name.
const DirentHeaderSize = 24

// EncodeDirentHeader writes the 24-byte fixed header: d_next(u64)@0,
// d_ino(u64)@8, d_namlen(u32)@16, d_type(u8)@20 + 3 bytes padding. The
// name bytes themselves are written separately by the caller via
// EncodeBytes, since a partial tail entry must be dropped
// rather than split mid-record — the caller decides whether there is
// room for header+name before writing either.
func (m *Memory) EncodeDirentHeader(offset uint32, d Dirent) errs.Errno {
	if errno := m.EncodeU64(offset+0, uint64(d.Next)); errno != errs.Success {
		return errno
	}
	if errno := m.EncodeU64(offset+8, d.Ino); errno != errs.Success {
		return errno
	}
	if errno := m.EncodeU32(offset+16, uint32(len(d.Name))); errno != errs.Success {
		return errno
	}
	return m.EncodeU8(offset+20, uint8(d.Type))
}

// EncodeBytes copies raw bytes into the guest memory at offset,
// failing with Fault if they would not fit.
func (m *Memory) EncodeBytes(offset uint32, data []byte) errs.Errno {
	dst, ok := m.clamp(offset, uint32(len(data)))
	if !ok {
		return errs.Fault
	}
	copy(dst, data)
	return errs.Success
}

// DecodeBytes returns a borrowed view of count bytes at offset.
func (m *Memory) DecodeBytes(offset, count uint32) ([]byte, errs.Errno) {
	b, ok := m.clamp(offset, count)
	if !ok {
		return nil, errs.Fault
	}
	return b, errs.Success
}
