package sandbox

import (
	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
)

// ArgsSizesGet implements args_sizes_get: returns the argument
// count and the total size, in bytes, of the NUL-terminated argument
// strings laid out back to back.
func (c *Context) ArgsSizesGet() (count, bufSize uint32) {
	return uint32(len(c.Args)), stringsBufSize(c.Args)
}

// ArgsGet implements args_get: writes an array of guest pointers at
// argvOffset (one u32 per argument) and the NUL-terminated argument
// bytes themselves at argvBufOffset.
func (c *Context) ArgsGet(mem *abi.Memory, argvOffset, argvBufOffset uint32) errs.Errno {
	return encodeStringTable(mem, c.Args, argvOffset, argvBufOffset)
}

// EnvironSizesGet implements environ_sizes_get.
func (c *Context) EnvironSizesGet() (count, bufSize uint32) {
	return uint32(len(c.Environ)), stringsBufSize(c.Environ)
}

// EnvironGet implements environ_get.
func (c *Context) EnvironGet(mem *abi.Memory, environOffset, environBufOffset uint32) errs.Errno {
	return encodeStringTable(mem, c.Environ, environOffset, environBufOffset)
}

func stringsBufSize(strs []string) uint32 {
	var n uint32
	for _, s := range strs {
		n += uint32(len(s)) + 1 // NUL terminator
	}
	return n
}

// encodeStringTable writes len(strs) pointers at ptrOffset and the
// NUL-terminated string bytes at bufOffset, pointers referring into
// that same buffer, matching the args_get/environ_get ABI contract.
// It fails with Overflow if either region would extend past the
// 32-bit guest address space.
func encodeStringTable(mem *abi.Memory, strs []string, ptrOffset, bufOffset uint32) errs.Errno {
	const addrSpace = uint64(1) << 32
	var bufTotal uint64
	for _, s := range strs {
		bufTotal += uint64(len(s)) + 1
	}
	if uint64(ptrOffset)+uint64(len(strs))*4 > addrSpace || uint64(bufOffset)+bufTotal > addrSpace {
		return errs.Overflow
	}
	cursor := bufOffset
	for i, s := range strs {
		if errno := mem.EncodeU32(ptrOffset+uint32(i)*4, cursor); errno != errs.Success {
			return errno
		}
		if errno := mem.EncodeBytes(cursor, []byte(s)); errno != errs.Success {
			return errno
		}
		cursor += uint32(len(s))
		if errno := mem.EncodeU8(cursor, 0); errno != errs.Success {
			return errno
		}
		cursor++
	}
	return errs.Success
}
