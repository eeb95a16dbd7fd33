package abi

import "github.com/marmistrz/wasi-common/errs"

// iovecSize is the wire size of a single (ptr, len) pair: two u32s.
const iovecSize = 8

// DecodeIovecs decodes count consecutive iovec structs starting at
// offset, each a (guest_ptr u32, len u32) pair, and returns borrowed
// views into the backing memory for each one. The returned buffers are valid only for the duration of the
// current syscall.
func (m *Memory) DecodeIovecs(offset uint32, count uint32) ([][]byte, errs.Errno) {
	bufs := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		entryOff := offset + i*iovecSize
		ptr, errno := m.DecodeU32(entryOff)
		if errno != errs.Success {
			return nil, errs.Fault
		}
		ln, errno := m.DecodeU32(entryOff + 4)
		if errno != errs.Success {
			return nil, errs.Fault
		}
		buf, errno := m.View(ptr, ln)
		if errno != errs.Success {
			return nil, errs.Fault
		}
		bufs = append(bufs, buf)
	}
	return bufs, errs.Success
}

// TotalLen sums the length of a decoded iovec slice; used to bound
// reads and to report the zero-byte boundary case.
func TotalLen(bufs [][]byte) int {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	return total
}
