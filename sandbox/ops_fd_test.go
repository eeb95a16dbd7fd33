package sandbox

import (
	"testing"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/descriptor"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestFile(t *testing.T, ctx *Context, dirfd uint32, name string, oflags abi.OpenFlags) uint32 {
	t.Helper()
	h, errno := ctx.PathOpen(dirfd, abi.LookupSymlinkFollow, name, oflags, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno, "PathOpen(%s): %s", name, errno)
	return h
}

func putIovec(mem *abi.Memory, iovecOffset, dataOffset uint32, data []byte) {
	_ = mem.EncodeU32(iovecOffset, dataOffset)
	_ = mem.EncodeU32(iovecOffset+4, uint32(len(data)))
	_ = mem.EncodeBytes(dataOffset, data)
}

func TestFDCloseThenGetFailsBadF(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	require.Equal(t, errs.Success, ctx.FDClose(h))
	_, errno := ctx.Table.Get(h, 0, 0)
	assert.Equal(t, errs.BadF, errno)
}

func TestFDCloseRefusesPreopen(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	assert.Equal(t, errs.NotSup, ctx.FDClose(preopenHandle))

	_, errno := ctx.Table.Get(preopenHandle, rights.PathOpen, 0)
	assert.Equal(t, errs.Success, errno, "preopen handle stays usable after a refused fd_close")
}

func TestFDRenumberMovesEntryAndFreesSource(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	require.Equal(t, errs.Success, ctx.FDRenumber(h, 50))
	_, errno := ctx.Table.Get(h, 0, 0)
	assert.Equal(t, errs.BadF, errno)
	_, errno = ctx.Table.Get(50, 0, 0)
	assert.Equal(t, errs.Success, errno)
}

func TestFDFdstatSetRightsNarrowsThenWriteFails(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	readOnly := rights.FDRead | rights.FDSeek | rights.FDTell
	require.Equal(t, errs.Success, ctx.FDFdstatSetRights(h, readOnly, 0))

	mem := newMemory(64)
	putIovec(mem, 0, 16, []byte("hi"))
	_, errno := ctx.FDWrite(mem, h, 0, 1)
	assert.Equal(t, errs.NotCapable, errno, "fd_write must fail after rights have been narrowed away")
}

func TestFDFdstatSetRightsRejectsWidening(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)
	require.Equal(t, errs.Success, ctx.FDFdstatSetRights(h, rights.FDRead, 0))

	errno := ctx.FDFdstatSetRights(h, rights.FDRead|rights.FDWrite, 0)
	assert.Equal(t, errs.NotCapable, errno)
}

func TestFDWriteThenFDReadRoundTrips(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	mem := newMemory(256)
	putIovec(mem, 0, 32, []byte("hello"))
	n, errno := ctx.FDWrite(mem, h, 0, 1)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint32(5), n)

	_, errno = ctx.FDSeek(h, 0, abi.WhenceSet)
	require.Equal(t, errs.Success, errno)

	putIovec(mem, 64, 96, make([]byte, 5))
	n, errno = ctx.FDRead(mem, h, 64, 1)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint32(5), n)
	got, _ := mem.DecodeBytes(96, 5)
	assert.Equal(t, []byte("hello"), got)
}

func TestFDPwriteThenFDPreadDoNotMoveCursor(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	mem := newMemory(256)
	putIovec(mem, 0, 32, []byte("world"))
	_, errno := ctx.FDPwrite(mem, h, 0, 1, 10)
	require.Equal(t, errs.Success, errno)

	pos, errno := ctx.FDTell(h)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint64(0), pos, "fd_pwrite must not advance the file position")

	putIovec(mem, 64, 96, make([]byte, 5))
	n, errno := ctx.FDPread(mem, h, 64, 1, 10)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint32(5), n)
	got, _ := mem.DecodeBytes(96, 5)
	assert.Equal(t, []byte("world"), got)
}

func TestFDSeekTellOnlyNeedsTellRight(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)
	require.Equal(t, errs.Success, ctx.FDFdstatSetRights(h, rights.FDTell, 0))

	_, errno := ctx.FDSeek(h, 0, abi.WhenceCur)
	assert.Equal(t, errs.Success, errno)

	_, errno = ctx.FDSeek(h, 5, abi.WhenceSet)
	assert.Equal(t, errs.NotCapable, errno, "a real seek needs fd_seek, not just fd_tell")
}

func TestFDAllocateGrowsOnlyWhenLarger(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	require.Equal(t, errs.Success, ctx.FDAllocate(h, 0, 100))

	mem := newMemory(128)
	require.Equal(t, errs.Success, ctx.FDFilestatGet(mem, h, 0))
	stat, errno := mem.DecodeFilestat(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint64(100), stat.Size)

	require.Equal(t, errs.Success, ctx.FDAllocate(h, 0, 10))
	require.Equal(t, errs.Success, ctx.FDFilestatGet(mem, h, 0))
	stat, _ = mem.DecodeFilestat(0)
	assert.Equal(t, uint64(100), stat.Size, "fd_allocate must not shrink an already-larger file")
}

func TestFDFilestatSetSizeTruncates(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	mem := newMemory(256)
	putIovec(mem, 0, 32, []byte("0123456789"))
	_, errno := ctx.FDWrite(mem, h, 0, 1)
	require.Equal(t, errs.Success, errno)

	require.Equal(t, errs.Success, ctx.FDFilestatSetSize(h, 3))
	require.Equal(t, errs.Success, ctx.FDFilestatGet(mem, h, 128))
	stat, _ := mem.DecodeFilestat(128)
	assert.Equal(t, uint64(3), stat.Size)
}

func TestFDAdviseAndSyncAreNoOpsOnBorrowedStreams(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	h := uint32(99)
	ctx.Table.Preseed(h, descriptor.Entry{
		Descriptor: descriptor.Descriptor{Kind: descriptor.KindStdout},
		RightsBase: rights.All,
	})

	assert.Equal(t, errs.Success, ctx.FDAdvise(h, 0, 0, abi.AdviceNormal))
	assert.Equal(t, errs.Success, ctx.FDSync(h))
	assert.Equal(t, errs.Success, ctx.FDDatasync(h))
	assert.Equal(t, errs.NotSup, ctx.FDAllocate(h, 0, 1))
}

func TestFDFdstatGetReportsFileType(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h := openTestFile(t, ctx, preopenHandle, "f", abi.OpenCreat)

	mem := newMemory(64)
	require.Equal(t, errs.Success, ctx.FDFdstatGet(mem, h, 0))
	stat, errno := mem.DecodeFdstat(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, abi.FileTypeRegularFile, stat.FileType)
}
