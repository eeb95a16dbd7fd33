package sandbox

import (
	"testing"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathOpenCreatesThenOpensExistingFile(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)

	h, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "f", abi.OpenCreat|abi.OpenExcl, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno)

	_, errno = ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "f", abi.OpenCreat|abi.OpenExcl, rights.All, rights.All, 0)
	assert.Equal(t, errs.Exist, errno, "O_CREAT|O_EXCL on an existing path must fail")

	h2, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "f", 0, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno)
	assert.NotEqual(t, h, h2)
}

func TestPathOpenRejectsCreateWithoutRight(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	narrow := rights.All &^ rights.PathCreateFile

	_, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "f", abi.OpenCreat, narrow, narrow, 0)
	assert.Equal(t, errs.NotCapable, errno)
}

func TestPathOpenChildRightsAreIntersectionOfRequestedAndParentInheriting(t *testing.T) {
	ctx := New(nil, nil)
	defer ctx.Close()
	root := t.TempDir()
	narrowInheriting := rights.FDRead | rights.PathOpen | rights.PathCreateFile
	preopenHandle, errno := ctx.AddPreopen("/sandbox", root, rights.All, narrowInheriting)
	require.Equal(t, errs.Success, errno)

	h, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "f", abi.OpenCreat, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno)

	mem := newMemory(64)
	require.Equal(t, errs.Success, ctx.FDFdstatGet(mem, h, 0))
	stat, errno := mem.DecodeFdstat(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, narrowInheriting, stat.RightsBase, "child base rights must be the intersection with the parent's inheriting mask, not the full request")
}

func TestPathOpenWithoutFollowOnSymlinkFails(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	require.Equal(t, errs.Success, ctx.PathSymlink("target", preopenHandle, "link"))

	_, errno := ctx.PathOpen(preopenHandle, 0, "link", 0, rights.All, rights.All, 0)
	assert.Equal(t, errs.Loop, errno)
}

func TestPathCreateAndRemoveDirectory(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)

	require.Equal(t, errs.Success, ctx.PathCreateDirectory(preopenHandle, "d"))
	h, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "d", abi.OpenDirectory, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, errs.Success, ctx.FDClose(h))

	require.Equal(t, errs.Success, ctx.PathRemoveDirectory(preopenHandle, "d"))
	_, errno = ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "d", abi.OpenDirectory, rights.All, rights.All, 0)
	assert.Equal(t, errs.NoEnt, errno)
}

func TestPathUnlinkFile(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	h, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "f", abi.OpenCreat, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, errs.Success, ctx.FDClose(h))

	require.Equal(t, errs.Success, ctx.PathUnlinkFile(preopenHandle, "f"))
	_, errno = ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "f", 0, rights.All, rights.All, 0)
	assert.Equal(t, errs.NoEnt, errno)
}

func TestPathUnlinkFileRefusesDirectory(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	require.Equal(t, errs.Success, ctx.PathCreateDirectory(preopenHandle, "d"))

	errno := ctx.PathUnlinkFile(preopenHandle, "d")
	assert.Equal(t, errs.IsDir, errno)
}

func TestPathLinkCreatesSecondName(t *testing.T) {
	ctx, root, preopenHandle := newTestContext(t)
	writeHostFile(t, root, "a", "content")

	require.Equal(t, errs.Success, ctx.PathLink(preopenHandle, false, "a", preopenHandle, "b"))

	h, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "b", 0, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno)

	mem := newMemory(128)
	require.Equal(t, errs.Success, ctx.FDFilestatGet(mem, h, 0))
	stat, _ := mem.DecodeFilestat(0)
	assert.Equal(t, uint64(2), stat.Nlink)
}

func TestPathRenameMovesEntry(t *testing.T) {
	ctx, root, preopenHandle := newTestContext(t)
	writeHostFile(t, root, "old", "x")

	require.Equal(t, errs.Success, ctx.PathRename(preopenHandle, "old", preopenHandle, "new"))

	_, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "old", 0, rights.All, rights.All, 0)
	assert.Equal(t, errs.NoEnt, errno)
	_, errno = ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "new", 0, rights.All, rights.All, 0)
	assert.Equal(t, errs.Success, errno)
}

func TestPathSymlinkThenReadlink(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	require.Equal(t, errs.Success, ctx.PathSymlink("target-of-link", preopenHandle, "link"))

	mem := newMemory(128)
	n, errno := ctx.PathReadlink(mem, preopenHandle, "link", 0, 64)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint32(len("target-of-link")), n)
	got, _ := mem.DecodeBytes(0, n)
	assert.Equal(t, "target-of-link", string(got))
}

func TestPathReadlinkZeroLengthBufferStillSucceeds(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	require.Equal(t, errs.Success, ctx.PathSymlink("somewhere", preopenHandle, "link"))

	mem := newMemory(64)
	n, errno := ctx.PathReadlink(mem, preopenHandle, "link", 0, 0)
	require.Equal(t, errs.Success, errno)
	assert.Zero(t, n)
}

func TestPathReadlinkTruncatesToBufferLength(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	require.Equal(t, errs.Success, ctx.PathSymlink("0123456789", preopenHandle, "link"))

	mem := newMemory(64)
	n, errno := ctx.PathReadlink(mem, preopenHandle, "link", 0, 4)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint32(4), n)
	got, _ := mem.DecodeBytes(0, 4)
	assert.Equal(t, "0123", string(got))
}

func TestPathFilestatGetFollowsOrNotPerFlag(t *testing.T) {
	ctx, root, preopenHandle := newTestContext(t)
	writeHostFile(t, root, "target", "content")
	require.Equal(t, errs.Success, ctx.PathSymlink("target", preopenHandle, "link"))

	mem := newMemory(128)
	require.Equal(t, errs.Success, ctx.PathFilestatGet(mem, preopenHandle, false, "link", 0))
	stat, _ := mem.DecodeFilestat(0)
	assert.Equal(t, abi.FileTypeSymbolicLink, stat.Filetype)

	require.Equal(t, errs.Success, ctx.PathFilestatGet(mem, preopenHandle, true, "link", 0))
	stat, _ = mem.DecodeFilestat(0)
	assert.Equal(t, abi.FileTypeRegularFile, stat.Filetype)
}

func TestPathFilestatSetTimesExplicit(t *testing.T) {
	ctx, root, preopenHandle := newTestContext(t)
	writeHostFile(t, root, "f", "x")

	const oneHourNs = uint64(3600) * 1e9
	errno := ctx.PathFilestatSetTimes(preopenHandle, true, "f", oneHourNs, oneHourNs, true, true, false, false)
	require.Equal(t, errs.Success, errno)

	mem := newMemory(128)
	require.Equal(t, errs.Success, ctx.PathFilestatGet(mem, preopenHandle, true, "f", 0))
	stat, _ := mem.DecodeFilestat(0)
	assert.Equal(t, oneHourNs, stat.Atim)
	assert.Equal(t, oneHourNs, stat.Mtim)
}
