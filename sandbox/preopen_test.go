package sandbox

import (
	"testing"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPreopenRejectsNonDirectory(t *testing.T) {
	ctx := New(nil, nil)
	defer ctx.Close()

	root := t.TempDir()
	writeHostFile(t, root, "file.txt", "x")

	_, errno := ctx.AddPreopen("/guest", root+"/file.txt", rights.All, rights.All)
	assert.NotEqual(t, errs.Success, errno)
}

func TestAddPreopenExposesGuestPathNotHostPath(t *testing.T) {
	ctx, root, h := newTestContext(t)
	_ = root

	mem := newMemory(256)
	errno := ctx.FDPrestatGet(mem, h, 0)
	require.Equal(t, errs.Success, errno)

	pre, errno := mem.DecodePrestat(0)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, uint32(len("/sandbox")), pre.NameLen)

	errno = ctx.FDPrestatDirName(mem, h, 16, uint32(pre.NameLen))
	require.Equal(t, errs.Success, errno)
	name, errno := mem.DecodeBytes(16, pre.NameLen)
	require.Equal(t, errs.Success, errno)
	assert.Equal(t, "/sandbox", string(name))
}

func TestFDPrestatGetNotSupOnNonPreopen(t *testing.T) {
	ctx, _, preopenHandle := newTestContext(t)
	mem := newMemory(64)

	h, errno := ctx.PathOpen(preopenHandle, abi.LookupSymlinkFollow, "a-file", abi.OpenCreat, rights.All, rights.All, 0)
	require.Equal(t, errs.Success, errno)

	errno = ctx.FDPrestatGet(mem, h, 0)
	assert.Equal(t, errs.NotSup, errno)
}
