package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marmistrz/wasi-common/abi"
	"github.com/marmistrz/wasi-common/errs"
	"github.com/marmistrz/wasi-common/rights"
	"github.com/stretchr/testify/require"
)

// newTestContext builds a Context with one preopen at handle 3
// rooted at a fresh temporary directory, granted every defined
// right, mirroring the shape a real embedder's bootstrap produces.
func newTestContext(t *testing.T) (*Context, string, uint32) {
	t.Helper()
	root := t.TempDir()
	ctx := New([]string{"prog", "arg0"}, []string{"HOME=/guest"})
	t.Cleanup(ctx.Close)

	h, errno := ctx.AddPreopen("/sandbox", root, rights.All, rights.All)
	require.Equal(t, errs.Success, errno, "AddPreopen: %s", errno)
	return ctx, root, h
}

func newMemory(size int) *abi.Memory {
	return abi.NewMemory(make([]byte, size))
}

func writeHostFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}
