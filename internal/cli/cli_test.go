package cli

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hiremind/authsync/internal/identity/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer

	err := runDemo(context.Background(), &out, "demo@example.com", "secret1")

	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), "conflict for demo@example.com")
	assert.Contains(t, out.String(), "has providers [password google]")
}

func TestProviderStateFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	first := local.New(local.Options{Secret: "s", Issuer: "i"})
	created, err := first.CreateAccount(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, saveProviderState(first, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second := local.New(local.Options{Secret: "s", Issuer: "i"})
	require.NoError(t, loadProviderState(second, path))
	restored := second.CurrentAccount()
	require.NotNil(t, restored)
	assert.Equal(t, created.Subject, restored.Subject)

	t.Run("MissingFileMeansSignedOut", func(t *testing.T) {
		fresh := local.New(local.Options{Secret: "s", Issuer: "i"})
		require.NoError(t, loadProviderState(fresh, filepath.Join(t.TempDir(), "none.json")))
		assert.Nil(t, fresh.CurrentAccount())
	})
}

func TestPromptLine(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("  alice@example.com \nlast"))

	first, err := promptLine(in, &out, "Email: ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", first)
	assert.Equal(t, "Email: ", out.String())

	last, err := promptLine(in, &out, "Name: ")
	require.NoError(t, err)
	assert.Equal(t, "last", last)

	_, err = promptLine(in, &out, "More: ")
	assert.Error(t, err)
}
