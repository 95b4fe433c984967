package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/crypto"
)

func TestRunSealsCredentials(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "creds.json")
	out := filepath.Join(dir, "creds.sealed")
	require.NoError(t, os.WriteFile(in, []byte(`{"vip":{"username":"feeduser","password":"s3cret"}}`), 0o600))

	require.NoError(t, run(in, out, "correct horse"))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	sealer, err := crypto.NewSealer("correct horse")
	require.NoError(t, err)
	creds, err := sealer.LoadCredentials(out)
	require.NoError(t, err)
	assert.Equal(t, "feeduser", creds.VIP.Username)
	assert.Equal(t, "s3cret", creds.VIP.Password)
	assert.Empty(t, creds.Execution.Username)
}

func TestRunRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"vipp":{}}`), 0o600))

	err := run(in, filepath.Join(dir, "out"), "pass")
	require.Error(t, err)
}

func TestRunRequiresPassphrase(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(in, []byte(`{}`), 0o600))

	require.Error(t, run(in, filepath.Join(dir, "out"), ""))
}
