package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastSealer(t *testing.T, pass string) *Sealer {
	t.Helper()
	s, err := NewSealer(pass)
	require.NoError(t, err)
	s.iterations = 1000
	return s
}

func TestSealOpen(t *testing.T) {
	s := fastSealer(t, "correct horse")
	blob, err := s.Seal([]byte("V021user,pass"))
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "user")

	got, err := s.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "V021user,pass", string(got))
}

func TestSealIsRandomised(t *testing.T) {
	s := fastSealer(t, "pw")
	a, err := s.Seal([]byte("x"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("x"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenWrongPassphrase(t *testing.T) {
	blob, err := fastSealer(t, "one").Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = fastSealer(t, "two").Open(blob)
	require.ErrorContains(t, err, "wrong passphrase")
}

func TestOpenRejectsBadInput(t *testing.T) {
	s := fastSealer(t, "pw")
	_, err := s.Open([]byte("not json"))
	require.Error(t, err)
	_, err = s.Open([]byte(`{"version":9}`))
	require.ErrorContains(t, err, "unsupported version")
	_, err = s.Open([]byte(`{"version":1,"salt":"%%"}`))
	require.ErrorContains(t, err, "salt")
}

func TestNewSealerEmptyPassphrase(t *testing.T) {
	_, err := NewSealer("")
	require.Error(t, err)
}

func TestCredentialsRoundTripThroughFile(t *testing.T) {
	s := fastSealer(t, "pw")
	creds := Credentials{
		VIP:       Login{Username: "vipuser", Password: "v1p"},
		Betfair:   Login{Username: "bf", Password: "b^f"},
		Execution: Login{Username: "exec", Password: "e"},
	}
	blob, err := s.SealCredentials(creds)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "creds.sealed")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := s.LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	_, err = s.LoadCredentials(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
