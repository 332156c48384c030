package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCommandMasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: warn
ai:
  provider: mock
  apiKey: sk-secret
auth:
  tokens:
    - token: tok-1
      userId: user-1
`), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "provider: mock")
	assert.Contains(t, out.String(), "user-1")
	assert.Contains(t, out.String(), "[redacted]")
	assert.NotContains(t, out.String(), "sk-secret")
	assert.NotContains(t, out.String(), "tok-1")
}

func TestConfigCommandRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ai:\n  provider: nope\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "--config", path})
	assert.Error(t, cmd.Execute())
}
