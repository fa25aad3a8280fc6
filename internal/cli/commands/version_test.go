package commands

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapmetrics/pkg/adapters/sqlite"
)

func runVersion(t *testing.T, version string, args ...string) string {
	t.Helper()
	cmd := NewVersionCommand(version)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	out := runVersion(t, "0.3.0")
	assert.Contains(t, out, "leapmetrics 0.3.0")
	assert.Contains(t, out, "go: "+runtime.Version())
	assert.Contains(t, out, "adapters: ")
	assert.Contains(t, out, "sqlite")
}

func TestVersionCommand_Short(t *testing.T) {
	assert.Equal(t, "dev\n", runVersion(t, "dev", "--short"))
}

func TestVersionCommand_RejectsArgs(t *testing.T) {
	cmd := NewVersionCommand("dev")
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.Execute())
}
