package command_test

import (
	"bufio"
	"context"
	"os/exec"
	"testing"
	"time"

	"codeberg.org/mutker/monitord/internal/command"
	"codeberg.org/mutker/monitord/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunOutput(t *testing.T) {
	requireShell(t)

	out, err := command.NewExec(time.Second).Run(context.Background(), "sh", "-c", "echo 42")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)

	_, err := command.NewExec(50*time.Millisecond).Run(context.Background(), "sh", "-c", "sleep 2")
	require.Error(t, err)
	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(err))
}

func TestRunIgnoresStderr(t *testing.T) {
	requireShell(t)

	out, err := command.NewExec(time.Second).Run(context.Background(), "sh", "-c", "echo 'persistence mode is disabled' >&2; echo 37")
	require.NoError(t, err)
	assert.Equal(t, "37\n", out)
}

func TestRunFailureCarriesStderr(t *testing.T) {
	requireShell(t)

	out, err := command.NewExec(time.Second).Run(context.Background(), "sh", "-c", "echo partial; echo 'no devices' >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, command.ErrCommandFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "no devices")
	assert.Equal(t, "partial\n", out)
}

func TestRunTimeoutKeepsOutput(t *testing.T) {
	requireShell(t)

	start := time.Now()
	out, err := command.NewExec(200*time.Millisecond).Run(context.Background(), "sh", "-c", "while :; do echo sample; sleep 0.05; done")
	require.Error(t, err)
	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(err))
	assert.Contains(t, out, "sample\n")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunMissingProgram(t *testing.T) {
	_, err := command.NewExec(time.Second).Run(context.Background(), "monitord-no-such-program")
	require.Error(t, err)
	assert.Equal(t, command.ErrCommandFailed, errors.CodeOf(err))
}

func TestStreamLines(t *testing.T) {
	requireShell(t)

	s, err := command.NewExec(time.Second).Stream(context.Background(), "sh", "-c", "printf 'a\\nb\\n'")
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(s)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	assert.Equal(t, []string{"a", "b"}, lines)
	assert.NoError(t, s.Wait())
	assert.NoError(t, s.Close())
}

func TestDefaultTimeout(t *testing.T) {
	assert.Equal(t, command.DefaultTimeout, command.NewExec(0).Timeout)
}
