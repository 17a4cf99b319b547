package extractor

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestSystemCommandRunner_StreamsLines(t *testing.T) {
	requireShell(t)
	runner := &SystemCommandRunner{}

	var lines []string
	output, err := runner.RunWithOutputAndContext(context.Background(),
		[]string{"sh", "-c", `printf 'one\ntwo\r\nthree'; echo oops >&2`},
		func(line string) { lines = append(lines, line) })

	require.NoError(t, err)
	assert.Equal(t, 0, output.ExitCode)
	assert.Equal(t, []string{"one", "two", "three"}, lines)
	assert.Equal(t, "oops\n", output.Stderr)
}

func TestSystemCommandRunner_ExitCode(t *testing.T) {
	requireShell(t)
	runner := &SystemCommandRunner{}

	output, err := runner.RunWithOutputAndContext(context.Background(),
		[]string{"sh", "-c", "echo 'ERROR: nope' >&2; exit 3"}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, output.ExitCode)
	assert.Contains(t, output.Stderr, "ERROR: nope")
}

func TestSystemCommandRunner_Timeout(t *testing.T) {
	requireShell(t)
	runner := &SystemCommandRunner{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	output, err := runner.RunWithOutputAndContext(ctx, []string{"sh", "-c", "sleep 5"}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, output.ExitCode)
}

func TestSystemCommandRunner_MissingBinary(t *testing.T) {
	runner := &SystemCommandRunner{}

	output, err := runner.RunWithOutputAndContext(context.Background(), []string{"definitely-not-a-real-binary-xyz"}, nil)

	require.Error(t, err)
	assert.Equal(t, -1, output.ExitCode)
}

func TestSystemCommandRunner_EmptyCommand(t *testing.T) {
	_, err := (&SystemCommandRunner{}).RunWithOutputAndContext(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestLimitedBuffer(t *testing.T) {
	buf := &limitedBuffer{limit: 10}

	n, err := buf.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = buf.Write([]byte("world, this is long"))
	require.NoError(t, err)
	assert.Equal(t, 19, n, "writes report full length")
	assert.Equal(t, "helloworld", buf.String())

	n, _ = buf.Write([]byte("more"))
	assert.Equal(t, 4, n)
	assert.Equal(t, 10, buf.Len())
}

func TestLineWriter_SplitsAcrossWrites(t *testing.T) {
	var lines []string
	w := &lineWriter{fn: func(s string) { lines = append(lines, s) }}

	w.Write([]byte("par"))
	w.Write([]byte("tial\nnext"))
	w.Write([]byte(" line\n\nlast"))
	w.flush()

	assert.Equal(t, []string{"partial", "next line", "", "last"}, lines)
}

func TestLineWriter_CapsLongLines(t *testing.T) {
	// Given a writer limited to 8 bytes per line
	var lines []string
	w := &lineWriter{limit: 8, fn: func(s string) { lines = append(lines, s) }}

	// When a line without a newline keeps growing
	n, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	w.Write([]byte("abcdef"))
	assert.Len(t, w.pending, 8)

	// Then it is cut at the limit and the next line starts clean
	w.Write([]byte("xyz\nok\n"))
	assert.Equal(t, []string{"01234567", "ok"}, lines)
}
