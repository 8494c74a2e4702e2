package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/gendocs/internal/scan"
)

func requireTool(t *testing.T, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix tools required")
	}
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func TestExecInvoker_Success(t *testing.T) {
	requireTool(t, "true")

	res, err := (&ExecInvoker{}).Invoke(context.Background(), NewInvocation("true", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecInvoker_NonZeroExitIsNotAnError(t *testing.T) {
	requireTool(t, "false")

	res, err := (&ExecInvoker{}).Invoke(context.Background(), NewInvocation("false", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestExecInvoker_NotFound(t *testing.T) {
	_, err := (&ExecInvoker{}).Invoke(context.Background(), NewInvocation("gendocs-no-such-compiler", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exec.ErrNotFound), "expected exec.ErrNotFound, got %v", err)
}

func TestExecInvoker_Streams(t *testing.T) {
	requireTool(t, "sh")

	var stdout, stderr bytes.Buffer
	inv := &ExecInvoker{
		Stdin:  strings.NewReader("from-stdin"),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	res, err := inv.Invoke(context.Background(), NewInvocation("sh", []string{"-c", "cat; echo oops >&2; exit 4"}))
	require.NoError(t, err)
	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "from-stdin", stdout.String())
	assert.Equal(t, "oops\n", stderr.String())
}

func TestExecInvoker_Dir(t *testing.T) {
	requireTool(t, "pwd")
	dir := t.TempDir()
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	var stdout bytes.Buffer
	_, err = (&ExecInvoker{Dir: dir, Stdout: &stdout}).Invoke(context.Background(), NewInvocation("pwd", []string{"-P"}))
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(stdout.String()))
}

// A real pass over a directory with a shell script standing in for the
// compiler. The script appends its arguments to a log, one line per call.
func TestRun_EndToEndWithExecInvoker(t *testing.T) {
	requireTool(t, "sh")

	src := t.TempDir()
	for _, f := range []string{"a.nim", "b.nim", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, f), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub.nim"), 0o755))

	logPath := filepath.Join(t.TempDir(), "calls.log")
	script := filepath.Join(t.TempDir(), "fake-nim")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"call:$#:$*\" >> '"+logPath+"'\n"), 0o755))

	var stdout bytes.Buffer
	d := &Dispatcher{
		Fs:         afero.NewOsFs(),
		Source:     scan.Source{Dir: src, Suffix: ".nim"},
		Invocation: NewInvocation(script, nil),
		Invoker:    &ExecInvoker{Stdout: &stdout},
		Stdout:     &stdout,
	}

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Invocations, 2)
	assert.Equal(t, src+"\n", stdout.String())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "call:0:\ncall:0:\n", string(data))
}

func TestExecInvoker_RelativePathEntry(t *testing.T) {
	requireTool(t, "sh")

	toolDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "ran")
	script := "#!/bin/sh\n: > '" + marker + "'\n"
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "gendocs-dot-tool"), []byte(script), 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(toolDir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("PATH", ".")

	// Dir differs from the lookup directory; the tool must still be found.
	res, err := (&ExecInvoker{Dir: t.TempDir()}).Invoke(context.Background(), NewInvocation("gendocs-dot-tool", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.FileExists(t, marker)
}

func TestRun_NilInvokerUsesExec(t *testing.T) {
	requireTool(t, "true")

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/a.nim", []byte("x"), 0o644))

	var stdout bytes.Buffer
	d := &Dispatcher{
		Fs:         fsys,
		Source:     scan.Source{Dir: "/src", Suffix: ".nim"},
		Invocation: NewInvocation("true", nil),
		Stdout:     &stdout,
	}

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Invocations, 1)
	assert.Equal(t, 0, rep.Invocations[0].ExitCode)
}
