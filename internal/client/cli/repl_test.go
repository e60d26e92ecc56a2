package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	calls []string
	err   error
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	return f.err
}

func (f *fakeExec) VaultStatus(ctx context.Context, args []string) error {
	return f.record("vault", args)
}

func (f *fakeExec) Unlock(ctx context.Context, args []string) error {
	return f.record("unlock", args)
}

func (f *fakeExec) Lock(ctx context.Context, args []string) error {
	return f.record("lock", args)
}

func (f *fakeExec) Upload(ctx context.Context, args []string) error {
	return f.record("upload", args)
}

func (f *fakeExec) VaultUpload(ctx context.Context, args []string) error {
	return f.record("vupload", args)
}

func (f *fakeExec) Download(ctx context.Context, args []string) error {
	return f.record("download", args)
}

func (f *fakeExec) Versions(ctx context.Context, args []string) error {
	return f.record("versions", args)
}

func (f *fakeExec) Delete(ctx context.Context, args []string) error {
	return f.record("delete", args)
}

func (f *fakeExec) Restore(ctx context.Context, args []string) error {
	return f.record("restore", args)
}

func (f *fakeExec) Move(ctx context.Context, args []string) error {
	return f.record("move", args)
}

func (f *fakeExec) Pull(ctx context.Context, args []string) error {
	return f.record("pull", args)
}

func capturePrint(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	out := capturePrint(t)

	input := strings.Join([]string{
		"help",
		"vault",
		"unlock",
		"upload a.txt docs",
		"vupload secret.pdf",
		"",
		"download f1 2 /tmp/x",
		"versions f1",
		"delete f1 purge",
		"restore f1",
		"move f1 d2",
		"pull",
		"lock",
		"foobar",
		"exit",
		"vault",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "(online locked)" }, rdr(input))

	assert.Equal(t, []string{
		"vault", "unlock", "upload a.txt docs", "vupload secret.pdf", "download f1 2 /tmp/x",
		"versions f1", "delete f1 purge", "restore f1", "move f1 d2", "pull", "lock",
	}, exec.calls)
	assert.Contains(t, *out, "hc (online locked) > ")
	assert.Contains(t, *out, helpText)
	assert.Contains(t, *out, "Unknown command: foobar")
	assert.Equal(t, "Bye!", (*out)[len(*out)-1])
}

func TestRunREPL_PrintsErrorsAndContinues(t *testing.T) {
	out := capturePrint(t)

	exec := &fakeExec{err: errors.New("kaput")}
	runREPL(context.Background(), exec, func() string { return "s" }, rdr("pull\nlock\n"))

	assert.Equal(t, []string{"pull", "lock"}, exec.calls)
	assert.Contains(t, *out, "Error: kaput")
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	capturePrint(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, rdr("pull"))

	assert.Equal(t, []string{"pull"}, exec.calls)
}
