package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  map[string][]string
	fail  map[string]error
}

func newFakeExec() *fakeExec {
	return &fakeExec{args: map[string][]string{}, fail: map[string]error{}}
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	if args != nil {
		f.args[name] = args
	}
	return f.fail[name]
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error {
	return f.record("register", nil)
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login", nil)
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout", nil)
}
func (f *fakeExec) New(ctx context.Context, args []string) error  { return f.record("new", args) }
func (f *fakeExec) Open(ctx context.Context, args []string) error { return f.record("open", args) }
func (f *fakeExec) Set(ctx context.Context, args []string) error  { return f.record("set", args) }
func (f *fakeExec) Unset(ctx context.Context, args []string) error {
	return f.record("unset", args)
}
func (f *fakeExec) Show(ctx context.Context) error      { return f.record("show", nil) }
func (f *fakeExec) Save(ctx context.Context) error      { return f.record("save", nil) }
func (f *fakeExec) Status(ctx context.Context) error    { return f.record("status", nil) }
func (f *fakeExec) Recover(ctx context.Context) error   { return f.record("recover", nil) }
func (f *fakeExec) Discard(ctx context.Context) error   { return f.record("discard", nil) }
func (f *fakeExec) Duplicate(ctx context.Context) error { return f.record("duplicate", nil) }
func (f *fakeExec) Customer(ctx context.Context, args []string) error {
	return f.record("customer", args)
}
func (f *fakeExec) Complete(ctx context.Context) error { return f.record("complete", nil) }
func (f *fakeExec) Offline(ctx context.Context, args []string) error {
	return f.record("offline", args)
}

func runInput(t *testing.T, exec execIface, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	runREPL(context.Background(), exec, func() string { return "(status)" }, r, &out)
	return out.String()
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	exec := newFakeExec()
	out := runInput(t, exec,
		"help",
		"login",
		"new eic",
		"set client.name Jane Smith",
		"unset notes",
		"customer cust-1",
		"show",
		"save",
		"status",
		"recover",
		"discard",
		"duplicate",
		"complete",
		"offline on",
		"open eicr rep-9",
		"foobar",
		"exit",
		"show",
	)

	assert.Equal(t, []string{
		"login", "new", "set", "unset", "customer", "show", "save", "status",
		"recover", "discard", "duplicate", "complete", "offline", "open",
	}, exec.calls)
	assert.Equal(t, []string{"eic"}, exec.args["new"])
	assert.Equal(t, []string{"client.name", "Jane Smith"}, exec.args["set"])
	assert.Equal(t, []string{"eicr", "rep-9"}, exec.args["open"])
	assert.Equal(t, []string{"on"}, exec.args["offline"])

	assert.Contains(t, out, "certsync (status) > ")
	assert.Contains(t, out, "login | register")
	assert.Contains(t, out, "Unknown command: foobar")
	assert.Contains(t, out, "Bye!")
}

func TestRunREPL_HelpDependsOnSession(t *testing.T) {
	exec := newFakeExec()
	exec.loggedIn = true
	out := runInput(t, exec, "help", "exit")
	assert.Contains(t, out, "logout")
	assert.NotContains(t, out, "login | register")
}

func TestRunREPL_ErrorsArePrintedAndLoopContinues(t *testing.T) {
	exec := newFakeExec()
	exec.fail["save"] = errors.New("boom")
	out := runInput(t, exec, "save", "status", "exit")

	assert.Contains(t, out, "error: boom")
	assert.Equal(t, []string{"save", "status"}, exec.calls)
}

func TestRunREPL_StopsAtEOF(t *testing.T) {
	exec := newFakeExec()
	runInput(t, exec, "", "show")
	assert.Equal(t, []string{"show"}, exec.calls)
}

func TestRawArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"set a b", []string{"a", "b"}},
		{"set a", []string{"a"}},
		{"set", nil},
		{"set a b c d", []string{"a", "b c d"}},
		{"  set a {\"x\": 1}\n", []string{"a", "{\"x\": 1}"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, tt.want, rawArgs(tt.line, 2))
		})
	}
}
