package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	New(ctx context.Context, args []string) error
	Open(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
	Unset(ctx context.Context, args []string) error
	Show(ctx context.Context) error
	Save(ctx context.Context) error
	Status(ctx context.Context) error
	Recover(ctx context.Context) error
	Discard(ctx context.Context) error
	Duplicate(ctx context.Context) error
	Customer(ctx context.Context, args []string) error
	Complete(ctx context.Context) error
	Offline(ctx context.Context, args []string) error
}

const helpText = `Form commands:
  new <eic|eicr|minor-works>         start a blank certificate
  open <eic|eicr|minor-works> <id>   load a saved report from the cloud
  set <field> <value>                edit a field (JSON values keep their type)
  unset <field>                      clear a field
  show                               print the open form
  save                               save now, skipping the debounce
  status                             detailed sync status
  recover | discard                  accept or drop an unsaved draft from an earlier session
  duplicate                          copy the open form into a new certificate
  customer <id>                      link the form to a customer
  complete                           mark the certificate as completed
Other:
  offline on|off                     work offline regardless of signal
  exit | quit                        close the form and leave`

// runREPL reads commands from r until EOF or "exit". Errors returned by
// handlers are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "certsync %s > ", statusFn())
		line, err := r.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			fmt.Fprintln(w)
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			fmt.Fprintln(w, helpText)
			if a.isLoggedIn() {
				fmt.Fprintln(w, "  logout                             end the session")
			} else {
				fmt.Fprintln(w, "  login | register                   sign in to sync with the cloud")
			}
		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "new":
			cmdErr = a.New(ctx, args)
		case "open":
			cmdErr = a.Open(ctx, args)
		case "set":
			cmdErr = a.Set(ctx, rawArgs(line, 2))
		case "unset":
			cmdErr = a.Unset(ctx, args)
		case "show":
			cmdErr = a.Show(ctx)
		case "save":
			cmdErr = a.Save(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "recover":
			cmdErr = a.Recover(ctx)
		case "discard":
			cmdErr = a.Discard(ctx)
		case "duplicate":
			cmdErr = a.Duplicate(ctx)
		case "customer":
			cmdErr = a.Customer(ctx, args)
		case "complete":
			cmdErr = a.Complete(ctx)
		case "offline":
			cmdErr = a.Offline(ctx, args)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
		if cmdErr != nil {
			fmt.Fprintln(w, "error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}

// rawArgs splits line into at most n arguments after the command, keeping
// the spaces inside the last one.
func rawArgs(line string, n int) []string {
	fields := strings.SplitN(strings.TrimSpace(line), " ", n+1)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}
