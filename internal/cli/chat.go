package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/soyeahso/xmlbot/internal/chat"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/robot"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const replHelp = `Commands:
  /add <name> <CPF|CNPJ> <identifier> <certificate.pfx>
                        register a client; the certificate password is asked next
  /list                 show registered clients
  /select <n|id>        toggle one client
  /all                  toggle every client
  /remove <n|id>        forget a client
  /check                look for new XMLs for the selected clients
  /download             download XMLs for the selected clients
  /help                 show this help
  /quit                 leave
Anything else is sent to the assistant.`

const addUsage = "usage: /add <name> <CPF|CNPJ> <identifier> <certificate.pfx>"

const passwordPrompt = "certificate password: "

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant and drive the import robot from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Console logs would interleave with the conversation.
			a, err := openApp(ctx, cfg, appOptions{minLevel: "warn"})
			if err != nil {
				return err
			}
			defer a.Close()

			r := newREPL(os.Stdin, cmd.OutOrStdout(), a.chat, a.book, a.runner)
			if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
				r.readSecret = func() (string, error) {
					secret, err := term.ReadPassword(fd)
					r.printf("\n")
					return string(secret), err
				}
			}
			return r.run(ctx)
		},
	}
}

// repl is the terminal presentation of the session controller and the
// robot flow. Assistant messages are printed as snapshots arrive.
type repl struct {
	in     io.Reader
	out    io.Writer
	chat   *chat.Controller
	book   *robot.Book
	runner *robot.Runner

	// readSecret reads the certificate password without echo. When nil the
	// password is taken from the next input line.
	readSecret func() (string, error)
	nextLine   func() (string, bool)

	mu      sync.Mutex
	printed int
	lastErr string

	wg sync.WaitGroup
}

func newREPL(in io.Reader, out io.Writer, ctrl *chat.Controller, book *robot.Book, runner *robot.Runner) *repl {
	return &repl{in: in, out: out, chat: ctrl, book: book, runner: runner}
}

// run reads lines until /quit, end of input or ctx is done, then waits for
// in-flight sends and robot actions to finish.
func (r *repl) run(ctx context.Context) error {
	unsubscribe := r.chat.Subscribe(r.render)
	defer unsubscribe()
	r.render(r.chat.Snapshot())
	r.printf("Type /help for commands.\n")

	// The scanner waits for an ack after every line so nothing else reads
	// the input while a command prompts for a secret.
	lines := make(chan string)
	ack := make(chan struct{}, 1)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
			select {
			case <-ack:
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()
	r.nextLine = func() (string, bool) {
		ack <- struct{}{}
		line, ok := <-lines
		return line, ok
	}

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				err = <-scanErr
				break loop
			}
			quit := r.handle(ctx, strings.TrimSpace(line))
			ack <- struct{}{}
			if quit {
				break loop
			}
		}
	}

	r.wg.Wait()
	return err
}

// handle processes one input line and reports whether the REPL should stop.
func (r *repl) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	name, args := parseCommand(line)
	switch name {
	case "quit", "exit":
		return true
	case "help":
		r.printf("%s\n", replHelp)
	case "add":
		r.add(ctx, args)
	case "list":
		r.list()
	case "select":
		r.toggle(args)
	case "remove":
		r.remove(ctx, args)
	case "all":
		r.book.SelectAll(!r.book.AllSelected())
		r.printf("%d of %d client(s) selected\n", len(r.book.Selected()), len(r.book.List()))
	case "check":
		r.runRobot(ctx, robot.ActionCheck)
	case "download":
		r.runRobot(ctx, robot.ActionDownload)
	default:
		r.printf("unknown command /%s (try /help)\n", name)
	}
	return false
}

// send submits text on the input loop, so a line typed while a reply is
// pending is dropped and never overtakes the earlier one.
func (r *repl) send(ctx context.Context, text string) {
	replied, err := r.chat.Submit(ctx, text)
	switch {
	case errors.Is(err, chat.ErrBusy):
		r.printf("still waiting for the previous reply, message dropped\n")
		return
	case errors.Is(err, chat.ErrNotInitialized):
		r.printf("chat unavailable: %s\n", r.chat.Snapshot().LastError)
		return
	case err != nil:
		r.printf("error: %v\n", err)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-replied
	}()
}

func (r *repl) add(ctx context.Context, args []string) {
	reg, err := parseRegistration(args)
	if err != nil {
		r.printf("%v\n", err)
		return
	}
	r.printf("%s", passwordPrompt)
	if reg.Password, err = r.password(); err != nil {
		r.printf("%v\n", err)
		return
	}
	client, err := r.book.Register(ctx, reg)
	if err != nil {
		r.printf("%v\n", err)
		return
	}
	r.printf("added %s (%s %s)\n", client.Name, client.Type, client.Identifier)
}

// password reads the certificate password for /add.
func (r *repl) password() (string, error) {
	if r.readSecret != nil {
		return r.readSecret()
	}
	line, ok := r.nextLine()
	if !ok {
		return "", errors.New("no certificate password given")
	}
	return strings.TrimSpace(line), nil
}

func (r *repl) list() {
	clients := r.book.List()
	if len(clients) == 0 {
		r.printf("no clients registered\n")
		return
	}
	for i, c := range clients {
		mark := " "
		if r.book.IsSelected(c.ID) {
			mark = "x"
		}
		r.printf("[%s] %d. %s  %s %s  %s\n", mark, i+1, c.Name, c.Type, c.Identifier, c.Certificate)
	}
}

func (r *repl) toggle(args []string) {
	if len(args) != 1 {
		r.printf("usage: /select <n|id>\n")
		return
	}
	client, err := findClient(r.book.List(), args[0])
	if err != nil {
		r.printf("%v\n", err)
		return
	}
	selected := !r.book.IsSelected(client.ID)
	if err := r.book.Select(client.ID, selected); err != nil {
		r.printf("%v\n", err)
		return
	}
	if selected {
		r.printf("selected %s\n", client.Name)
	} else {
		r.printf("deselected %s\n", client.Name)
	}
}

func (r *repl) remove(ctx context.Context, args []string) {
	if len(args) != 1 {
		r.printf("usage: /remove <n|id>\n")
		return
	}
	client, err := findClient(r.book.List(), args[0])
	if err == nil {
		err = r.book.Remove(ctx, client.ID)
	}
	if err != nil {
		r.printf("%v\n", err)
		return
	}
	r.printf("removed %s\n", client.Name)
}

// runRobot starts an action in the background. Its notice reaches the
// conversation through the controller.
func (r *repl) runRobot(ctx context.Context, action robot.Action) {
	n := len(r.book.Selected())
	if n == 0 {
		r.printf("%v\n", robot.ErrNoSelection)
		return
	}
	r.printf("running %s for %d client(s)...\n", action, n)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var err error
		if action == robot.ActionDownload {
			_, err = r.runner.Download(ctx)
		} else {
			_, err = r.runner.Check(ctx)
		}
		if err != nil {
			r.printf("%s failed: %v\n", action, err)
		}
	}()
}

// render prints assistant messages not printed yet and any new error. It is
// a chat.Observer.
func (r *repl) render(s domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.printed < len(s.Messages) {
		for _, m := range s.Messages[r.printed:] {
			if m.Role == domain.RoleAssistant {
				fmt.Fprintf(r.out, "bot> %s\n", m.Content)
			}
		}
		r.printed = len(s.Messages)
	}
	if s.LastError != "" && s.LastError != r.lastErr {
		fmt.Fprintf(r.out, "error: %s\n", s.LastError)
	}
	r.lastErr = s.LastError
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// parseCommand splits "/name arg1 arg2" into a lower-cased name and its
// arguments.
func parseCommand(line string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// parseRegistration reads /add arguments. The last three fields are fixed;
// everything before them is the client name, so names may contain spaces.
// The password is left for the caller to ask for.
func parseRegistration(args []string) (robot.Registration, error) {
	n := len(args)
	if n < 4 {
		return robot.Registration{}, errors.New(addUsage)
	}
	return robot.Registration{
		Name:            strings.Join(args[:n-3], " "),
		Type:            domain.ClientType(strings.ToUpper(args[n-3])),
		Identifier:      args[n-2],
		CertificateFile: args[n-1],
	}, nil
}

// findClient resolves a 1-based list position or a client ID.
func findClient(clients []domain.Client, ref string) (domain.Client, error) {
	if i, err := strconv.Atoi(ref); err == nil {
		if i < 1 || i > len(clients) {
			return domain.Client{}, fmt.Errorf("no client at position %d", i)
		}
		return clients[i-1], nil
	}
	for _, c := range clients {
		if c.ID == ref {
			return c, nil
		}
	}
	return domain.Client{}, fmt.Errorf("%w: %s", robot.ErrUnknownClient, ref)
}
