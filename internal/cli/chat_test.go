package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/xmlbot/internal/chat"
	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/llm"
	"github.com/soyeahso/xmlbot/internal/logging"
	"github.com/soyeahso/xmlbot/internal/robot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(&bytes.Buffer{}, "silent")
}

func echoChat(t *testing.T) *chat.Controller {
	t.Helper()
	ctrl := chat.NewController(chat.Options{
		Connect: func(string) (chat.Service, error) {
			return chat.FromLLM(llm.NewService(llm.NewEchoClient(), llm.ServiceOptions{}, silentLog())), nil
		},
		Log: silentLog(),
	})
	require.NoError(t, ctrl.Initialize())
	return ctrl
}

// runREPL feeds input to a REPL over ctrl and returns everything it printed.
func runREPL(t *testing.T, ctrl *chat.Controller, input string) (string, *robot.Book) {
	t.Helper()
	book := robot.NewBook(nil, silentLog())
	runner := robot.NewRunner(book, ctrl, config.Defaults().Robot, nil, silentLog())
	runner.Delay = func(context.Context, time.Duration) error { return nil }
	runner.Counter = func(int) int { return 4 }

	var out bytes.Buffer
	r := newREPL(strings.NewReader(input), &out, ctrl, book, runner)
	require.NoError(t, r.run(context.Background()))
	return out.String(), book
}

func TestREPLGreetsAndEchoes(t *testing.T) {
	ctrl := echoChat(t)
	out, _ := runREPL(t, ctrl, "olá robô\n")

	assert.Contains(t, out, "bot> "+chat.Greeting)
	assert.Contains(t, out, "bot> OLÁ ROBÔ")
	assert.NotContains(t, out, "bot> olá robô", "user messages are not echoed back")

	snap := ctrl.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, domain.StatusIdle, snap.Status)
}

func TestREPLShowsMissingCredential(t *testing.T) {
	ctrl := chat.NewController(chat.Options{
		Credential: func() string { return "" },
		Log:        silentLog(),
	})
	require.Error(t, ctrl.Initialize())

	out, _ := runREPL(t, ctrl, "hello\n")
	assert.Contains(t, out, "error: "+chat.MissingCredentialMessage)
	assert.Contains(t, out, "chat unavailable: "+chat.MissingCredentialMessage)
	assert.NotContains(t, out, "bot> ")
}

func TestREPLRobotFlow(t *testing.T) {
	ctrl := echoChat(t)
	input := strings.Join([]string{
		"/check",
		"/add Acme Comércio Ltda cnpj 12345678000199 acme.pfx",
		"secret",
		"/add Bob cpf 12345678909 bob.txt",
		"secret",
		"/list",
		"/select 1",
		"/list",
		"/download",
		"/quit",
		"ignored after quit",
	}, "\n")

	out, book := runREPL(t, ctrl, input)

	assert.Contains(t, out, robot.ErrNoSelection.Error())
	assert.Contains(t, out, passwordPrompt)
	assert.NotContains(t, out, "secret", "the password is never printed")
	assert.Contains(t, out, "added Acme Comércio Ltda (CNPJ 12345678000199)")
	assert.Contains(t, out, robot.ErrInvalidCertificate.Error())
	assert.Contains(t, out, "[ ] 1. Acme Comércio Ltda")
	assert.Contains(t, out, "selected Acme Comércio Ltda")
	assert.Contains(t, out, "[x] 1. Acme Comércio Ltda")
	assert.Contains(t, out, "running download for 1 client(s)...")

	notice := robot.Notice(robot.ActionDownload, book.Selected(), 4)
	assert.Contains(t, out, "bot> "+notice)
	assert.NotContains(t, out, "IGNORED AFTER QUIT")

	require.Len(t, book.List(), 1)
}

func TestREPLToggleAll(t *testing.T) {
	ctrl := echoChat(t)
	out, book := runREPL(t, ctrl, strings.Join([]string{
		"/add A cpf 1 a.p12",
		"pw",
		"/add B cpf 2 b.p12",
		"pw",
		"/all",
		"/all",
		"/select nope",
		"/select 9",
		"/bogus",
	}, "\n"))

	assert.Contains(t, out, "2 of 2 client(s) selected")
	assert.Contains(t, out, "0 of 2 client(s) selected")
	assert.Contains(t, out, "unknown client: nope")
	assert.Contains(t, out, "no client at position 9")
	assert.Contains(t, out, "unknown command /bogus")
	assert.False(t, book.AnySelected())
}

func TestREPLRemove(t *testing.T) {
	ctrl := echoChat(t)
	out, book := runREPL(t, ctrl, strings.Join([]string{
		"/add A cpf 1 a.p12",
		"pw",
		"/add B cpf 2 b.p12",
		"pw",
		"/remove",
		"/remove 1",
		"/remove 5",
		"/list",
	}, "\n"))

	assert.Contains(t, out, "usage: /remove <n|id>")
	assert.Contains(t, out, "removed A")
	assert.Contains(t, out, "no client at position 5")
	assert.Contains(t, out, "[ ] 1. B")
	require.Len(t, book.List(), 1)
	assert.Equal(t, "B", book.List()[0].Name)
}

func TestREPLStopsOnContextDone(t *testing.T) {
	ctrl := echoChat(t)
	book := robot.NewBook(nil, silentLog())
	runner := robot.NewRunner(book, ctrl, config.Defaults().Robot, nil, silentLog())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The reader never returns; run must still finish.
	r := newREPL(blockingReader{}, &bytes.Buffer{}, ctrl, book, runner)
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) { select {} }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		name string
		args []string
	}{
		{"/quit", "quit", []string{}},
		{"/SELECT 2", "select", []string{"2"}},
		{"/add  a  b ", "add", []string{"a", "b"}},
		{"/", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, args := parseCommand(tt.line)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestParseRegistration(t *testing.T) {
	reg, err := parseRegistration(strings.Fields("Acme Comércio Ltda cnpj 123 acme.pfx"))
	require.NoError(t, err)
	assert.Equal(t, robot.Registration{
		Name:            "Acme Comércio Ltda",
		Type:            domain.ClientTypeCNPJ,
		Identifier:      "123",
		CertificateFile: "acme.pfx",
	}, reg)

	_, err = parseRegistration(strings.Fields("cpf 123 a.pfx"))
	assert.EqualError(t, err, addUsage)
}

func TestREPLAddReadsSecret(t *testing.T) {
	ctrl := echoChat(t)
	book := robot.NewBook(nil, silentLog())
	runner := robot.NewRunner(book, ctrl, config.Defaults().Robot, nil, silentLog())

	var out bytes.Buffer
	r := newREPL(strings.NewReader("/add Acme cnpj 123 acme.pfx\n/list\n"), &out, ctrl, book, runner)
	prompts := 0
	r.readSecret = func() (string, error) {
		prompts++
		return "hidden", nil
	}
	require.NoError(t, r.run(context.Background()))

	assert.Equal(t, 1, prompts)
	assert.Contains(t, out.String(), "added Acme (CNPJ 123)")
	assert.Contains(t, out.String(), "[ ] 1. Acme", "/list is still read as a command")
	require.Len(t, book.List(), 1)
}

func TestREPLAddWithoutPassword(t *testing.T) {
	ctrl := echoChat(t)
	out, book := runREPL(t, ctrl, "/add Acme cnpj 123 acme.pfx")

	assert.Contains(t, out, "no certificate password given")
	assert.Empty(t, book.List())
}

// syncBuffer lets the test read output while the REPL is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type gatedService struct{ release chan struct{} }

func (s gatedService) Name() string { return "gemini" }

func (s gatedService) CreateSession(string) (chat.Session, error) { return s, nil }

func (s gatedService) Send(_ context.Context, text string) (string, error) {
	<-s.release
	return "re: " + text, nil
}

func TestREPLDropsLineWhileReplyPending(t *testing.T) {
	release := make(chan struct{})
	ctrl := chat.NewController(chat.Options{
		Connect: func(string) (chat.Service, error) { return gatedService{release: release}, nil },
		Log:     silentLog(),
	})
	require.NoError(t, ctrl.Initialize())
	book := robot.NewBook(nil, silentLog())
	runner := robot.NewRunner(book, ctrl, config.Defaults().Robot, nil, silentLog())

	out := &syncBuffer{}
	r := newREPL(strings.NewReader("a\nb\n"), out, ctrl, book, runner)
	done := make(chan error, 1)
	go func() { done <- r.run(context.Background()) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "message dropped")
	}, 2*time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-done)

	snap := ctrl.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "a", snap.Messages[1].Content)
	assert.Equal(t, "re: a", snap.Messages[2].Content)
}

func TestFindClient(t *testing.T) {
	clients := []domain.Client{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}

	c, err := findClient(clients, "2")
	require.NoError(t, err)
	assert.Equal(t, "b", c.ID)

	c, err = findClient(clients, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", c.Name)

	_, err = findClient(clients, "0")
	assert.Error(t, err)

	_, err = findClient(clients, "zzz")
	assert.ErrorIs(t, err, robot.ErrUnknownClient)
}
