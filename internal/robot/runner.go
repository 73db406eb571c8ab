package robot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/hooks"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// ErrNoSelection is returned when an action is triggered with no client selected.
var ErrNoSelection = errors.New("no client selected")

// Action names a simulated robot action.
type Action string

const (
	ActionCheck    Action = "check"
	ActionDownload Action = "download"
)

// Notifier receives the log-style message produced by each action.
type Notifier interface {
	AppendNotice(text string)
}

// Delay waits for d or until ctx is done.
type Delay func(ctx context.Context, d time.Duration) error

// Counter produces the simulated number of XML documents, in [0, limit].
type Counter func(limit int) int

// Result describes one completed action.
type Result struct {
	Action  Action          `json:"action"`
	Clients []domain.Client `json:"clients"`
	Count   int             `json:"count"`
	Notice  string          `json:"notice"`
}

// Runner performs the simulated check and download actions against the
// current selection of a Book.
type Runner struct {
	book     *Book
	notifier Notifier
	hooks    *hooks.Manager
	log      *logging.Logger

	CheckDelay    time.Duration
	DownloadDelay time.Duration
	MaxCount      int
	Delay         Delay
	Counter       Counter
}

// NewRunner creates a runner using the delays and bound from cfg, a wall
// clock Delay and a random Counter. notifier and hooks may be nil.
func NewRunner(book *Book, notifier Notifier, cfg config.RobotConfig, hookMgr *hooks.Manager, log *logging.Logger) *Runner {
	return &Runner{
		book:          book,
		notifier:      notifier,
		hooks:         hookMgr,
		log:           log.Sub("robot"),
		CheckDelay:    time.Duration(cfg.CheckDelayMs) * time.Millisecond,
		DownloadDelay: time.Duration(cfg.DownloadDelayMs) * time.Millisecond,
		MaxCount:      cfg.MaxCount,
		Delay:         SleepDelay,
		Counter:       RandomCounter,
	}
}

// SleepDelay waits on a timer.
func SleepDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RandomCounter returns a uniform random count in [0, limit].
func RandomCounter(limit int) int {
	if limit <= 0 {
		return 0
	}
	return rand.IntN(limit + 1)
}

// Check looks for new documents for the selected clients.
func (r *Runner) Check(ctx context.Context) (Result, error) {
	return r.run(ctx, ActionCheck, r.CheckDelay)
}

// Download fetches documents for the selected clients.
func (r *Runner) Download(ctx context.Context) (Result, error) {
	return r.run(ctx, ActionDownload, r.DownloadDelay)
}

func (r *Runner) run(ctx context.Context, action Action, d time.Duration) (Result, error) {
	clients := r.book.Selected()
	if len(clients) == 0 {
		return Result{}, ErrNoSelection
	}

	r.log.Info().Str("action", string(action)).Int("clients", len(clients)).Msg("robot action started")

	delay := r.Delay
	if delay == nil {
		delay = SleepDelay
	}
	if err := delay(ctx, d); err != nil {
		return Result{}, fmt.Errorf("%s interrupted: %w", action, err)
	}

	counter := r.Counter
	if counter == nil {
		counter = RandomCounter
	}
	count := counter(r.MaxCount)
	if count < 0 {
		count = 0
	}

	res := Result{
		Action:  action,
		Clients: clients,
		Count:   count,
		Notice:  Notice(action, clients, count),
	}

	if r.notifier != nil {
		r.notifier.AppendNotice(res.Notice)
	}
	if r.hooks != nil {
		r.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventRobotAction, map[string]any{
			"action":  string(action),
			"clients": len(clients),
			"count":   count,
		})
	}
	r.log.Info().Str("action", string(action)).Int("count", count).Msg("robot action finished")
	return res, nil
}

// Notice renders the log-style message for a finished action.
func Notice(action Action, clients []domain.Client, count int) string {
	names := make([]string, len(clients))
	for i, c := range clients {
		names[i] = c.Name
	}
	who := strings.Join(names, ", ")

	switch action {
	case ActionDownload:
		return fmt.Sprintf("Download concluído para %s: %d arquivo(s) XML e PDF salvos.", who, count)
	default:
		return fmt.Sprintf("Verificação concluída para %s: %d novo(s) XML(s) encontrado(s).", who, count)
	}
}
