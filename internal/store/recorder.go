package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// Recorder copies controller snapshots into a transcript. Observe never
// blocks: snapshots are coalesced and written by a background goroutine.
type Recorder struct {
	store TranscriptStore
	id    string
	log   *logging.Logger

	mu     sync.Mutex
	latest *domain.Snapshot

	written int
	lastErr string

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRecorder creates a transcript for provider and starts the writer.
func NewRecorder(ctx context.Context, ts TranscriptStore, provider string, log *logging.Logger) (*Recorder, error) {
	r := &Recorder{
		store: ts,
		id:    uuid.NewString(),
		log:   log.Sub("transcript"),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if err := ts.CreateTranscript(ctx, Transcript{ID: r.id, Provider: provider, StartedAt: time.Now().UTC()}); err != nil {
		return nil, err
	}
	go r.loop()
	return r, nil
}

// ID returns the transcript ID.
func (r *Recorder) ID() string { return r.id }

// Observe queues the snapshot for writing. It matches chat.Observer.
func (r *Recorder) Observe(s domain.Snapshot) {
	r.mu.Lock()
	r.latest = &s
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close writes any pending snapshot and stops the writer.
func (r *Recorder) Close() error {
	r.once.Do(func() { close(r.quit) })
	<-r.done
	return nil
}

func (r *Recorder) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.wake:
			r.flush()
		case <-r.quit:
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	r.mu.Lock()
	snap := r.latest
	r.latest = nil
	r.mu.Unlock()
	if snap == nil {
		return
	}

	ctx := context.Background()
	if n := len(snap.Messages); n > r.written {
		if err := r.store.AppendMessages(ctx, r.id, r.written, snap.Messages[r.written:]); err != nil {
			r.log.Error().Err(err).Str("transcript", r.id).Msg("failed to record messages")
		} else {
			r.written = n
		}
	}
	if snap.LastError != r.lastErr {
		if err := r.store.SetLastError(ctx, r.id, snap.LastError); err != nil {
			r.log.Error().Err(err).Str("transcript", r.id).Msg("failed to record error")
		} else {
			r.lastErr = snap.LastError
		}
	}
}
