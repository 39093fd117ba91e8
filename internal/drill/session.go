package drill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/sync"
)

var (
	ErrSessionDone = errors.New("drill: session has no cards left")
	ErrNotRevealed = errors.New("drill: card must be revealed before it is rated")
)

// Store durably saves one reviewed record.
type Store interface {
	UpsertRecord(ctx context.Context, rec domain.CardRecord) error
}

// Progress counts what a session has done and what is left.
type Progress struct {
	Reviewed  int // ratings committed
	Failed    int // of which Fail
	Remaining int // cards still to show, including redos
}

// Session walks a plan one card at a time. Every rating is committed to the
// store before the session moves on, so stopping at any point loses
// nothing that was rated. Failed cards come back after the planned cards.
type Session struct {
	id    uuid.UUID
	ws    *sync.WorkingSet
	sched *fsrs.Scheduler
	store Store
	log   *slog.Logger
	now   func() time.Time
	redo  bool

	queue    []domain.Identity
	pos      int
	again    []domain.Identity
	revealed bool
	progress Progress
}

type Option func(*Session)

// WithClock sets the source of review timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithoutRedo stops failed cards from being shown again in the session.
func WithoutRedo() Option {
	return func(s *Session) { s.redo = false }
}

// New starts a session over plan. Identities in plan that are not in ws
// are skipped.
func New(ws *sync.WorkingSet, plan []domain.Identity, sched *fsrs.Scheduler, store Store, opts ...Option) *Session {
	s := &Session{
		id:    uuid.New(),
		ws:    ws,
		sched: sched,
		store: store,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:   time.Now,
		redo:  true,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, id := range plan {
		if _, ok := ws.Get(id); ok {
			s.queue = append(s.queue, id)
		}
	}
	s.log = s.log.With("session", s.id.String())
	s.progress.Remaining = len(s.queue)
	s.log.Info("Drill session started", "cards", len(s.queue))
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// Done reports whether every card, including redos, has been rated.
func (s *Session) Done() bool {
	return s.pos >= len(s.queue) && len(s.again) == 0
}

// Current returns the card to show.
func (s *Session) Current() (sync.Entry, bool) {
	if s.Done() {
		return sync.Entry{}, false
	}
	return s.ws.Get(s.queue[s.pos])
}

// Reveal shows the answer of the current card. It has no effect on
// scheduling.
func (s *Session) Reveal() {
	if !s.Done() {
		s.revealed = true
	}
}

func (s *Session) Revealed() bool { return s.revealed }

func (s *Session) Progress() Progress { return s.progress }

// Rate applies a rating to the current card, commits the new record and
// moves to the next card. If the commit fails the session stays on the
// same card.
func (s *Session) Rate(ctx context.Context, rating domain.Rating) (domain.CardRecord, error) {
	entry, ok := s.Current()
	if !ok {
		return domain.CardRecord{}, ErrSessionDone
	}
	if !s.revealed {
		return domain.CardRecord{}, ErrNotRevealed
	}

	next, err := s.sched.Review(domain.ReviewEvent{
		Identity:   entry.Record.Identity,
		Rating:     rating,
		ReviewedAt: s.now(),
		Prior:      entry.Record,
	})
	if err != nil {
		return domain.CardRecord{}, fmt.Errorf("drill: %w", err)
	}

	if err := s.store.UpsertRecord(ctx, next); err != nil {
		s.log.Error("Failed to commit review", "identity", next.Identity.Short(), "error", err)
		return domain.CardRecord{}, fmt.Errorf("drill: commit review: %w", err)
	}
	if err := s.ws.Update(next); err != nil {
		return domain.CardRecord{}, fmt.Errorf("drill: %w", err)
	}

	s.log.Info("Card reviewed",
		"identity", next.Identity.Short(),
		"rating", rating.String(),
		"state", next.State.String(),
		"due", next.Due.String(),
		"stability", next.Stability,
	)

	s.progress.Reviewed++
	if rating == domain.Fail {
		s.progress.Failed++
		if s.redo {
			s.again = append(s.again, next.Identity)
		}
	}
	s.advance()
	return next, nil
}

func (s *Session) advance() {
	s.revealed = false
	s.pos++
	if s.pos >= len(s.queue) && len(s.again) > 0 {
		s.queue, s.again, s.pos = s.again, nil, 0
	}
	s.progress.Remaining = len(s.queue) - s.pos + len(s.again)
	if s.Done() {
		s.log.Info("Drill session finished", "reviewed", s.progress.Reviewed, "failed", s.progress.Failed)
	}
}
