package fsrs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/repeat/internal/domain"
)

var (
	ErrInvalidRating    = errors.New("fsrs: invalid rating")
	ErrIdentityMismatch = errors.New("fsrs: review event identity does not match its record")
	ErrNoReviewTime     = errors.New("fsrs: review event has no timestamp")
)

// FSRS grades. Only Again and Good are reachable from a binary rating;
// Easy is needed as the mean-reversion target for difficulty.
const (
	gradeAgain = 1.0
	gradeGood  = 3.0
	gradeEasy  = 4.0
)

const (
	minStability = 0.001
	maxStability = 36500
)

func gradeOf(r domain.Rating) float64 {
	if r == domain.Fail {
		return gradeAgain
	}
	return gradeGood
}

// Scheduler applies reviews to card records. It is immutable and safe to
// share.
type Scheduler struct {
	p      Params
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
}

// NewScheduler validates p and precomputes the forgetting-curve constants.
func NewScheduler(p Params) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	decay := -p.Weights[20]
	return &Scheduler{
		p:      p,
		decay:  decay,
		factor: math.Pow(0.9, 1/decay) - 1,
	}, nil
}

func (s *Scheduler) Params() Params { return s.p }

// NewRecord is the record for an identity seen for the first time. Its
// stability and difficulty are placeholders; the first review replaces
// them with values seeded from the rating.
func (s *Scheduler) NewRecord(id domain.Identity) domain.CardRecord {
	return domain.CardRecord{
		Identity:   id,
		State:      domain.New,
		Stability:  s.initStability(gradeGood),
		Difficulty: s.initDifficulty(gradeGood),
	}
}

// Review computes the record that results from applying ev to its prior
// record. The prior record is not modified.
func (s *Scheduler) Review(ev domain.ReviewEvent) (domain.CardRecord, error) {
	if !ev.Rating.IsValid() {
		return domain.CardRecord{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(ev.Rating))
	}
	if ev.Identity != ev.Prior.Identity {
		return domain.CardRecord{}, fmt.Errorf("%w: %s vs %s", ErrIdentityMismatch, ev.Identity.Short(), ev.Prior.Identity.Short())
	}
	if ev.ReviewedAt.IsZero() {
		return domain.CardRecord{}, ErrNoReviewTime
	}
	if err := ev.Prior.Validate(); err != nil {
		return domain.CardRecord{}, fmt.Errorf("fsrs: refusing to schedule from corrupt record: %w", err)
	}

	prior := ev.Prior
	next := prior
	g := gradeOf(ev.Rating)
	today := domain.DateOf(ev.ReviewedAt)

	if prior.State == domain.New {
		next.Stability = s.initStability(g)
		next.Difficulty = s.initDifficulty(g)
	} else {
		elapsed := s.ElapsedDays(prior, today)
		if elapsed == 0 {
			next.Stability = s.shortTermStability(prior.Stability, g)
		} else {
			r := s.retrievability(float64(elapsed), prior.Stability)
			next.Stability = s.nextStability(prior.Difficulty, prior.Stability, r, g)
		}
		next.Difficulty = s.nextDifficulty(prior.Difficulty, g)
	}

	var lapse bool
	next.State, lapse = transition(prior.State, ev.Rating)
	if lapse {
		next.Lapses++
	}

	next.Due = today.AddDays(s.Interval(next.Stability))
	reviewedAt := ev.ReviewedAt
	next.LastReviewedAt = &reviewedAt
	next.Reps++
	return next, nil
}

// transition is the state machine. The second result reports a lapse:
// forgetting a card that had reached Review.
func transition(from domain.State, r domain.Rating) (domain.State, bool) {
	pass := r == domain.Pass
	switch from {
	case domain.New, domain.Learning:
		if pass {
			return domain.Review, false
		}
		return domain.Learning, false
	case domain.Review:
		if pass {
			return domain.Review, false
		}
		return domain.Relearning, true
	case domain.Relearning:
		if pass {
			return domain.Review, false
		}
		return domain.Relearning, false
	default:
		panic(fmt.Sprintf("fsrs: unknown state %d", int(from)))
	}
}

// IsDue reports whether a reviewed card should be shown on today. New cards
// are never due; the planner handles them separately.
func (s *Scheduler) IsDue(rec domain.CardRecord, today domain.Date) bool {
	return rec.State != domain.New && !rec.Due.After(today)
}

// ElapsedDays is the number of calendar days between the card's last
// review and on, never negative.
func (s *Scheduler) ElapsedDays(rec domain.CardRecord, on domain.Date) int {
	if rec.LastReviewedAt == nil {
		return 0
	}
	return max(0, on.DaysSince(domain.DateOf(*rec.LastReviewedAt)))
}

// Retrievability estimates the probability of recalling the card on the
// given day. It is 0 for cards that have never been reviewed.
func (s *Scheduler) Retrievability(rec domain.CardRecord, on domain.Date) float64 {
	if rec.State == domain.New || rec.LastReviewedAt == nil {
		return 0
	}
	return s.retrievability(float64(s.ElapsedDays(rec, on)), rec.Stability)
}

// Interval is the number of days until retrievability decays to the desired
// retention, clamped to the configured range.
func (s *Scheduler) Interval(stability float64) int {
	ivl := stability / s.factor * (math.Pow(s.p.DesiredRetention, 1/s.decay) - 1)
	if math.IsNaN(ivl) {
		return s.p.MinInterval
	}
	days := int(math.Min(math.Round(ivl), float64(s.p.MaxInterval)))
	return max(s.p.MinInterval, days)
}

// NextDueDate is the due date of a card reviewed at t that now has the
// given stability.
func (s *Scheduler) NextDueDate(stability float64, t time.Time) domain.Date {
	return domain.DateOf(t).AddDays(s.Interval(stability))
}
