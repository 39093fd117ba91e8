package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// State is the scheduling state of a card. The numeric values are stored
// in the database.
// 0: New, 1: Learning, 2: Review, 3: Relearning
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Learning:
		return "learning"
	case Review:
		return "review"
	case Relearning:
		return "relearning"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Rating is the binary outcome of one review.
type Rating int

const (
	Fail Rating = iota + 1
	Pass
)

func (r Rating) IsValid() bool { return r == Fail || r == Pass }

func (r Rating) String() string {
	switch r {
	case Fail:
		return "fail"
	case Pass:
		return "pass"
	default:
		return fmt.Sprintf("Rating(%d)", int(r))
	}
}

// CardRecord is the persisted scheduling history of one identity.
type CardRecord struct {
	Identity       Identity
	State          State   `validate:"gte=0,lte=3"`
	Stability      float64 `validate:"gt=0,lte=36500"`
	Difficulty     float64 `validate:"gte=1,lte=10"`
	Due            Date
	LastReviewedAt *time.Time
	Reps           int `validate:"gte=0"`
	Lapses         int `validate:"gte=0,ltefield=Reps"`
}

// ReviewEvent is one rating applied to a card. It is consumed by the
// scheduler and not stored; only the resulting record is kept.
type ReviewEvent struct {
	Identity   Identity
	Rating     Rating
	ReviewedAt time.Time
	Prior      CardRecord
}

var ErrInvalidRecord = errors.New("invalid card record")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(reviewedRecordValidation, CardRecord{})
	return v
}

// reviewedRecordValidation requires a due date and a review time once a
// card has left the New state.
func reviewedRecordValidation(sl validator.StructLevel) {
	r := sl.Current().Interface().(CardRecord)
	if r.State == New {
		return
	}
	if r.Due.IsZero() {
		sl.ReportError(r.Due, "Due", "Due", "due_when_reviewed", "")
	}
	if r.LastReviewedAt == nil {
		sl.ReportError(r.LastReviewedAt, "LastReviewedAt", "LastReviewedAt", "reviewed_at_when_reviewed", "")
	}
	if r.Reps == 0 {
		sl.ReportError(r.Reps, "Reps", "Reps", "reps_when_reviewed", "")
	}
}

// Validate reports whether the record's numeric state is usable by the
// scheduler. Records loaded from storage that fail this are reinitialised.
func (r CardRecord) Validate() error {
	if r.Identity.IsZero() {
		return fmt.Errorf("%w: missing identity", ErrInvalidRecord)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidRecord, r.Identity.Short(), err)
	}
	return nil
}
