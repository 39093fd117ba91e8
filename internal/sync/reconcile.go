package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/knol"
)

// Entry pairs a card from the current parse with its scheduling record.
type Entry struct {
	Card   domain.RawCard
	Record domain.CardRecord
}

// WorkingSet is the set of cards present in the decks on this run, in deck
// order, each with its record. Records of cards that have disappeared from
// every deck stay in storage but never enter a WorkingSet.
type WorkingSet struct {
	entries map[domain.Identity]*Entry
	order   []domain.Identity
}

func newWorkingSet(capacity int) *WorkingSet {
	return &WorkingSet{entries: make(map[domain.Identity]*Entry, capacity)}
}

func (ws *WorkingSet) Len() int { return len(ws.order) }

// Order returns the identities in the order their cards were first seen.
func (ws *WorkingSet) Order() []domain.Identity {
	return append([]domain.Identity(nil), ws.order...)
}

// Get returns the entry for an identity.
func (ws *WorkingSet) Get(id domain.Identity) (Entry, bool) {
	e, ok := ws.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Records returns every record in deck order.
func (ws *WorkingSet) Records() []domain.CardRecord {
	recs := make([]domain.CardRecord, 0, len(ws.order))
	for _, id := range ws.order {
		recs = append(recs, ws.entries[id].Record)
	}
	return recs
}

// Update replaces the record of a card already in the set.
func (ws *WorkingSet) Update(rec domain.CardRecord) error {
	e, ok := ws.entries[rec.Identity]
	if !ok {
		return fmt.Errorf("card %s is not in the working set", rec.Identity.Short())
	}
	e.Record = rec
	return nil
}

// MutationKind says why a record has to be written back.
type MutationKind int

const (
	// MutationInsert stores the record of an identity seen for the first time.
	MutationInsert MutationKind = iota + 1
	// MutationReset overwrites a stored record that failed validation.
	MutationReset
)

func (k MutationKind) String() string {
	switch k {
	case MutationInsert:
		return "insert"
	case MutationReset:
		return "reset"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

// Mutation is a record write produced by reconciliation.
type Mutation struct {
	Kind   MutationKind
	Record domain.CardRecord
	Reason error // why a reset was needed
}

// Reconcile matches the cards parsed on this run against the persisted
// records. Existing records are attached unchanged; identities seen for
// the first time get a New record and an insert. A persisted record that
// fails validation is replaced by a New record and a reset. A card that
// appears more than once is kept once, at its first location.
//
// Cards must have content (see knol.Compute).
func Reconcile(cards []domain.RawCard, persisted map[domain.Identity]domain.CardRecord, sched *fsrs.Scheduler) (*WorkingSet, []Mutation) {
	ws := newWorkingSet(len(cards))
	var mutations []Mutation

	for _, card := range cards {
		id := knol.Hash(card)
		if _, seen := ws.entries[id]; seen {
			continue
		}

		rec, found := persisted[id]
		if !found {
			rec = sched.NewRecord(id)
			mutations = append(mutations, Mutation{Kind: MutationInsert, Record: rec})
		} else if err := rec.Validate(); err != nil {
			rec = sched.NewRecord(id)
			mutations = append(mutations, Mutation{Kind: MutationReset, Record: rec, Reason: err})
		}

		ws.entries[id] = &Entry{Card: card, Record: rec}
		ws.order = append(ws.order, id)
	}
	return ws, mutations
}

// RecordStore is the persistence the Reconciler needs.
type RecordStore interface {
	LoadRecords(ctx context.Context) (map[domain.Identity]domain.CardRecord, []error, error)
	UpsertRecords(ctx context.Context, recs []domain.CardRecord) error
}

// Reconciler runs Reconcile against the store and writes its mutations
// back before handing out the WorkingSet.
type Reconciler struct {
	store RecordStore
	sched *fsrs.Scheduler
	log   *slog.Logger
}

func NewReconciler(store RecordStore, sched *fsrs.Scheduler, log *slog.Logger) *Reconciler {
	return &Reconciler{store: store, sched: sched, log: log}
}

// Run loads every stored record, reconciles the cards against them and
// commits all inserts and resets in one transaction.
func (r *Reconciler) Run(ctx context.Context, cards []domain.RawCard) (*WorkingSet, error) {
	persisted, bad, err := r.store.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	for _, err := range bad {
		r.log.Warn("Skipping unreadable card record", "error", err)
	}

	ws, mutations := Reconcile(cards, persisted, r.sched)

	var inserted, reset int
	recs := make([]domain.CardRecord, 0, len(mutations))
	for _, m := range mutations {
		switch m.Kind {
		case MutationInsert:
			inserted++
		case MutationReset:
			reset++
			r.log.Warn("Card record is corrupt, resetting to new", "identity", m.Record.Identity.Short(), "error", m.Reason)
		}
		recs = append(recs, m.Record)
	}

	if len(recs) > 0 {
		if err := r.store.UpsertRecords(ctx, recs); err != nil {
			return nil, fmt.Errorf("reconcile: %w", err)
		}
	}

	r.log.Info("Reconciliation complete",
		"cards", ws.Len(),
		"known", len(persisted),
		"inserted", inserted,
		"reset", reset,
	)
	return ws, nil
}
