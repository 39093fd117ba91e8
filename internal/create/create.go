package create

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/knol"
	"github.com/conorfennell/repeat/internal/parser"
)

var (
	ErrInvalidDeckPath = errors.New("invalid deck path")
	ErrEmptyInput      = errors.New("nothing to save")
	ErrNoCards         = errors.New("text contains no cards")
)

// ValidateDeckPath checks that path can hold a deck: a Markdown file that
// may or may not exist yet.
func ValidateDeckPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidDeckPath)
	}
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return fmt.Errorf("%w: %s is not a .md file", ErrInvalidDeckPath, path)
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("%w: %s is a directory", ErrInvalidDeckPath, path)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrInvalidDeckPath, err)
	}
	return nil
}

// Store reserves identities for newly written cards.
type Store interface {
	Exists(ctx context.Context, id domain.Identity) (bool, error)
	InsertRecords(ctx context.Context, recs []domain.CardRecord) error
}

// Saver appends new cards to one deck file.
type Saver struct {
	path  string
	store Store
	sched *fsrs.Scheduler
	log   *slog.Logger
}

func NewSaver(path string, store Store, sched *fsrs.Scheduler, log *slog.Logger) (*Saver, error) {
	if err := ValidateDeckPath(path); err != nil {
		return nil, err
	}
	return &Saver{path: path, store: store, sched: sched, log: log}, nil
}

func (s *Saver) Path() string { return s.path }

// Save validates text as one or more cards and, if every card is new,
// stores a New record for each and appends the text to the deck. Nothing
// is written when any card is malformed or already exists in the text,
// the deck or the store. It returns the number of cards saved.
func (s *Saver) Save(ctx context.Context, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyInput
	}

	ids, err := s.identities(text)
	if err != nil {
		return 0, err
	}

	existing, err := s.deckIdentities()
	if err != nil {
		return 0, err
	}

	recs := make([]domain.CardRecord, 0, len(ids))
	for _, id := range ids {
		if existing[id] {
			return 0, fmt.Errorf("card %s is already in %s: %w", id.Short(), s.path, domain.ErrDuplicateIdentity)
		}
		found, err := s.store.Exists(ctx, id)
		if err != nil {
			return 0, err
		}
		if found {
			return 0, fmt.Errorf("card %s already has a history: %w", id.Short(), domain.ErrDuplicateIdentity)
		}
		recs = append(recs, s.sched.NewRecord(id))
	}

	if err := s.store.InsertRecords(ctx, recs); err != nil {
		return 0, err
	}
	if err := s.appendToDeck(text); err != nil {
		return 0, err
	}

	s.log.Info("Cards saved", "path", s.path, "cards", len(recs))
	return len(recs), nil
}

// identities parses text and returns the identity of each card, failing on
// the first malformed card or repeated identity.
func (s *Saver) identities(text string) ([]domain.Identity, error) {
	var ids []domain.Identity
	seen := make(map[domain.Identity]bool)
	for card, err := range parser.Extract(text, s.path) {
		if err != nil {
			return nil, err
		}
		id, err := knol.Compute(card)
		if err != nil {
			return nil, &parser.ParseError{Path: s.path, Line: card.Location.StartLine, Err: err}
		}
		if seen[id] {
			return nil, fmt.Errorf("card at line %d is repeated: %w", card.Location.StartLine, domain.ErrDuplicateIdentity)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoCards
	}
	return ids, nil
}

// deckIdentities returns the identities of the cards already in the deck.
// Malformed cards in the deck are ignored here; they are reported when the
// deck is scanned.
func (s *Saver) deckIdentities() (map[domain.Identity]bool, error) {
	ids := make(map[domain.Identity]bool)
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	for card, err := range parser.ParseFile(s.path) {
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if id, err := knol.Compute(card); err == nil {
			ids[id] = true
		}
	}
	return ids, nil
}

// appendToDeck adds text to the end of the deck, separated from earlier
// content by a blank line. The deck is created if needed.
func (s *Saver) appendToDeck(text string) error {
	prior, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read deck %s: %w", s.path, err)
	}

	var b bytes.Buffer
	if len(prior) > 0 {
		if !bytes.HasSuffix(prior, []byte("\n")) {
			b.WriteByte('\n')
		}
		if !bytes.HasSuffix(prior, []byte("\n\n")) {
			b.WriteByte('\n')
		}
		// Leading prose would otherwise continue the deck's last card.
		if !startsWithTag(text) {
			b.WriteString("---\n\n")
		}
	}
	b.WriteString(text)
	b.WriteByte('\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create deck directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open deck %s: %w", s.path, err)
	}
	if _, err := f.Write(b.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append to deck %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync deck %s: %w", s.path, err)
	}
	return f.Close()
}

func startsWithTag(text string) bool {
	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	for _, tag := range []string{"Q:", "C:"} {
		if strings.HasPrefix(first, tag) {
			return true
		}
	}
	return false
}
