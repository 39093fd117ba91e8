package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/gitsource"
	"github.com/conorfennell/repeat/internal/knol"
	"github.com/conorfennell/repeat/internal/parser"
	"github.com/conorfennell/repeat/internal/storage"
)

// SourceStore records which deck roots have been scanned.
type SourceStore interface {
	TouchSource(ctx context.Context, path, kind string) error
}

// Scanner collects the cards of a set of deck roots. A root is a Markdown
// file, a directory searched recursively for .md files, or a git URL that
// is cloned or pulled into the cache directory first.
type Scanner struct {
	sources  SourceStore
	cacheDir string
	log      *slog.Logger
	syncRepo func(ctx context.Context, url, localPath string) error
}

func NewScanner(sources SourceStore, cacheDir string, log *slog.Logger) *Scanner {
	return &Scanner{
		sources:  sources,
		cacheDir: cacheDir,
		log:      log,
		syncRepo: func(ctx context.Context, url, localPath string) error {
			return gitsource.Sync(ctx, log, url, localPath)
		},
	}
}

// Scan returns the cards of every root in order. Problems (missing roots,
// unreadable files, malformed cards, failed git syncs) are logged and
// returned; they never stop the rest of the scan. The only fatal error is
// cancellation of ctx.
func (s *Scanner) Scan(ctx context.Context, roots []string) ([]domain.RawCard, []error, error) {
	var cards []domain.RawCard
	var problems []error

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		path, kind := root, storage.SourceLocal
		if gitsource.IsURL(root) {
			kind = storage.SourceGit
			local, err := gitsource.LocalPath(s.cacheDir, root)
			if err != nil {
				problems = append(problems, s.problem(root, err))
				continue
			}
			if err := s.syncRepo(ctx, root, local); err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				problems = append(problems, s.problem(root, err))
				continue
			}
			path = local
		} else if abs, err := filepath.Abs(root); err == nil {
			root = abs
			path = abs
		}

		files, unreadable, err := deckFiles(path)
		if err != nil {
			problems = append(problems, s.problem(root, err))
			continue
		}
		for _, err := range unreadable {
			problems = append(problems, s.problem(root, err))
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			for card, err := range parser.ParseFile(file) {
				if err != nil {
					problems = append(problems, s.problem(file, err))
					continue
				}
				if _, err := knol.Compute(card); err != nil {
					problems = append(problems, s.problem(file, &parser.ParseError{
						Path: file, Line: card.Location.StartLine, Err: err,
					}))
					continue
				}
				cards = append(cards, card)
			}
		}

		if s.sources != nil {
			if err := s.sources.TouchSource(ctx, root, kind); err != nil {
				s.log.Warn("Failed to record source", "source", root, "error", err)
			}
		}
		s.log.Debug("Scanned deck root", "source", root, "files", len(files))
	}

	s.log.Info("Scan complete", "roots", len(roots), "cards", len(cards), "problems", len(problems))
	return cards, problems, nil
}

func (s *Scanner) problem(path string, err error) error {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		s.log.Warn("Skipping malformed card", "path", pe.Path, "line", pe.Line, "error", pe.Err)
		return err
	}
	s.log.Warn("Skipping deck source", "path", path, "error", err)
	return fmt.Errorf("%s: %w", path, err)
}

// deckFiles lists the Markdown files under root in lexical order. Hidden
// directories such as .git are skipped. Entries below root that cannot be
// read are skipped and returned as the second result; only an unreadable
// root is an error.
func deckFiles(root string) ([]string, []error, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil, nil
	}

	var files []string
	var unreadable []error
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			unreadable = append(unreadable, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, unreadable, nil
}
