package parser

import (
	"bufio"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/conorfennell/repeat/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	clozePrefix    = "C:"
)

// Malformed card reasons. They are reported wrapped in a *ParseError and
// never stop the rest of the deck from being parsed.
var (
	ErrMissingAnswer   = errors.New("question has no answer")
	ErrMissingQuestion = errors.New("answer has an empty question")
	ErrOrphanAnswer    = errors.New("answer without a question")
	ErrNoClozeSpan     = errors.New("cloze has no [bracketed] text")
)

// ParseError locates a malformed card.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingCloze
)

// maxLineSize bounds a single deck line; bufio's default of 64KiB is too
// small for pasted tables.
const maxLineSize = 1 << 20

// ParseFile reads a deck from disk and extracts its cards. A read failure
// is yielded as the only error.
func ParseFile(path string) iter.Seq2[domain.RawCard, error] {
	data, err := os.ReadFile(path)
	if err != nil {
		return func(yield func(domain.RawCard, error) bool) {
			yield(domain.RawCard{}, fmt.Errorf("read deck %s: %w", path, err))
		}
	}
	return Extract(string(data), path)
}

// Extract lazily parses the cards in a deck's text. Malformed cards are
// yielded as *ParseError values and parsing continues after them. Ranging
// over the sequence again parses the text again.
func Extract(text, sourcePath string) iter.Seq2[domain.RawCard, error] {
	return func(yield func(domain.RawCard, error) bool) {
		p := &blockParser{path: sourcePath, yield: yield}
		scanner := bufio.NewScanner(strings.NewReader(text))
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			p.lineNo++
			if !p.feed(scanner.Text()) {
				return
			}
		}
		if !p.finish() {
			return
		}
		if err := scanner.Err(); err != nil {
			yield(domain.RawCard{}, fmt.Errorf("scan deck %s: %w", sourcePath, err))
		}
	}
}

// blockParser accumulates one tagged block at a time.
type blockParser struct {
	path   string
	yield  func(domain.RawCard, error) bool
	lineNo int

	current   state
	startLine int
	lastLine  int
	question  []string
	answer    []string
	cloze     []string
	stopped   bool
}

// feed consumes one line and reports whether the consumer wants more.
func (p *blockParser) feed(raw string) bool {
	line := strings.TrimSpace(raw)

	if isHorizontalRule(line) {
		return p.finish()
	}

	if rest, ok := strings.CutPrefix(line, questionPrefix); ok {
		if !p.finish() {
			return false
		}
		p.begin(readingQuestion)
		p.question = appendLine(p.question, rest)
		return true
	}

	if rest, ok := strings.CutPrefix(line, clozePrefix); ok {
		if !p.finish() {
			return false
		}
		p.begin(readingCloze)
		p.cloze = appendLine(p.cloze, rest)
		return true
	}

	if rest, ok := strings.CutPrefix(line, answerPrefix); ok {
		if p.current != readingQuestion && p.current != readingAnswer {
			if !p.finish() {
				return false
			}
			return p.emitError(p.lineNo, ErrOrphanAnswer)
		}
		p.current = readingAnswer
		p.answer = appendLine(p.answer, rest)
		p.lastLine = p.lineNo
		return true
	}

	switch p.current {
	case readingQuestion:
		p.question = appendLine(p.question, line)
	case readingAnswer:
		p.answer = appendLine(p.answer, line)
	case readingCloze:
		p.cloze = appendLine(p.cloze, line)
	case seeking:
		return true
	}
	if line != "" {
		p.lastLine = p.lineNo
	}
	return true
}

func (p *blockParser) begin(s state) {
	p.current = s
	p.startLine = p.lineNo
	p.lastLine = p.lineNo
	p.question, p.answer, p.cloze = nil, nil, nil
}

// finish closes the open block, if any, yielding its card or its error.
func (p *blockParser) finish() bool {
	s := p.current
	p.current = seeking
	loc := domain.Location{Path: p.path, StartLine: p.startLine, EndLine: p.lastLine}

	switch s {
	case seeking:
		return true
	case readingQuestion:
		return p.emitError(p.startLine, ErrMissingAnswer)
	case readingAnswer:
		if len(p.question) == 0 {
			return p.emitError(p.startLine, ErrMissingQuestion)
		}
		if len(p.answer) == 0 {
			return p.emitError(p.startLine, ErrMissingAnswer)
		}
		return p.emit(domain.RawCard{
			Content: domain.Basic{
				Front: strings.Join(p.question, "\n"),
				Back:  strings.Join(p.answer, "\n"),
			},
			Location: loc,
		})
	case readingCloze:
		text := strings.Join(p.cloze, "\n")
		spans := FindClozeSpans(text)
		if len(spans) == 0 {
			return p.emitError(p.startLine, ErrNoClozeSpan)
		}
		return p.emit(domain.RawCard{
			Content:  domain.Cloze{Text: text, Spans: spans},
			Location: loc,
		})
	default:
		panic(fmt.Sprintf("parser: unknown state %d", s))
	}
}

func (p *blockParser) emit(card domain.RawCard) bool {
	if p.stopped {
		return false
	}
	if !p.yield(card, nil) {
		p.stopped = true
	}
	return !p.stopped
}

func (p *blockParser) emitError(line int, err error) bool {
	if p.stopped {
		return false
	}
	if !p.yield(domain.RawCard{}, &ParseError{Path: p.path, Line: line, Err: err}) {
		p.stopped = true
	}
	return !p.stopped
}

// FindClozeSpans returns the bracketed blanks in text. Brackets don't nest:
// the first '[' opens a span and the next ']' closes it. Empty spans are
// dropped.
func FindClozeSpans(text string) []domain.Span {
	var spans []domain.Span
	start := -1
	for i, ch := range text {
		switch {
		case ch == '[' && start < 0:
			start = i
		case ch == ']' && start >= 0:
			if strings.TrimSpace(text[start+1:i]) != "" {
				spans = append(spans, domain.Span{Start: start, End: i + 1})
			}
			start = -1
		}
	}
	return spans
}

func appendLine(lines []string, line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return lines
	}
	return append(lines, line)
}

// isHorizontalRule matches Markdown thematic breaks: three or more of the
// same '-', '*' or '_' with optional spaces between them.
func isHorizontalRule(line string) bool {
	compact := strings.ReplaceAll(line, " ", "")
	if len(compact) < 3 {
		return false
	}
	c := compact[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	return strings.Count(compact, string(c)) == len(compact)
}
