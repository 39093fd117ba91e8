package domain

import "strings"

// Kind distinguishes the two card shapes a deck can contain.
type Kind int

const (
	KindBasic Kind = iota + 1
	KindCloze
)

func (k Kind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindCloze:
		return "cloze"
	default:
		return "unknown"
	}
}

// Content is the body of a card. It is implemented only by Basic and Cloze;
// consumers switch over the concrete type.
type Content interface {
	Kind() Kind
	content()
}

// Basic is a question/answer card.
type Basic struct {
	Front string
	Back  string
}

func (Basic) Kind() Kind { return KindBasic }
func (Basic) content()   {}

// Span is the byte range of one bracketed cloze deletion, brackets included.
type Span struct {
	Start int
	End   int
}

// Cloze is a passage with one or more bracketed blanks.
type Cloze struct {
	Text  string
	Spans []Span
}

func (Cloze) Kind() Kind { return KindCloze }
func (Cloze) content()   {}

// Masked returns the cloze text with every blank replaced by underscores.
// Each placeholder is at least three characters wide so short answers
// don't give themselves away.
func (c Cloze) Masked() string {
	var b strings.Builder
	last := 0
	for _, s := range c.Spans {
		if s.Start < last || s.End > len(c.Text) || s.End-s.Start < 2 {
			continue
		}
		inner := c.Text[s.Start+1 : s.End-1]
		b.WriteString(c.Text[last:s.Start])
		b.WriteByte('[')
		b.WriteString(strings.Repeat("_", max(3, len([]rune(inner)))))
		b.WriteByte(']')
		last = s.End
	}
	b.WriteString(c.Text[last:])
	return b.String()
}

// Location points at the lines of a deck a card was read from.
// It is used for diagnostics only and never feeds the identity.
type Location struct {
	Path      string
	StartLine int
	EndLine   int
}

// RawCard is a card as extracted from a deck on one parse pass.
type RawCard struct {
	Content  Content
	Location Location
}
