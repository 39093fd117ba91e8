package knol

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/conorfennell/repeat/internal/domain"
)

// ErrNoContent is returned for cards whose text has no letters or digits.
var ErrNoContent = errors.New("card has no hashable content")

// Normalize reduces a card to the text its identity is computed from.
//
// Each field is NFKC-normalized and case-folded, then split into tokens:
// runs of letters and digits, plus the single characters that change
// meaning ('+' and '-', and in cloze text the brackets marking blanks).
// Apostrophes join ("it's" == "its"); every other character only separates.
// Tokens are joined by single spaces and fields by newlines after a kind tag,
// so reflowing, re-indenting or re-capitalizing a card keeps its identity.
func Normalize(card domain.RawCard) string {
	switch c := card.Content.(type) {
	case domain.Basic:
		return strings.Join([]string{
			domain.KindBasic.String(),
			normalizeText(c.Front, isSign),
			normalizeText(c.Back, isSign),
		}, "\n")
	case domain.Cloze:
		return strings.Join([]string{
			domain.KindCloze.String(),
			normalizeText(c.Text, isClozeSign),
		}, "\n")
	default:
		panic(fmt.Sprintf("knol: unhandled card content %T", card.Content))
	}
}

// Hash returns the identity of a card.
func Hash(card domain.RawCard) domain.Identity {
	return domain.Identity(sha256.Sum256([]byte(Normalize(card))))
}

// Compute is Hash for cards that have not been validated yet: it refuses
// cards whose fields normalize to nothing.
func Compute(card domain.RawCard) (domain.Identity, error) {
	if !hasContent(card) {
		return domain.Identity{}, ErrNoContent
	}
	return Hash(card), nil
}

func hasContent(card domain.RawCard) bool {
	switch c := card.Content.(type) {
	case domain.Basic:
		return normalizeText(c.Front, isSign) != "" && normalizeText(c.Back, isSign) != ""
	case domain.Cloze:
		return normalizeText(c.Text, isSign) != ""
	default:
		return false
	}
}

func isSign(r rune) bool { return r == '+' || r == '-' }

func isClozeSign(r rune) bool { return isSign(r) || r == '[' || r == ']' }

func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', 'ʼ', 'ʻ', '‛':
		return true
	}
	return false
}

func normalizeText(s string, significant func(rune) bool) string {
	// A Caser carries state, so each call gets its own.
	s = cases.Fold().String(norm.NFKC.String(s))

	var b strings.Builder
	inWord := false
	for _, r := range s {
		switch {
		case isJoiner(r):
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			if !inWord {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				inWord = true
			}
			b.WriteRune(r)
		case significant(r):
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			inWord = false
		default:
			inWord = false
		}
	}
	return b.String()
}
