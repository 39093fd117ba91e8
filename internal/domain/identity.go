package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Identity is the content digest of a card. It is the primary key of the
// card's scheduling history.
type Identity [sha256.Size]byte

var (
	ErrDuplicateIdentity = errors.New("card identity already exists")
	ErrInvalidIdentity   = errors.New("invalid card identity")
)

// ParseIdentity decodes the hex form produced by Identity.String.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) != hex.EncodedLen(len(id)) {
		return id, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("%w: %q: %v", ErrInvalidIdentity, s, err)
	}
	return id, nil
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Short is the first 8 hex characters, enough to tell cards apart in logs.
func (id Identity) Short() string {
	return id.String()[:8]
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Compare orders identities bytewise, which matches the order of their hex forms.
func (id Identity) Compare(other Identity) int {
	return bytes.Compare(id[:], other[:])
}
