package shortener

import (
	"errors"
	"fmt"

	"github.com/speps/go-hashids/v2"
)

// ErrBadHash is returned when a hash does not decode to exactly one id.
var ErrBadHash = errors.New("shortener: malformed hash")

// Hasher turns row ids into short reversible strings. The same id, salt, and
// minimum length always produce the same hash.
type Hasher struct {
	h *hashids.HashID
}

// NewHasher builds a Hasher for salt and minLength.
func NewHasher(salt string, minLength int) (*Hasher, error) {
	if minLength < 0 {
		return nil, fmt.Errorf("shortener: min length must be >= 0, got %d", minLength)
	}
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = minLength
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("shortener: hashids: %w", err)
	}
	return &Hasher{h: h}, nil
}

// Encode returns the hash of a non-negative id.
func (h *Hasher) Encode(id int64) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("shortener: negative id %d", id)
	}
	return h.h.EncodeInt64([]int64{id})
}

// Decode reverses Encode.
func (h *Hasher) Decode(hash string) (int64, error) {
	ids, err := h.h.DecodeInt64WithError(hash)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadHash, err)
	}
	if len(ids) != 1 {
		return 0, ErrBadHash
	}
	return ids[0], nil
}
