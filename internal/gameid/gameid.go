// Package gameid generates the identifiers games and players are addressed by.
// IDs are UUIDv7 values rendered as 26 lowercase Crockford base32 characters,
// so they sort by creation time and are safe inside queue names.
package gameid

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the encoded length of every ID.
const Length = 26

// Generator creates IDs. A nil reader uses crypto randomness.
type Generator struct {
	rand io.Reader
}

// NewGenerator creates a generator drawing random bits from r.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate creates a new ID using crypto randomness.
func Generate() string {
	return NewGenerator(nil).Generate()
}

// Generate creates a new ID from the generator's reader.
func (g *Generator) Generate() string {
	var (
		id  uuid.UUID
		err error
	)
	if g.rand != nil {
		id, err = uuid.NewV7FromReader(g.rand)
	} else {
		id, err = uuid.NewV7()
	}
	if err != nil {
		panic("failed to generate uuid: " + err.Error())
	}
	return Encode(id)
}

// Encode renders a UUID as 26 base32 characters. The 128 bits are treated as a
// 130-bit number with two leading zero bits.
func Encode(id uuid.UUID) string {
	var sb strings.Builder
	sb.Grow(Length)
	for i := range Length {
		var value byte
		for b := range 5 {
			value = value<<1 | bitAt(id, i*5+b-2)
		}
		sb.WriteByte(alphabet[value])
	}
	return sb.String()
}

func bitAt(id uuid.UUID, pos int) byte {
	if pos < 0 {
		return 0
	}
	return (id[pos/8] >> (7 - pos%8)) & 1
}

// Validate checks if an ID is valid (26 characters, valid base32)
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("id must be exactly %d characters, got %d", Length, len(id))
	}

	// the two padding bits keep the first character within 0-7
	if id[0] > '7' {
		return fmt.Errorf("id first character must be 0-7, got %c", id[0])
	}

	for i, char := range id {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}

	return nil
}
