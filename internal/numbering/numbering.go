// Package numbering generates the human-readable identifiers handed to
// customers: package tracking numbers and invoice numbers.
//
// Both follow the same two-tier scheme: a short random candidate checked
// against the datastore, then a UUID-derived fallback that needs no further
// lookup. The datastore's UNIQUE constraint stays the final authority.
package numbering

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// FallbackPrefix is used when the recipient city yields no letters.
	FallbackPrefix = "KID"
	// InvoicePrefix starts every invoice number.
	InvoicePrefix = "FACT"
	// MaxTrackingAttempts bounds the random-suffix retries before the UUID fallback.
	MaxTrackingAttempts = 10

	prefixLen        = 3
	prefixFiller     = 'X'
	trackingDigits   = 4
	invoiceDigits    = 8
	fallbackHexChars = 8
)

// ExistsFunc reports whether a candidate identifier is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Source yields random integers in [0, n).
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Generator produces tracking and invoice numbers.
type Generator struct {
	rnd     Source
	newUUID func() uuid.UUID
}

// Option customises a Generator.
type Option func(*Generator)

// WithSource overrides the random source, mainly for tests.
func WithSource(src Source) Option {
	return func(g *Generator) { g.rnd = src }
}

// WithUUID overrides the UUID factory used by the fallback tier.
func WithUUID(fn func() uuid.UUID) Option {
	return func(g *Generator) { g.newUUID = fn }
}

// New builds a Generator backed by math/rand/v2 and uuid.New.
func New(opts ...Option) *Generator {
	g := &Generator{rnd: globalSource{}, newUUID: uuid.New}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TrackingNumber returns a tracking number built from the recipient city.
func (g *Generator) TrackingNumber(ctx context.Context, city string, exists ExistsFunc) (string, error) {
	prefix := CityPrefix(city)
	for attempt := 0; attempt < MaxTrackingAttempts; attempt++ {
		candidate := prefix + g.digits(trackingDigits)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("numbering: check tracking number: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return prefix + g.hexFragment(), nil
}

// InvoiceNumber returns FACT followed by eight random digits. The width makes
// collisions rare, so a single existence check is made before falling back.
func (g *Generator) InvoiceNumber(ctx context.Context, exists ExistsFunc) (string, error) {
	candidate := InvoicePrefix + g.digits(invoiceDigits)
	taken, err := exists(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("numbering: check invoice number: %w", err)
	}
	if !taken {
		return candidate, nil
	}
	return InvoicePrefix + g.hexFragment(), nil
}

// CityPrefix folds accents, keeps ASCII letters only and pads or truncates
// the result to three characters.
func CityPrefix(city string) string {
	folded, _, err := transform.String(accentFolder(), city)
	if err != nil {
		folded = city
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(folded) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() == prefixLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return FallbackPrefix
	}
	for b.Len() < prefixLen {
		b.WriteRune(prefixFiller)
	}
	return b.String()
}

func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func (g *Generator) digits(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte('0' + g.rnd.IntN(10))
	}
	return string(buf)
}

func (g *Generator) hexFragment() string {
	hex := strings.ReplaceAll(g.newUUID().String(), "-", "")
	return strings.ToUpper(hex[:fallbackHexChars])
}
