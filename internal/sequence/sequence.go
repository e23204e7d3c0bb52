// Package sequence issues year-scoped request numbers of the form PPYYYYNNNN.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// MaxPerYear is the largest suffix a four digit counter can carry.
const MaxPerYear = 9999

var (
	ErrExhausted        = errors.New("sequence: yearly range exhausted")
	ErrStoreUnavailable = errors.New("sequence: counter store unavailable")
	ErrInvalidNumber    = errors.New("sequence: malformed request number")
	ErrInvalidPrefix    = errors.New("sequence: prefix must be two uppercase letters")
	ErrInvalidYear      = errors.New("sequence: year out of range")
)

var (
	prefixPattern = regexp.MustCompile(`^[A-Z]{2}$`)
	numberPattern = regexp.MustCompile(`^([A-Z]{2})(\d{4})(\d{4})$`)
)

// Store atomically bumps and returns the counter for a year. The first call for a year returns 1.
type Store interface {
	Increment(ctx context.Context, year int) (int64, error)
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the clock used to derive the current year.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// Generator formats counter values from a Store into request numbers.
type Generator struct {
	prefix string
	store  Store
	now    func() time.Time
}

// NewGenerator validates the prefix and wires the store.
func NewGenerator(prefix string, store Store, opts ...Option) (*Generator, error) {
	if !prefixPattern.MatchString(prefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	if store == nil {
		return nil, fmt.Errorf("sequence: store is required")
	}
	g := &Generator{prefix: prefix, store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Prefix returns the configured two-letter prefix.
func (g *Generator) Prefix() string {
	return g.prefix
}

// Next issues a number for the current UTC year.
func (g *Generator) Next(ctx context.Context) (string, error) {
	return g.NextForYear(ctx, g.now().UTC().Year())
}

// NextForYear issues a number for an explicit year.
func (g *Generator) NextForYear(ctx context.Context, year int) (string, error) {
	if year < 1 || year > 9999 {
		return "", fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}

	n, err := g.store.Increment(ctx, year)
	if err != nil {
		if errors.Is(err, ErrExhausted) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if n > MaxPerYear {
		return "", fmt.Errorf("%w: %d reached %d", ErrExhausted, year, n)
	}
	if n < 1 {
		return "", fmt.Errorf("sequence: store returned non-positive value %d", n)
	}

	return Format(g.prefix, year, n), nil
}

// Format renders prefix, year and counter into the canonical number.
func Format(prefix string, year int, n int64) string {
	return fmt.Sprintf("%s%04d%04d", prefix, year, n)
}

// Number is a parsed request number.
type Number struct {
	Prefix string
	Year   int
	Seq    int
}

// String renders the number back into its canonical form.
func (n Number) String() string {
	return Format(n.Prefix, n.Year, int64(n.Seq))
}

// Parse splits a request number into its parts.
func Parse(raw string) (Number, error) {
	m := numberPattern.FindStringSubmatch(raw)
	if m == nil {
		return Number{}, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	year, _ := strconv.Atoi(m[2])
	seq, _ := strconv.Atoi(m[3])
	if seq == 0 {
		return Number{}, fmt.Errorf("%w: %q has zero suffix", ErrInvalidNumber, raw)
	}
	return Number{Prefix: m[1], Year: year, Seq: seq}, nil
}

// Valid reports whether raw is a well-formed request number.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}
