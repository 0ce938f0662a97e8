package order

import (
	"context"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

const (
	trackingPrefix = "TRK-"
	trackingDigits = 8

	// Local draws before handing a possibly known number to storage, which
	// rejects real duplicates anyway.
	maxLocalDraws = 16
)

// TrackingGenerator issues tracking numbers of the form TRK-XXXXXXXX.
//
// A Bloom filter of numbers already issued screens out collisions before
// they reach the database. False positives only cost an extra draw; the
// UNIQUE constraint stays authoritative.
type TrackingGenerator struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	random func() string
}

// NewTrackingGenerator creates a generator sized for capacity numbers at
// the given false positive rate.
func NewTrackingGenerator(capacity uint, fpRate float64) *TrackingGenerator {
	return &TrackingGenerator{
		filter: bloom.NewWithEstimates(capacity, fpRate),
		random: randomHex,
	}
}

func randomHex() string {
	return uuid.NewString()[:trackingDigits]
}

// Next returns a tracking number not yet seen by the filter and records it.
func (g *TrackingGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var number string
	for range maxLocalDraws {
		number = trackingPrefix + strings.ToUpper(g.random())
		if !g.filter.TestAndAddString(number) {
			return number
		}
	}
	return number
}

// Observe records a number issued elsewhere.
func (g *TrackingGenerator) Observe(number string) {
	g.mu.Lock()
	g.filter.AddString(number)
	g.mu.Unlock()
}

// Seen reports whether number may have been issued.
func (g *TrackingGenerator) Seen(number string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.TestString(number)
}

// Load feeds every stored tracking number into the filter.
func (g *TrackingGenerator) Load(ctx context.Context, orders Repository) (int, error) {
	var n int
	err := orders.TrackingNumbers(ctx, func(number string) {
		g.Observe(number)
		n++
	})
	if err != nil {
		return n, errors.Wrap(err, "load tracking numbers")
	}
	return n, nil
}
