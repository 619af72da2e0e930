// Package pricefeed supplies the native-coin USD reference price.
package pricefeed

import (
	"context"
	"math/rand"
	"sync"
)

// Source fetches the current reference price in USD.
type Source interface {
	Name() string
	FetchPrice(ctx context.Context) (float64, error)
}

// StaticSource returns a base price plus uniform jitter in [0, Jitter).
type StaticSource struct {
	Base   float64
	Jitter float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStaticSource creates a static source. seed makes the jitter
// reproducible.
func NewStaticSource(base, jitter float64, seed int64) *StaticSource {
	return &StaticSource{
		Base:   base,
		Jitter: jitter,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *StaticSource) Name() string { return "static" }

// FetchPrice implements Source.
func (s *StaticSource) FetchPrice(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.Jitter <= 0 {
		return s.Base, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Base + s.rng.Float64()*s.Jitter, nil
}
