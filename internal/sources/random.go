package sources

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/stacklok/thv-confd/internal/config"
)

const (
	defaultRandomMin = 1
	defaultRandomMax = 100
)

// randomSource draws a new number on every fetch
type randomSource struct {
	min, max int
	intN     func(n int) int
}

// NewRandomSource creates a source returning {"number": n} with min <= n <= max
func NewRandomSource(cfg *config.RandomConfig) (Source, error) {
	lo, hi := defaultRandomMin, defaultRandomMax
	if cfg != nil && (cfg.Min != 0 || cfg.Max != 0) {
		lo, hi = cfg.Min, cfg.Max
	}
	if hi < lo {
		return nil, fmt.Errorf("random max %d is lower than min %d", hi, lo)
	}
	return &randomSource{min: lo, max: hi, intN: rand.IntN}, nil
}

func (*randomSource) Type() string {
	return config.SourceTypeRandom
}

func (s *randomSource) Fetch(context.Context) (map[string]any, error) {
	return map[string]any{"number": int64(s.min + s.intN(s.max-s.min+1))}, nil
}
