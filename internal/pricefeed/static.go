package pricefeed

import (
	"context"
	"math/big"
	"sync"
)

// StaticAggregator is an Aggregator publishing a configured fixed rate.
// Used by the local deployment mode and by tests; the rate can be updated
// at runtime.
type StaticAggregator struct {
	mu       sync.RWMutex
	answer   *big.Int
	decimals uint8
}

func NewStaticAggregator(answer *big.Int, decimals uint8) *StaticAggregator {
	return &StaticAggregator{answer: answer, decimals: decimals}
}

func (s *StaticAggregator) LatestRoundData(_ context.Context) (*big.Int, uint8, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.answer), s.decimals, nil
}

func (s *StaticAggregator) UpdateAnswer(answer *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = new(big.Int).Set(answer)
}
