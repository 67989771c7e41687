package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go-orders/internal/observability"
	"go-orders/pkg/models"

	"github.com/sirupsen/logrus"
)

const DefaultFailureRate = 0.1

var ErrSimulatedFailure = errors.New("simulated temporary processing error")

// FailureSource decides whether the next processing attempt fails.
type FailureSource interface {
	ShouldFail() bool
}

// RandomFailureSource fails with a fixed probability, independent of the order.
type RandomFailureSource struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

func NewRandomFailureSource(rate float64, seed int64) *RandomFailureSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomFailureSource{
		rate: rate,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (s *RandomFailureSource) ShouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.rate
}

// SequenceFailureSource replays a fixed list of outcomes. Once the list is
// exhausted every attempt succeeds.
type SequenceFailureSource struct {
	mu       sync.Mutex
	outcomes []bool
	next     int
}

func NewSequenceFailureSource(outcomes ...bool) *SequenceFailureSource {
	return &SequenceFailureSource{outcomes: outcomes}
}

func (s *SequenceFailureSource) ShouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.outcomes) {
		return false
	}
	fail := s.outcomes[s.next]
	s.next++
	return fail
}

// Processor is the fallible unit of work applied to each decoded order.
type Processor interface {
	Process(ctx context.Context, order models.Order) error
}

// OrderProcessor handles business logic for a decoded order
type OrderProcessor struct {
	failures FailureSource
	logger   *logrus.Logger
}

func NewOrderProcessor(failures FailureSource) *OrderProcessor {
	if failures == nil {
		failures = NewRandomFailureSource(DefaultFailureRate, 0)
	}
	return &OrderProcessor{
		failures: failures,
		logger:   observability.GetLogger(),
	}
}

// Process returns ErrSimulatedFailure whenever the failure source says so.
func (p *OrderProcessor) Process(ctx context.Context, order models.Order) error {
	if p.failures.ShouldFail() {
		return ErrSimulatedFailure
	}

	p.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"product":  order.Category,
		"price":    order.Amount,
	}).Info("Processing order")
	return nil
}
