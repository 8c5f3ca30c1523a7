package feed

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

// Options bound the random walk.
type Options struct {
	Interval  time.Duration
	MaxDelta  float64 // each tick moves a price by at most ±MaxDelta
	Floor     float64 // prices never drop below Floor
	BasePrice float64 // initial price is BasePrice + [0, Spread)
	Spread    float64
}

func DefaultOptions() Options {
	return Options{
		Interval:  time.Second,
		MaxDelta:  1.0,
		Floor:     1.0,
		BasePrice: 100.0,
		Spread:    100.0,
	}
}

// Sink receives every batch after it has been handed to the router.
type Sink interface {
	Publish(ctx context.Context, batch []models.StockUpdate) error
}

// Simulator owns the price table. Tick is the only writer; Prices hands
// out copies.
type Simulator struct {
	logger  *zap.Logger
	symbols []string
	opts    Options
	rand    Rand
	clock   Clock
	sink    Sink

	mu          sync.RWMutex
	prices      map[string]float64
	seqCounters map[string]int64
}

// NewSimulator seeds one price per catalog symbol. sink may be nil.
func NewSimulator(
	logger *zap.Logger,
	catalog models.Catalog,
	opts Options,
	rnd Rand,
	clock Clock,
	sink Sink,
) *Simulator {
	s := &Simulator{
		logger:      logger,
		symbols:     catalog.Symbols(),
		opts:        opts,
		rand:        rnd,
		clock:       clock,
		sink:        sink,
		prices:      make(map[string]float64, catalog.Len()),
		seqCounters: make(map[string]int64, catalog.Len()),
	}
	for _, sym := range s.symbols {
		s.prices[sym] = math.Max(opts.Floor, opts.BasePrice+s.rand.Float64()*opts.Spread)
	}
	return s
}

// Prices returns a copy of the current price of every catalog symbol.
func (s *Simulator) Prices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.prices))
	for sym, p := range s.prices {
		out[sym] = p
	}
	return out
}

// Tick advances every symbol once and returns the samples in catalog order.
func (s *Simulator) Tick() []models.StockUpdate {
	now := s.clock.Now()
	batch := make([]models.StockUpdate, 0, len(s.symbols))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sym := range s.symbols {
		delta := (s.rand.Float64()*2 - 1) * s.opts.MaxDelta
		price := math.Max(s.opts.Floor, s.prices[sym]+delta)
		s.prices[sym] = price
		s.seqCounters[sym]++

		batch = append(batch, models.StockUpdate{
			Symbol: sym,
			Price:  price,
			Time:   now,
			SeqID:  s.seqCounters[sym],
		})
	}
	return batch
}

// Run ticks every opts.Interval until ctx is cancelled, handing each batch
// to onBatch and then to the sink.
func (s *Simulator) Run(ctx context.Context, onBatch func(batch []models.StockUpdate)) {
	s.logger.Info("Price feed started",
		zap.Strings("symbols", s.symbols),
		zap.Duration("interval", s.opts.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Price feed stopped")
			return
		case <-s.clock.After(s.opts.Interval):
		}

		batch := s.Tick()
		onBatch(batch)

		if s.sink != nil {
			if err := s.sink.Publish(ctx, batch); err != nil {
				s.logger.Error("Tick mirror publish failed", zap.Error(err), zap.Int("samples", len(batch)))
			}
		}
	}
}
