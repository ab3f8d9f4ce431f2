// Package market implements the loan lifecycle, liquidation auctions and
// the protocol registry on top of the record store.
package market

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/pledge/internal/apperr"
	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
)

// Store is the transactional record store the engine runs against.
type Store interface {
	Update(ctx context.Context, fn func(store.Tx) error) error
	View(ctx context.Context, fn func(store.Tx) error) error
}

// Clock is the trusted timestamp source.
type Clock interface {
	Now() time.Time
}

// Appraiser values a collateral asset in the stable unit.
type Appraiser interface {
	Appraise(ctx context.Context, asset string) (uint64, error)
}

// Publisher receives events after the operation that produced them commits.
type Publisher interface {
	PublishEvent(e models.Event)
}

// Recorder observes operation outcomes for metrics.
type Recorder interface {
	ObserveOperation(op, outcome string)
	ObserveLoanCreated(amount uint64)
	ObserveBid(amount uint64)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type noopPublisher struct{}

func (noopPublisher) PublishEvent(models.Event) {}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string) {}
func (noopRecorder) ObserveLoanCreated(uint64)       {}
func (noopRecorder) ObserveBid(uint64)               {}

// Params are the market constants fixed for the engine's lifetime.
type Params struct {
	LiquidationThresholdBps uint16
	AuctionDuration         time.Duration
	FeeRateBps              uint16
}

// DefaultParams mirrors the reference deployment: 80% LTV, 24h auctions, 0.5% fee.
func DefaultParams() Params {
	return Params{
		LiquidationThresholdBps: DefaultLiquidationThresholdBps,
		AuctionDuration:         24 * time.Hour,
		FeeRateBps:              50,
	}
}

// Engine orchestrates every market state transition. Each exported
// mutating method is one all-or-nothing store transaction.
type Engine struct {
	store     Store
	clock     Clock
	appraiser Appraiser
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger
	params    Params
	policy    atomic.Pointer[Policy]
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithAppraiser sets the valuation source used when callers omit a value.
func WithAppraiser(a Appraiser) Option { return func(e *Engine) { e.appraiser = a } }

// WithPublisher sets the post-commit event sink.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithParams overrides the market constants.
func WithParams(p Params) Option { return func(e *Engine) { e.params = p } }

// WithPolicy sets the initial loan policy.
func WithPolicy(p Policy) Option { return func(e *Engine) { e.policy.Store(&p) } }

// NewEngine creates an engine over s.
func NewEngine(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		clock:     systemClock{},
		publisher: noopPublisher{},
		recorder:  noopRecorder{},
		logger:    slog.Default(),
		params:    DefaultParams(),
	}
	p := DefaultPolicy()
	e.policy.Store(&p)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the loan policy currently in force.
func (e *Engine) Policy() Policy { return *e.policy.Load() }

// SetPolicy swaps the loan policy; loans already created are unaffected.
func (e *Engine) SetPolicy(p Policy) {
	e.policy.Store(&p)
	e.logger.Info("market: policy updated",
		slog.Uint64("min_loan_amount", p.MinLoanAmount),
		slog.Uint64("max_loan_amount", p.MaxLoanAmount),
		slog.Duration("min_duration", p.MinDuration),
		slog.Duration("max_duration", p.MaxDuration),
		slog.Int("max_interest_rate_bps", int(p.MaxInterestRateBps)))
}

// Params returns the market constants.
func (e *Engine) Params() Params { return e.params }

// op is the per-request context handed to operation bodies.
type op struct {
	tx     store.Tx
	now    time.Time
	events []models.Event
}

func (o *op) unix() int64 { return o.now.Unix() }

func (o *op) emit(typ string, data map[string]any) {
	o.events = append(o.events, models.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Data:       data,
		OccurredAt: o.now.UTC(),
	})
}

// run executes fn in one transaction, persists the events it emitted and
// publishes them only once the transaction has committed.
func (e *Engine) run(ctx context.Context, name string, fn func(*op) error) error {
	o := &op{now: e.clock.Now()}
	err := e.store.Update(ctx, func(tx store.Tx) error {
		o.tx = tx
		o.events = o.events[:0]
		if err := fn(o); err != nil {
			return err
		}
		for _, ev := range o.events {
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
		}
		return nil
	})
	e.recorder.ObserveOperation(name, outcome(err))
	if err != nil {
		e.logger.Debug("market: operation rejected", slog.String("op", name), slog.String("error", err.Error()))
		return err
	}
	for _, ev := range o.events {
		e.publisher.PublishEvent(ev)
	}
	return nil
}

func (e *Engine) view(ctx context.Context, fn func(store.Tx) error) error {
	return e.store.View(ctx, fn)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return apperr.Code(err)
}
