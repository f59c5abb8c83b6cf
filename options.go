package typebus

import (
	"github.com/dshills/typebus/internal/dispatch"
	"github.com/dshills/typebus/internal/logging"
	"github.com/dshills/typebus/internal/thunk"
)

// Strategy selects where a callback runs.
type Strategy = dispatch.Strategy

// Execution strategies.
const (
	Inline       = dispatch.Inline
	Pooled       = dispatch.Pooled
	Dedicated    = dispatch.Dedicated
	ContextSync  = dispatch.ContextSync
	ContextAsync = dispatch.ContextAsync
)

// Marshaller hands callbacks to an execution context.
type Marshaller = dispatch.Marshaller

// ReferenceMode selects how a method subscription holds its receiver.
type ReferenceMode = thunk.ReferenceMode

// Reference modes.
const (
	ReferenceStrong = thunk.ReferenceStrong
	ReferenceWeak   = thunk.ReferenceWeak
)

// PanicHandler is called when a Pooled, Dedicated or ContextAsync callback
// panics.
type PanicHandler func(err *PanicError)

// Option configures a Bus.
type Option func(*busConfig)

type busConfig struct {
	logger          *logging.Logger
	pool            *dispatch.Pool
	panicHandler    PanicHandler
	defaultStrategy Strategy
}

func defaultBusConfig() busConfig {
	return busConfig{
		defaultStrategy: Inline,
	}
}

// WithLogger sets the logger used by the bus.
func WithLogger(l *logging.Logger) Option {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPool sets the worker pool used by Pooled and Dedicated callbacks and
// by the default context's Post. The caller owns the pool's lifecycle.
func WithPool(p *dispatch.Pool) Option {
	return func(c *busConfig) {
		if p != nil {
			c.pool = p
		}
	}
}

// WithPanicHandler sets the handler for panics in asynchronous callbacks.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *busConfig) {
		if h != nil {
			c.panicHandler = h
		}
	}
}

// WithDefaultStrategy sets the strategy used when a subscription does not
// choose one.
func WithDefaultStrategy(s Strategy) Option {
	return func(c *busConfig) {
		c.defaultStrategy = s
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	strategy    Strategy
	strategySet bool
	reference   ReferenceMode
	context     Marshaller
}

// WithStrategy sets the execution strategy.
func WithStrategy(s Strategy) SubscribeOption {
	return func(c *subscribeConfig) {
		c.strategy = s
		c.strategySet = true
	}
}

// WithReference sets how a method subscription holds its receiver.
// Plain function subscriptions have no receiver and ignore it.
func WithReference(m ReferenceMode) SubscribeOption {
	return func(c *subscribeConfig) {
		c.reference = m
	}
}

// Weak is shorthand for WithReference(ReferenceWeak).
func Weak() SubscribeOption {
	return WithReference(ReferenceWeak)
}

// OnContext routes ContextSync and ContextAsync callbacks of this
// subscription through m instead of the bus marshaller. A typed nil m
// makes the subscription fail with ErrNullArgument.
func OnContext(m Marshaller) SubscribeOption {
	return func(c *subscribeConfig) {
		c.context = m
	}
}
