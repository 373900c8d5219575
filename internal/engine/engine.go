// Package engine creates crowd tasks at most once per key and polls them to
// completion, using the ledger as the only shared state.
package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/dyluth/tally/internal/hosting"
	"github.com/dyluth/tally/internal/marketplace"
	"github.com/dyluth/tally/internal/render"
	"github.com/dyluth/tally/pkg/ledger"
)

// Engine coordinates the ledger with the marketplace.
// It is safe for concurrent use: every operation opens its own ledger session.
type Engine struct {
	store    ledger.Store
	market   marketplace.Marketplace
	renderer render.Renderer
	host     hosting.Host

	instanceName    string
	retainCompleted bool
	limiter         *rate.Limiter
	meter           metric.Meter
	metrics         *engineMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithInstanceName tags structured log events with the given name.
func WithInstanceName(name string) Option {
	return func(e *Engine) { e.instanceName = name }
}

// WithRetainCompleted controls whether jobs stay in the ledger after a wait
// observes them complete. The default keeps them.
func WithRetainCompleted(retain bool) Option {
	return func(e *Engine) { e.retainCompleted = retain }
}

// WithRateLimit caps marketplace calls per second across all callers.
// A limit of zero or less disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *Engine) {
		if perSecond <= 0 {
			e.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMeter records engine metrics on the given meter instead of the global one.
func WithMeter(meter metric.Meter) Option {
	return func(e *Engine) { e.meter = meter }
}

// New creates an Engine. All four collaborators are required.
func New(store ledger.Store, market marketplace.Marketplace, renderer render.Renderer, host hosting.Host, opts ...Option) (*Engine, error) {
	if store == nil || market == nil || renderer == nil || host == nil {
		return nil, fmt.Errorf("engine requires a ledger, marketplace, renderer and host")
	}

	e := &Engine{
		store:           store,
		market:          market,
		renderer:        renderer,
		host:            host,
		instanceName:    "default",
		retainCompleted: true,
		limiter:         rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.meter == nil {
		e.meter = otel.Meter("github.com/dyluth/tally/internal/engine")
	}

	m, err := newEngineMetrics(e.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}
	e.metrics = m

	return e, nil
}

// logEvent emits a structured JSON log line for observability.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType
	data["instance"] = e.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
