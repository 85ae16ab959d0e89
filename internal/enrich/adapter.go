package enrich

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crm-scoring/internal/resilience"
	"github.com/sells-group/crm-scoring/pkg/anthropic"
)

// Config tunes an Adapter.
type Config struct {
	Model     string
	MaxTokens int64
	// Timeout bounds one enrichment call, including the rate-limit wait.
	Timeout time.Duration
	// RPS and Burst size the token bucket shared by every caller.
	RPS   float64
	Burst int
	// Circuit configures the breaker guarding the provider.
	Circuit resilience.CircuitBreakerConfig
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-haiku-4-5-20251001"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.RPS <= 0 {
		c.RPS = 2
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Adapter implements Enricher over the Anthropic Messages API.
type Adapter struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewAdapter returns an Adapter. A nil client yields an adapter that always
// reports ReasonDisabled.
func NewAdapter(client anthropic.Client, cfg Config) *Adapter {
	cfg = cfg.withDefaults()
	circuit := cfg.Circuit
	if circuit.ShouldTrip == nil {
		circuit.ShouldTrip = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if circuit.OnStateChange == nil {
		circuit.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("enrich: circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Adapter{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: resilience.NewCircuitBreaker(circuit),
	}
}

// Breaker exposes the provider circuit breaker.
func (a *Adapter) Breaker() *resilience.CircuitBreaker { return a.breaker }

// Enrich calls the provider once. It never returns an error: every failure
// maps to an Unavailable reason.
func (a *Adapter) Enrich(ctx context.Context, req Request) Result {
	if a == nil || a.client == nil {
		return Unavailable(ReasonDisabled, nil)
	}
	if req.Profile == nil {
		return Unavailable(ReasonProviderError, eris.New("enrich: request has no profile"))
	}
	if a.breaker.State() == resilience.CircuitOpen {
		return Unavailable(ReasonCircuitOpen, resilience.ErrCircuitOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		return Unavailable(ReasonRateLimited, eris.Wrap(err, "enrich: rate limit wait"))
	}

	user, err := userPrompt(req)
	if err != nil {
		return Unavailable(ReasonProviderError, err)
	}
	temp := 0.0
	msg := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      systemPrompt(req),
		CacheSystem: true,
		Prompt:      user,
		Temperature: &temp,
	}

	resp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, msg)
	})
	if err != nil {
		return Unavailable(classify(ctx, err), err)
	}
	anthropic.LogUsage(a.cfg.Model, req.Subject.ID, resp.Usage)

	enrichment, err := Parse(resp.Text, req.Profile)
	if err != nil {
		return Unavailable(ReasonMalformed, err)
	}
	return Success(enrichment)
}

func classify(ctx context.Context, err error) Reason {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	}
	switch code := anthropic.StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return ReasonRateLimited
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return ReasonTimeout
	}
	return ReasonProviderError
}
