package planner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// Request is one planning request.
type Request struct {
	Message  string
	Snapshot []models.Entity
	// Today anchors relative dates. Zero means the planner's clock.
	Today time.Time
}

// Planner runs prompt building, generation, validation and reconciliation for
// one request at a time. It holds no per-request state and is safe for
// concurrent use.
type Planner struct {
	gen     Generator
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithTimeout sets the generation deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock overrides the source of the current date.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// New creates a Planner that uses gen for generation.
func New(gen Generator, opts ...Option) *Planner {
	p := &Planner{
		gen:     gen,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan produces a reconciled plan for req or fails with one of the apperr
// planning kinds. Nothing is retried.
func (p *Planner) Plan(ctx context.Context, req Request) (*models.Plan, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.InvalidInput("userMessage required")
	}

	today := req.Today
	if today.IsZero() {
		today = p.now()
	}

	prompt, err := BuildPrompt(req.Message, today, req.Snapshot)
	if err != nil {
		return nil, err
	}

	raw, err := p.generate(ctx, prompt)
	if err != nil {
		p.logger.Error("plan: generation failed", slog.String("error", err.Error()))
		return nil, err
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		p.logger.Warn("plan: model output rejected",
			slog.String("kind", apperr.KindName(err)),
			slog.String("error", err.Error()))
		return nil, err
	}

	plan = Reconcile(plan, models.IDSet(req.Snapshot))
	p.logger.Info("plan: ready",
		slog.Int("operations", len(plan.Operations)),
		slog.Int("ambiguities", len(plan.Ambiguities)))
	return plan, nil
}

func (p *Planner) generate(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.GenerationTimeout(err)
		}
		return "", apperr.Generation(err)
	}
	return raw, nil
}
