// Package scoring runs the external crash-risk model over feature vectors
// and turns whatever it produces into provenance-tagged raw scores.
package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/couchcryptid/crash-risk-service/internal/observability"
)

// DefaultTimeout bounds a single scorer invocation when none is configured.
const DefaultTimeout = 30 * time.Second

// Invoker scores feature vectors with an external model. Failures of the
// model are never returned to the caller: they are logged, counted, and
// replaced by synthetic scores.
type Invoker struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewInvoker creates an Invoker. A nil runner means no model is available
// and every batch is scored synthetically.
func NewInvoker(runner Runner, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{runner: runner, timeout: timeout, logger: logger, metrics: metrics}
}

// Score returns one RawScore per vector, in input order. The input vectors
// are not modified.
func (inv *Invoker) Score(ctx context.Context, vectors []domain.FeatureVector) []domain.RawScore {
	if len(vectors) == 0 {
		return []domain.RawScore{}
	}
	if inv.runner == nil {
		inv.logger.Info("no scorer configured, using synthetic scores", "vectors", len(vectors))
		return inv.synthesize(vectors)
	}

	scores, err := inv.invoke(ctx, vectors)
	if err != nil {
		kind := ClassifyFailure(err)
		inv.metrics.ScoringFailures.WithLabelValues(string(kind)).Inc()
		inv.logger.Warn("scorer failed, falling back to synthetic scores",
			"failure", kind,
			"date", vectors[0].Date,
			"vectors", len(vectors),
			"error", err,
		)
		return inv.synthesize(vectors)
	}

	inv.metrics.ScoringInvocations.WithLabelValues(string(scores[0].Provenance)).Inc()
	return scores
}

func (inv *Invoker) invoke(ctx context.Context, vectors []domain.FeatureVector) ([]domain.RawScore, error) {
	payload, err := encodeRequest(vectors)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	start := time.Now()
	out, err := inv.runner.Run(runCtx, payload)
	elapsed := time.Since(start)
	inv.metrics.ScoringDuration.Observe(elapsed.Seconds())
	if err != nil {
		return nil, err
	}

	scores, err := interpret(out, vectors)
	if err != nil {
		return nil, err
	}
	inv.logger.Debug("scorer finished",
		"date", vectors[0].Date,
		"vectors", len(vectors),
		"provenance", scores[0].Provenance,
		"duration", elapsed,
	)
	return scores, nil
}

func (inv *Invoker) synthesize(vectors []domain.FeatureVector) []domain.RawScore {
	inv.metrics.ScoringInvocations.WithLabelValues(string(domain.ProvenanceSynthetic)).Inc()
	return Synthesize(vectors)
}
