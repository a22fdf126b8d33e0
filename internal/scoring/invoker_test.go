package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/couchcryptid/crash-risk-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDate = "2025-11-22"

var (
	richmond = domain.Location{Lat: 37.5407, Lon: -77.4360, Name: "Richmond", RoadClass: "interstate"}
	roanoke  = domain.Location{Lat: 37.2710, Lon: -79.9414, Name: "Roanoke", RoadClass: "local"}
)

// --- test doubles ---

type fakeRunner struct {
	out   []byte
	err   error
	block bool
	calls atomic.Int32
	stdin []byte
}

func (f *fakeRunner) Run(ctx context.Context, stdin []byte) ([]byte, error) {
	f.calls.Add(1)
	f.stdin = stdin
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.out, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVectors(t *testing.T, locs ...domain.Location) []domain.FeatureVector {
	t.Helper()
	vectors, err := domain.GenerateFeatures(locs, testDate)
	require.NoError(t, err)
	return vectors
}

func newTestInvoker(r Runner, m *observability.Metrics) *Invoker {
	return NewInvoker(r, time.Second, testLogger(), m)
}

func assertAllSynthetic(t *testing.T, scores []domain.RawScore, vectors []domain.FeatureVector) {
	t.Helper()
	require.Len(t, scores, len(vectors))
	for i, s := range scores {
		assert.Equal(t, domain.ProvenanceSynthetic, s.Provenance)
		assert.Same(t, &vectors[i], s.Vector)
		assert.GreaterOrEqual(t, s.Value, 0.0)
		assert.LessOrEqual(t, s.Value, 1.0)
	}
}

// --- tests ---

func TestInvoker_ProbabilityOutput(t *testing.T) {
	vectors := testVectors(t, richmond)
	rows := make([][2]float64, len(vectors))
	for i := range rows {
		rows[i] = [2]float64{0.9, 0.1}
	}
	out, err := json.Marshal(map[string]any{"probabilities": rows})
	require.NoError(t, err)

	m := observability.NewMetricsForTesting()
	runner := &fakeRunner{out: out}
	scores := newTestInvoker(runner, m).Score(context.Background(), vectors)

	require.Len(t, scores, 24)
	for i, s := range scores {
		assert.Equal(t, domain.ProvenanceProbability, s.Provenance)
		assert.Equal(t, 0.1, s.Value)
		assert.Same(t, &vectors[i], s.Vector)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringInvocations.WithLabelValues("probability")))

	var req request
	require.NoError(t, json.Unmarshal(runner.stdin, &req))
	assert.Equal(t, testDate, req.Date)
	assert.Equal(t, domain.FeatureColumns, req.Columns)
	assert.Len(t, req.Rows, 24)
}

func TestInvoker_RegressionOutput(t *testing.T) {
	vectors := testVectors(t, richmond)
	scores := make([]float64, len(vectors))
	for i := range scores {
		scores[i] = float64(i) / 4
	}
	out, err := json.Marshal(map[string]any{"scores": scores})
	require.NoError(t, err)

	got := newTestInvoker(&fakeRunner{out: out}, observability.NewMetricsForTesting()).Score(context.Background(), vectors)

	require.Len(t, got, 24)
	assert.Equal(t, domain.ProvenanceRegression, got[0].Provenance)
	assert.Equal(t, 5.75, got[23].Value, "regression values are passed through unclamped")
}

func TestInvoker_FailuresFallBackToSynthetic(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		kind   FailureKind
	}{
		{name: "exit", runner: &fakeRunner{err: &ExitError{Code: 1, Stderr: "Traceback"}}, kind: FailureExit},
		{name: "start", runner: &fakeRunner{err: errors.Join(ErrStart, errors.New("exec: not found"))}, kind: FailureStart},
		{name: "timeout", runner: &fakeRunner{block: true}, kind: FailureTimeout},
		{name: "not json", runner: &fakeRunner{out: []byte("Loaded model\n0.1\n")}, kind: FailureMalformed},
		{name: "empty", runner: &fakeRunner{out: nil}, kind: FailureMalformed},
		{name: "row mismatch", runner: &fakeRunner{out: []byte(`{"scores":[0.1,0.2]}`)}, kind: FailureMalformed},
		{name: "unknown shape", runner: &fakeRunner{out: []byte(`{"labels":["low"]}`)}, kind: FailureShape},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			vectors := testVectors(t, richmond)
			m := observability.NewMetricsForTesting()
			inv := NewInvoker(tc.runner, 100*time.Millisecond, testLogger(), m)

			scores := inv.Score(context.Background(), vectors)

			assertAllSynthetic(t, scores, vectors)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringFailures.WithLabelValues(string(tc.kind))))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringInvocations.WithLabelValues("synthetic")))
		})
	}
}

func TestInvoker_CanceledRunIsNotATimeout(t *testing.T) {
	vectors := testVectors(t, richmond)
	m := observability.NewMetricsForTesting()
	inv := NewInvoker(&fakeRunner{block: true}, time.Minute, testLogger(), m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scores := inv.Score(ctx, vectors)

	assertAllSynthetic(t, scores, vectors)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringFailures.WithLabelValues(string(FailureCanceled))))
	assert.Zero(t, testutil.ToFloat64(m.ScoringFailures.WithLabelValues(string(FailureTimeout))))
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{fmt.Errorf("run scorer: %w", context.DeadlineExceeded), FailureTimeout},
		{fmt.Errorf("run scorer: %w", context.Canceled), FailureCanceled},
		{errors.Join(ErrStart, errors.New("exec: not found")), FailureStart},
		{fmt.Errorf("%w: no recognised key", ErrShape), FailureShape},
		{fmt.Errorf("%w: not json", ErrMalformed), FailureMalformed},
		{&ExitError{Code: 2}, FailureExit},
		{errors.New("something else"), FailureExit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyFailure(tt.err), tt.err.Error())
	}
}

func TestInvoker_NilRunnerIsSynthetic(t *testing.T) {
	vectors := testVectors(t, richmond, roanoke)
	scores := newTestInvoker(nil, observability.NewMetricsForTesting()).Score(context.Background(), vectors)
	assertAllSynthetic(t, scores, vectors)
}

func TestInvoker_EmptyBatchSkipsRunner(t *testing.T) {
	runner := &fakeRunner{}
	scores := newTestInvoker(runner, observability.NewMetricsForTesting()).Score(context.Background(), nil)
	assert.NotNil(t, scores)
	assert.Empty(t, scores)
	assert.Zero(t, runner.calls.Load())
}

func TestInvoker_DoesNotMutateVectors(t *testing.T) {
	vectors := testVectors(t, richmond)
	before := make([][]float64, len(vectors))
	for i := range vectors {
		before[i] = append([]float64(nil), vectors[i].Values...)
	}

	newTestInvoker(&fakeRunner{err: errors.New("boom")}, observability.NewMetricsForTesting()).Score(context.Background(), vectors)

	for i := range vectors {
		assert.Equal(t, before[i], vectors[i].Values)
	}
}

func TestInvoker_WithSubprocess(t *testing.T) {
	vectors := testVectors(t, richmond)
	m := observability.NewMetricsForTesting()
	inv := NewInvoker(helperRunner("probabilities"), 10*time.Second, testLogger(), m)

	scores := inv.Score(context.Background(), vectors)

	require.Len(t, scores, 24)
	for h, s := range scores {
		assert.Equal(t, domain.ProvenanceProbability, s.Provenance)
		assert.InDelta(t, float64(h)/100, s.Value, 1e-9)
	}
}
