package gpu

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeadapt/nvsmi-exporter/internal/errors"
	"github.com/kubeadapt/nvsmi-exporter/internal/observability"
)

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	result QueryResult
	delay  time.Duration
	calls  atomic.Int32
}

func (m *mockQuerier) Query(_ context.Context) QueryResult {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.result
}

func newTestCollector(q Querier) (*GPUMetricsCollector, *observability.Metrics, *errors.RecentFailures) {
	metrics := observability.NewMetrics()
	errs := errors.NewRecentFailures()
	return NewGPUMetricsCollector(q, metrics, errs), metrics, errs
}

func counterValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	pb := &dto.Metric{}
	require.NoError(t, c.Write(pb))
	return pb.GetCounter().GetValue()
}

func TestGPUMetricsCollector_Success(t *testing.T) {
	q := &mockQuerier{result: QueryResult{Output: []byte(smiOutputTwoGPUs + "0, 1\n")}}
	c, metrics, errs := newTestCollector(q)

	lines := c.Collect(context.Background())
	require.Len(t, lines, 54)
	assert.Contains(t, lines, `DCGM_FI_DEV_GPU_UTIL{gpu="0",gpu_name="Tesla_V100"} 45`)
	assert.Contains(t, lines, `DCGM_FI_DEV_POWER_USAGE{gpu="1",gpu_name="NVIDIA_A100-SXM4-80GB"} 0`)

	assert.Equal(t, 1.0, counterValue(t, metrics.RowsSkippedTotal))

	pb := &dto.Metric{}
	require.NoError(t, metrics.Devices.Write(pb))
	assert.Equal(t, 2.0, pb.GetGauge().GetValue())

	pb = &dto.Metric{}
	require.NoError(t, metrics.QueryDuration.Write(pb))
	assert.Equal(t, uint64(1), pb.GetHistogram().GetSampleCount())

	assert.Empty(t, errs.Active())
}

func TestGPUMetricsCollector_QueryFailures(t *testing.T) {
	tests := []struct {
		name     string
		code     errors.Code
		message  string
		wantLine string
	}{
		{"missing", errors.CodeToolMissing, "nvidia-smi not found", "# Error: nvidia-smi not found"},
		{"timeout", errors.CodeTimeout, "nvidia-smi timeout", "# Error: nvidia-smi timeout"},
		{"other", errors.CodeFailed, "nvidia-smi exited with code 9", "# Error: nvidia-smi exited with code 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQuerier{result: QueryResult{Err: &errors.QueryError{
				Code:    tt.code,
				Message: tt.message,
			}}}
			c, metrics, errs := newTestCollector(q)

			lines := c.Collect(context.Background())
			assert.Equal(t, []string{tt.wantLine}, lines)

			failures := metrics.QueryFailuresTotal.WithLabelValues(string(tt.code)).(prometheus.Metric)
			assert.Equal(t, 1.0, counterValue(t, failures))
			active := errs.Active()
			require.Len(t, active, 1)
			assert.Equal(t, tt.code, active[0].Code)
			assert.Equal(t, tt.message, active[0].LastMessage)
		})
	}
}

func TestGPUMetricsCollector_EmptyOutput(t *testing.T) {
	c, _, _ := newTestCollector(&mockQuerier{result: QueryResult{Output: []byte{}}})
	assert.Empty(t, c.Collect(context.Background()))
}

func TestGPUMetricsCollector_FreshQueryPerCall(t *testing.T) {
	q := &mockQuerier{result: QueryResult{Output: []byte(exampleRow)}}
	c, _, _ := newTestCollector(q)

	c.Collect(context.Background())
	c.Collect(context.Background())
	assert.Equal(t, int32(2), q.calls.Load())
}

func TestGPUMetricsCollector_ConcurrentCollect(t *testing.T) {
	q := &mockQuerier{
		result: QueryResult{Output: []byte(exampleRow)},
		delay:  50 * time.Millisecond,
	}
	c, metrics, _ := newTestCollector(q)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = c.Collect(context.Background())
		}(i)
	}
	wg.Wait()

	for _, lines := range results {
		require.Len(t, lines, 27)
		assert.True(t, strings.HasPrefix(lines[0], "# HELP DCGM_FI_DEV_GPU_UTIL"))
	}

	// Every call either ran a query or shared one.
	coalesced := counterValue(t, metrics.QueriesCoalesced)
	assert.Equal(t, float64(callers), float64(q.calls.Load())+coalesced)
}

// blockingQuerier holds the query until released, failing early if its
// context is cancelled.
type blockingQuerier struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingQuerier) Query(ctx context.Context) QueryResult {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	select {
	case <-ctx.Done():
		return QueryResult{Err: &errors.QueryError{Code: errors.CodeFailed, Message: "nvidia-smi killed"}}
	case <-b.release:
		return QueryResult{Output: []byte(exampleRow)}
	}
}

func TestGPUMetricsCollector_FirstCallerCancelled(t *testing.T) {
	q := &blockingQuerier{started: make(chan struct{}), release: make(chan struct{})}
	c, metrics, errs := newTestCollector(q)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan []string, 1)
	go func() { first <- c.Collect(firstCtx) }()
	<-q.started

	second := make(chan []string, 1)
	go func() { second <- c.Collect(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	time.Sleep(50 * time.Millisecond)
	close(q.release)

	for _, ch := range []chan []string{first, second} {
		select {
		case lines := <-ch:
			require.Len(t, lines, 27)
			assert.Equal(t, `DCGM_FI_DEV_GPU_UTIL{gpu="0",gpu_name="Tesla_V100"} 45`, lines[2])
		case <-time.After(5 * time.Second):
			t.Fatal("Collect did not return")
		}
	}

	failures := metrics.QueryFailuresTotal.WithLabelValues(string(errors.CodeFailed)).(prometheus.Metric)
	assert.Zero(t, counterValue(t, failures))
	assert.Empty(t, errs.Active())
}

func TestGPUMetricsCollector_RowsBeforeNonZeroExit(t *testing.T) {
	c, metrics, errs := newTestCollector(helperQuerier(t, "lost-gpu", 5*time.Second))

	lines := c.Collect(context.Background())
	require.Len(t, lines, 54)
	assert.Contains(t, lines, `DCGM_FI_DEV_GPU_UTIL{gpu="0",gpu_name="Tesla_V100"} 45`)
	assert.Contains(t, lines, `DCGM_FI_DEV_MEM_CLOCK{gpu="1",gpu_name="NVIDIA_A100-SXM4-80GB"} 1593`)

	// The exit is still a failure, and the banner a dropped row.
	failures := metrics.QueryFailuresTotal.WithLabelValues(string(errors.CodeFailed)).(prometheus.Metric)
	assert.Equal(t, 1.0, counterValue(t, failures))
	assert.Equal(t, 1.0, counterValue(t, metrics.RowsSkippedTotal))

	active := errs.Active()
	require.Len(t, active, 1)
	assert.Contains(t, active[0].LastMessage, "exited with code 15")

	pb := &dto.Metric{}
	require.NoError(t, metrics.Devices.Write(pb))
	assert.Equal(t, 2.0, pb.GetGauge().GetValue())
}

func TestGPUMetricsCollector_NonZeroExitWithoutRows(t *testing.T) {
	c, _, _ := newTestCollector(helperQuerier(t, "fail", 5*time.Second))

	lines := c.Collect(context.Background())
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "# Error: "), lines[0])
	assert.Contains(t, lines[0], "exited with code 9")
	assert.Contains(t, lines[0], "driver not loaded")
}
