package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarc/oracled/internal/domain"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeFeed struct {
	src     domain.Source
	payload []byte
	err     error
}

func (f *fakeFeed) Source() domain.Source { return f.src }

func (f *fakeFeed) Fetch(ctx context.Context, symbol string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type fakeCache struct {
	mu   sync.Mutex
	puts []domain.ConsensusResult
	err  error
}

func (c *fakeCache) Put(ctx context.Context, result domain.ConsensusResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.puts = append(c.puts, result)
	return nil
}

func (c *fakeCache) Get(ctx context.Context, symbol string) (domain.ConsensusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.puts) == 0 {
		return domain.ConsensusResult{}, domain.ErrNotFound
	}
	return c.puts[len(c.puts)-1], nil
}

type fakeHistory struct {
	mu      sync.Mutex
	appends []domain.ConsensusResult
	err     error
}

func (h *fakeHistory) Append(ctx context.Context, result domain.ConsensusResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.appends = append(h.appends, result)
	return nil
}

func (h *fakeHistory) Query(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.ConsensusResult, error) {
	return nil, nil
}

func (h *fakeHistory) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ConsensusResult, error) {
	return nil, nil
}

func (h *fakeHistory) Count(ctx context.Context, symbol string) (int64, error) { return 0, nil }

type fakeBus struct {
	mu       sync.Mutex
	channels []string
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

type recordingMetrics struct {
	mu             sync.Mutex
	attempts       map[domain.Source]int
	failures       map[string]int
	normFailures   map[string]int
	rejections     map[string]int
	consRejections map[string]int
	rounds         map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		attempts:       map[domain.Source]int{},
		failures:       map[string]int{},
		normFailures:   map[string]int{},
		rejections:     map[string]int{},
		consRejections: map[string]int{},
		rounds:         map[string]int{},
	}
}

func (m *recordingMetrics) FetchAttempt(src domain.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[src]++
}

func (m *recordingMetrics) FetchFailure(src domain.Source, kind domain.FetchKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[fmt.Sprintf("%s/%s", src, kind)]++
}

func (m *recordingMetrics) FetchLatency(domain.Source, time.Duration) {}

func (m *recordingMetrics) NormalizationFailure(src domain.Source, reason domain.NormReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normFailures[fmt.Sprintf("%s/%s", src, reason)]++
}

func (m *recordingMetrics) GateRejection(src domain.Source, reason domain.RejectReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[fmt.Sprintf("%s/%s", src, reason)]++
}

func (m *recordingMetrics) ConsensusRejection(src domain.Source, reason domain.RejectReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consRejections[fmt.Sprintf("%s/%s", src, reason)]++
}

func (m *recordingMetrics) ConsensusRound(symbol string, status domain.ConsensusStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[fmt.Sprintf("%s/%s", symbol, status)]++
}

func (m *recordingMetrics) APIHit(string) {}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func internalPayload(price string, observedAt int64) []byte {
	return []byte(fmt.Sprintf(
		`{"price": %q, "confidence": "10", "expo": -2, "observed_at": %d}`, price, observedAt))
}

func pythPayload(price string, observedAt int64) []byte {
	return []byte(fmt.Sprintf(
		`{"parsed":[{"price":{"price":%q,"conf":"10","expo":-2,"publish_time":%d}}]}`, price, observedAt))
}

func switchboardPayload(value string, observedAt int64) []byte {
	return []byte(fmt.Sprintf(
		`{"value": %s, "std_dev": 10, "scale": 2, "updated_at": %d}`, value, observedAt))
}

type ingestorEnv struct {
	ing     *Ingestor
	cache   *fakeCache
	history *fakeHistory
	bus     *fakeBus
	metrics *recordingMetrics
}

func newTestIngestor(t *testing.T, feeds []domain.FeedClient) *ingestorEnv {
	t.Helper()
	env := &ingestorEnv{
		cache:   &fakeCache{},
		history: &fakeHistory{},
		bus:     &fakeBus{},
		metrics: newRecordingMetrics(),
	}
	pol := domain.Policy{
		MaxStalenessSec:  30,
		MaxConfidenceBps: 200,
		MaxDeviationBps:  100,
		MinSources:       2,
	}
	ing, err := NewIngestor("BTC", pol, feeds, env.cache, env.history, env.bus, env.metrics,
		time.Second, time.Second, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	ing.now = func() time.Time { return testClock }
	env.ing = ing
	return env
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunCycleHappyPath(t *testing.T) {
	fresh := testClock.Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, payload: switchboardPayload("10050", fresh)},
	}
	env := newTestIngestor(t, feeds)

	res, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOk, res.Status)
	assert.NotEmpty(t, res.RoundID)
	assert.Equal(t, "10000", res.MedianPrice.String())

	require.Len(t, env.cache.puts, 1)
	assert.Equal(t, res.RoundID, env.cache.puts[0].RoundID)
	require.Len(t, env.history.appends, 1)
	assert.Equal(t, []string{"consensus:BTC"}, env.bus.channels)
	assert.Equal(t, 1, env.metrics.rounds["BTC/ok"])
	assert.Equal(t, 1, env.metrics.attempts[domain.SourcePyth])
	assert.Equal(t, 1, env.metrics.attempts[domain.SourceSwitchboard])
}

func TestRunCycleSingleFeedFailureIsolated(t *testing.T) {
	fresh := testClock.Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, err: &domain.FetchError{
			Source: domain.SourceSwitchboard, Kind: domain.FetchTimeout, Err: errors.New("deadline"),
		}},
		&fakeFeed{src: domain.SourceInternal, payload: internalPayload("10020", fresh)},
	}
	env := newTestIngestor(t, feeds)

	res, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOk, res.Status)
	assert.ElementsMatch(t, []domain.Source{domain.SourcePyth, domain.SourceInternal}, res.Accepted)
	// Fetch failures are counted, not listed as round rejections.
	assert.Empty(t, res.Rejected)
	assert.Equal(t, 1, env.metrics.failures["switchboard/timeout"])
	require.Len(t, env.cache.puts, 1)
}

func TestRunCycleNormalizationFailureCountedNotRejected(t *testing.T) {
	fresh := testClock.Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, payload: []byte(`<html>oops</html>`)},
		&fakeFeed{src: domain.SourceInternal, payload: internalPayload("10020", fresh)},
	}
	env := newTestIngestor(t, feeds)

	res, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOk, res.Status)
	assert.Empty(t, res.Rejected)
	assert.Equal(t, 1, env.metrics.normFailures["switchboard/malformed_payload"])
}

func TestRunCycleStaleQuoteLeavesPartialQuorum(t *testing.T) {
	fresh := testClock.Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, payload: switchboardPayload("10050", fresh-60)},
	}
	env := newTestIngestor(t, feeds)

	res, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusInsufficientSources, res.Status)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, domain.SourceSwitchboard, res.Rejected[0].Source)
	assert.Equal(t, domain.RejectStale, res.Rejected[0].Reason)
	assert.Equal(t, 1, env.metrics.rejections["switchboard/stale"])

	// Failed rounds never touch the cache but still land in history.
	assert.Empty(t, env.cache.puts)
	require.Len(t, env.history.appends, 1)
	assert.Equal(t, domain.StatusInsufficientSources, env.history.appends[0].Status)
	assert.Empty(t, env.bus.channels)
}

func TestRunCycleAllFeedsDown(t *testing.T) {
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, err: errors.New("boom")},
		&fakeFeed{src: domain.SourceSwitchboard, err: errors.New("boom")},
	}
	env := newTestIngestor(t, feeds)

	res, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusInsufficientSources, res.Status)
	assert.Empty(t, env.cache.puts)
	require.Len(t, env.history.appends, 1)
}

func TestRunCycleDeviationRejectionRecorded(t *testing.T) {
	fresh := testClock.Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, payload: switchboardPayload("10010", fresh)},
		&fakeFeed{src: domain.SourceInternal, payload: internalPayload("11000", fresh)},
	}
	env := newTestIngestor(t, feeds)

	res, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOk, res.Status)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, domain.RejectDeviation, res.Rejected[0].Reason)

	// Deviation is a consensus-stage outcome and must not leak into the
	// gate rejection counter.
	assert.Equal(t, 1, env.metrics.consRejections["internal/deviation"])
	assert.Empty(t, env.metrics.rejections)
}

func TestRunCycleCacheFailureIsSoft(t *testing.T) {
	fresh := testClock.Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, payload: switchboardPayload("10050", fresh)},
	}
	env := newTestIngestor(t, feeds)
	env.cache.err = errors.New("redis down")

	res, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	// The cycle completes and history still records the round.
	assert.Equal(t, domain.StatusOk, res.Status)
	require.Len(t, env.history.appends, 1)
}

func TestRunCycleHistoryOrderMonotonic(t *testing.T) {
	fresh := testClock.Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, payload: switchboardPayload("10050", fresh)},
	}
	env := newTestIngestor(t, feeds)

	_, err := env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	env.ing.now = func() time.Time { return testClock.Add(time.Second) }
	// Keep the quotes fresh relative to the advanced clock.
	feeds[0].(*fakeFeed).payload = pythPayload("10000", fresh+1)
	feeds[1].(*fakeFeed).payload = switchboardPayload("10050", fresh+1)

	_, err = env.ing.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, env.history.appends, 2)
	assert.False(t, env.history.appends[1].ComputedAt.Before(env.history.appends[0].ComputedAt))
	assert.NotEqual(t, env.history.appends[0].RoundID, env.history.appends[1].RoundID)
}

func TestNewIngestorRejectsUnsoundPolicy(t *testing.T) {
	pol := domain.Policy{MaxStalenessSec: 30, MaxConfidenceBps: 200, MaxDeviationBps: 100, MinSources: 1}
	_, err := NewIngestor("BTC", pol, []domain.FeedClient{&fakeFeed{src: domain.SourcePyth}},
		&fakeCache{}, &fakeHistory{}, nil, nil, time.Second, time.Second, slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	fresh := time.Now().Unix()
	feeds := []domain.FeedClient{
		&fakeFeed{src: domain.SourcePyth, payload: pythPayload("10000", fresh)},
		&fakeFeed{src: domain.SourceSwitchboard, payload: switchboardPayload("10050", fresh)},
	}
	env := newTestIngestor(t, feeds)
	env.ing.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.ing.RunLoop(ctx, 10*time.Millisecond)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ingestor did not stop on cancel")
	}

	// The immediate first run plus at least one tick.
	env.history.mu.Lock()
	n := len(env.history.appends)
	env.history.mu.Unlock()
	assert.GreaterOrEqual(t, n, 2)
}
