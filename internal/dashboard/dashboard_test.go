package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-dash/internal/metrics"
	"ledger-dash/internal/render"
	"ledger-dash/internal/snapshot"
	"ledger-dash/internal/state"
)

const scenarioBody = `{"blockchain": {"ledger": [{"index": 0}, {"index": 1}]},
 "voter_registry": {"total_registered": 2, "registry": [{"voter_id": "A"}, {"voter_id": "B"}]},
 "pending_pool": {"count": 1, "transactions": [{"voter_id": "A", "party": "X"}]}}`

const minedBody = `{"blockchain": {"ledger": [{"index": 0}, {"index": 1}, {"index": 2, "transactions": [{"voter_id": "A", "party": "X"}]}]},
 "voter_registry": {"total_registered": 2, "registry": [{"voter_id": "A"}, {"voter_id": "B"}]},
 "pending_pool": {"count": 0, "transactions": []}}`

// fakeFetcher answers with scripted functions and counts calls.
type fakeFetcher struct {
	mu         sync.Mutex
	fetchCalls int
	mineCalls  int
	fetch      func(call int) (*snapshot.Snapshot, error)
	mine       func() (*snapshot.MineResponse, error)
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	f.mu.Unlock()
	return f.fetch(call)
}

func (f *fakeFetcher) Mine(ctx context.Context) (*snapshot.MineResponse, error) {
	f.mu.Lock()
	f.mineCalls++
	f.mu.Unlock()
	return f.mine()
}

func (f *fakeFetcher) calls() (fetches, mines int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.mineCalls
}

func mustDecode(t *testing.T, body string) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Decode([]byte(body))
	require.NoError(t, err)
	return s
}

func always(s *snapshot.Snapshot) func(int) (*snapshot.Snapshot, error) {
	return func(int) (*snapshot.Snapshot, error) { return s, nil }
}

func newController(f Fetcher) (*Controller, *state.AppState, *metrics.Metrics) {
	st := state.New(50)
	m := metrics.New(prometheus.NewRegistry())
	return New(f, st, m), st, m
}

func TestSyncScenario(t *testing.T) {
	f := &fakeFetcher{fetch: always(mustDecode(t, scenarioBody))}
	c, st, m := newController(f)

	require.NoError(t, c.Sync(context.Background()))

	v := st.View()
	require.NotNil(t, v.Regions)
	r := v.Regions
	assert.Equal(t, 2, r.BlockCount)
	assert.Equal(t, 2, r.VoterCount)

	require.Len(t, r.Blocks, 2)
	assert.Equal(t, "#0", r.Blocks[0].Label)
	assert.Equal(t, "#1", r.Blocks[1].Label)
	assert.Equal(t, "block-0", r.Blocks[0].Anchor)

	require.Len(t, r.Voters, 2)
	assert.Equal(t, "A", r.Voters[0].Label)
	assert.Equal(t, "B", r.Voters[1].Label)
	assert.Equal(t, "voter-1", r.Voters[1].Anchor)

	assert.True(t, r.Pending.MineVisible)
	require.Len(t, r.Pending.Entries, 1)
	assert.Equal(t, "A ➔ X", r.Pending.Entries[0].Text())

	assert.Contains(t, r.StateHTML, `<span class="json-key">&#34;voter_registry&#34;:</span>`)
	assert.Contains(t, r.StateHTML, `id="block-0"`)
	assert.Equal(t, -1, r.Blocks[0].Offset, "anchored entries need no text offset")
	assert.Equal(t, []render.TallyEntry{{Party: "X", Votes: 1}}, r.Tally)
	assert.NotEmpty(t, r.CycleID)
	assert.Nil(t, v.SyncError)
	assert.Equal(t, state.MineLabelIdle, v.Mine.Label)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncCycles.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerBlocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingTransactions))

	require.NotEmpty(t, v.Logs)
	last := v.Logs[len(v.Logs)-1]
	assert.Equal(t, "INFO", last.Level)
	assert.Equal(t, "Sync", last.Label)
	assert.Contains(t, last.Message, `"msg":"State synced"`)
	assert.Contains(t, last.Message, `"blocks":2`)
}

func TestSyncIsIdempotent(t *testing.T) {
	snap := mustDecode(t, scenarioBody)
	f := &fakeFetcher{fetch: always(snap)}
	c, st, _ := newController(f)

	require.NoError(t, c.Sync(context.Background()))
	first := *st.Regions()
	require.NoError(t, c.Sync(context.Background()))
	second := *st.Regions()

	assert.Less(t, first.Generation, second.Generation)
	assert.NotEqual(t, first.CycleID, second.CycleID)

	// Everything but the cycle bookkeeping is identical.
	first.Generation, first.CycleID, first.FetchedAt = second.Generation, second.CycleID, second.FetchedAt
	assert.Equal(t, first, second)

	a, err := Build(snap)
	require.NoError(t, err)
	b, err := Build(snap)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSyncFailureKeepsRegions(t *testing.T) {
	good := mustDecode(t, scenarioBody)
	fetchErr := fmt.Errorf("%w: connection refused", snapshot.ErrTransport)
	f := &fakeFetcher{fetch: func(call int) (*snapshot.Snapshot, error) {
		if call == 2 {
			return nil, fetchErr
		}
		return good, nil
	}}
	c, st, m := newController(f)

	require.NoError(t, c.Sync(context.Background()))
	before := st.Regions()

	err := c.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, snapshot.ErrTransport))

	v := st.View()
	assert.Same(t, before, v.Regions)
	require.NotNil(t, v.SyncError)
	assert.Contains(t, v.SyncError.Message, "connection refused")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncCycles.WithLabelValues(metrics.ResultFailure)))

	// The next good cycle clears the error.
	require.NoError(t, c.Sync(context.Background()))
	assert.Nil(t, st.View().SyncError)
}

func TestSyncFailureBeforeFirstCommit(t *testing.T) {
	f := &fakeFetcher{fetch: func(int) (*snapshot.Snapshot, error) {
		return nil, fmt.Errorf("%w: bad json", snapshot.ErrMalformed)
	}}
	c, st, _ := newController(f)

	require.Error(t, c.Sync(context.Background()))
	v := st.View()
	assert.Nil(t, v.Regions)
	require.NotNil(t, v.SyncError)
	assert.Contains(t, v.SyncError.Message, "malformed snapshot")
}

func TestStateViewAdmitsOnlyHighlighterMarkup(t *testing.T) {
	snap := mustDecode(t, `{"node_id": "<img src=x onerror=alert(1)>",
	 "blockchain": {"ledger": [{"index": 0, "note": "</span><script>alert(1)</script>"}]},
	 "voter_registry": {"registry": [{"voter_id": "A"}]},
	 "pending_pool": {"count": 0}}`)

	r, err := Build(snap)
	require.NoError(t, err)
	assert.NotContains(t, r.StateHTML, "<img")
	assert.NotContains(t, r.StateHTML, "<script")
	assert.Contains(t, r.StateHTML, "&lt;img src=x onerror=alert(1)&gt;")
	assert.Contains(t, r.StateHTML, `id="voter-0"`)
	assert.Equal(t, "voter-0", r.Voters[0].Anchor)
}

func TestOverlappingSyncDiscardsStale(t *testing.T) {
	older := mustDecode(t, scenarioBody)
	newer := mustDecode(t, minedBody)

	entered := make(chan struct{})
	release := make(chan struct{})
	f := &fakeFetcher{fetch: func(call int) (*snapshot.Snapshot, error) {
		if call == 1 {
			close(entered)
			<-release
			return older, nil
		}
		return newer, nil
	}}
	c, st, m := newController(f)

	done := make(chan error, 1)
	go func() { done <- c.Sync(context.Background()) }()
	<-entered

	require.NoError(t, c.Sync(context.Background()))
	require.Equal(t, 3, st.Regions().BlockCount)

	close(release)
	require.NoError(t, <-done)

	// The slow, older response must not overwrite the newer one.
	r := st.Regions()
	assert.Equal(t, 3, r.BlockCount)
	assert.False(t, r.Pending.MineVisible)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncCycles.WithLabelValues(metrics.ResultStale)))
}

func TestStaleRenderFailureIsDiscarded(t *testing.T) {
	broken := *mustDecode(t, scenarioBody)
	broken.Raw = []byte(`{"blockchain": [`)
	newer := mustDecode(t, minedBody)

	entered := make(chan struct{})
	release := make(chan struct{})
	f := &fakeFetcher{fetch: func(call int) (*snapshot.Snapshot, error) {
		if call == 1 {
			close(entered)
			<-release
			return &broken, nil
		}
		return newer, nil
	}}
	c, st, _ := newController(f)

	done := make(chan error, 1)
	go func() { done <- c.Sync(context.Background()) }()
	<-entered

	require.NoError(t, c.Sync(context.Background()))
	close(release)
	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrMalformed)

	// The newer cycle's regions stand and the stale failure leaves no trace.
	v := st.View()
	assert.Equal(t, 3, v.Regions.BlockCount)
	assert.Nil(t, v.SyncError)
	for _, l := range v.Logs {
		assert.NotEqual(t, "ERROR", l.Level, l.Message)
	}
}

func TestRenderFailureOfLatestCycleIsRecorded(t *testing.T) {
	broken := *mustDecode(t, scenarioBody)
	broken.Raw = []byte(`{"blockchain": [`)
	c, st, _ := newController(&fakeFetcher{fetch: always(&broken)})

	require.Error(t, c.Sync(context.Background()))
	v := st.View()
	require.NotNil(t, v.SyncError)
	assert.Contains(t, v.SyncError.Message, "malformed snapshot")
	require.NotEmpty(t, v.Logs)
	assert.Equal(t, "ERROR", v.Logs[len(v.Logs)-1].Level)
}

func TestMineSuccess(t *testing.T) {
	f := &fakeFetcher{
		fetch: func(call int) (*snapshot.Snapshot, error) {
			if call == 1 {
				return mustDecode(t, scenarioBody), nil
			}
			return mustDecode(t, minedBody), nil
		},
		mine: func() (*snapshot.MineResponse, error) {
			return &snapshot.MineResponse{Success: true, Message: "Block 2 mined & sealed"}, nil
		},
	}
	c, st, m := newController(f)
	require.NoError(t, c.Sync(context.Background()))

	res, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MineResult{Success: true, Message: "Block 2 mined & sealed"}, res)

	v := st.View()
	require.NotNil(t, v.Notice)
	assert.Equal(t, "info", v.Notice.Level)
	assert.Equal(t, "Block 2 mined & sealed", v.Notice.Message)

	// The refresh after mining shows the emptied pool.
	assert.Equal(t, 3, v.Regions.BlockCount)
	assert.False(t, v.Regions.Pending.MineVisible)
	assert.Equal(t, []render.PendingEntry{{Placeholder: true}}, v.Regions.Pending.Entries)
	assert.Equal(t, state.MineControl{Label: state.MineLabelIdle}, v.Mine)

	fetches, mines := f.calls()
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 1, mines)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MineRequests.WithLabelValues(metrics.ResultSuccess)))
}

func TestMineRejected(t *testing.T) {
	f := &fakeFetcher{
		fetch: always(mustDecode(t, scenarioBody)),
		mine: func() (*snapshot.MineResponse, error) {
			return &snapshot.MineResponse{Success: false, Message: "Pool empty"}, nil
		},
	}
	c, st, m := newController(f)

	res, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)

	v := st.View()
	assert.Equal(t, "error", v.Notice.Level)
	assert.Equal(t, "Pool empty", v.Notice.Message)
	assert.False(t, v.Mine.Busy)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MineRequests.WithLabelValues(metrics.ResultRejected)))
}

func TestMineMessageShownVerbatim(t *testing.T) {
	const msg = "Mining failed: set <voter_id> & retry"
	f := &fakeFetcher{
		fetch: always(mustDecode(t, scenarioBody)),
		mine: func() (*snapshot.MineResponse, error) {
			return &snapshot.MineResponse{Success: false, Message: msg}, nil
		},
	}
	c, st, _ := newController(f)

	res, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MineResult{Success: false, Message: msg}, res)

	v := st.View()
	require.NotNil(t, v.Notice)
	assert.Equal(t, msg, v.Notice.Message)
}

func TestMineFailureReenablesControl(t *testing.T) {
	f := &fakeFetcher{
		fetch: always(mustDecode(t, scenarioBody)),
		mine: func() (*snapshot.MineResponse, error) {
			return nil, fmt.Errorf("%w: dial tcp: connection refused", snapshot.ErrTransport)
		},
	}
	c, st, _ := newController(f)

	_, err := c.Mine(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, snapshot.ErrTransport))

	v := st.View()
	assert.Equal(t, state.MineControl{Label: state.MineLabelIdle}, v.Mine)
	require.NotNil(t, v.Notice)
	assert.Equal(t, "error", v.Notice.Level)
	assert.Contains(t, v.Notice.Message, "connection refused")

	// No automatic retry: one request per action.
	_, mines := f.calls()
	assert.Equal(t, 1, mines)

	// The operator can retry by hand.
	_, err = c.Mine(context.Background())
	require.Error(t, err)
	_, mines = f.calls()
	assert.Equal(t, 2, mines)
}

func TestConcurrentMineRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := &fakeFetcher{
		fetch: always(mustDecode(t, minedBody)),
		mine: func() (*snapshot.MineResponse, error) {
			close(entered)
			<-release
			return &snapshot.MineResponse{Success: true, Message: "Block 2 mined"}, nil
		},
	}
	c, st, m := newController(f)

	done := make(chan error, 1)
	go func() {
		_, err := c.Mine(context.Background())
		done <- err
	}()
	<-entered

	assert.Equal(t, state.MineControl{Busy: true, Label: state.MineLabelBusy}, st.View().Mine)

	_, err := c.Mine(context.Background())
	assert.ErrorIs(t, err, ErrMineInProgress)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MineRequests.WithLabelValues(metrics.ResultBusy)))

	close(release)
	require.NoError(t, <-done)

	_, mines := f.calls()
	assert.Equal(t, 1, mines)
	assert.Equal(t, state.MineControl{Label: state.MineLabelIdle}, st.View().Mine)
}

func TestFormatLogMessage(t *testing.T) {
	msg := formatLogMessage("ERROR", "Sync failed", "component", "Sync", "error", errors.New("boom"), "blocks", 2)
	assert.Regexp(t, `^\{"time":"[^"]+","level":"ERROR","msg":"Sync failed","error":"boom","blocks":2\}$`, msg)
	assert.Equal(t, "Sync", extractComponent("blocks", 2, "component", "Sync"))
	assert.Empty(t, extractComponent("component"))
}
