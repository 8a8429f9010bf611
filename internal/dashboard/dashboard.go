package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"ledger-dash/internal/highlight"
	"ledger-dash/internal/metrics"
	"ledger-dash/internal/render"
	"ledger-dash/internal/snapshot"
	"ledger-dash/internal/state"
)

// ErrMineInProgress is returned by Mine while another mine action is running.
var ErrMineInProgress = errors.New("mine already in progress")

// Fetcher reads the ledger server. *snapshot.Client implements it.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*snapshot.Snapshot, error)
	Mine(ctx context.Context) (*snapshot.MineResponse, error)
}

// MineResult is the outcome of one mine action as shown to the operator.
type MineResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// stateMarkup admits only the highlighter's own markup into the state view,
// which the page inserts as HTML.
var stateMarkup = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("class", "id").OnElements("span")
	return p
}()

// Controller runs sync cycles and mine actions against the shared state.
type Controller struct {
	fetcher Fetcher
	state   *state.AppState
	metrics *metrics.Metrics
}

// New creates a Controller. m may be nil.
func New(f Fetcher, appState *state.AppState, m *metrics.Metrics) *Controller {
	return &Controller{
		fetcher: f,
		state:   appState,
		metrics: m,
	}
}

// Sync fetches one snapshot and replaces every region with what it renders.
// On failure the previous regions stay and a sync error is recorded. A result
// that was overtaken by a newer cycle is discarded.
func (c *Controller) Sync(ctx context.Context) error {
	gen := c.state.NextGeneration()
	cycleID := uuid.NewString()
	start := time.Now()
	defer c.observeDuration(start)

	c.logDebug("Fetching system state", "component", "Sync", "generation", gen, "cycle", cycleID)

	snap, err := c.fetcher.FetchSnapshot(ctx)
	if err != nil {
		c.countSync(metrics.ResultFailure)
		if c.state.FailSync(gen, err.Error()) {
			c.logError("Sync failed, keeping previous state", "component", "Sync", "cycle", cycleID, "error", err.Error())
		} else {
			c.logDebug("Discarding failure of stale cycle", "component", "Sync", "generation", gen, "cycle", cycleID)
		}
		return err
	}

	regions, err := Build(snap)
	if err != nil {
		c.countSync(metrics.ResultFailure)
		if c.state.FailSync(gen, err.Error()) {
			c.logError("Could not render system state", "component", "Sync", "cycle", cycleID, "error", err.Error())
		} else {
			c.logDebug("Discarding render failure of stale cycle", "component", "Sync", "generation", gen, "cycle", cycleID)
		}
		return err
	}
	regions.CycleID = cycleID
	regions.FetchedAt = time.Now().UTC()

	if !c.state.Commit(gen, regions) {
		c.countSync(metrics.ResultStale)
		c.logDebug("Discarding stale snapshot", "component", "Sync", "generation", gen, "cycle", cycleID)
		return nil
	}

	c.countSync(metrics.ResultSuccess)
	if c.metrics != nil {
		c.metrics.LedgerBlocks.Set(float64(regions.BlockCount))
		c.metrics.RegisteredVoters.Set(float64(regions.VoterCount))
		c.metrics.PendingTransactions.Set(float64(snap.PendingPool.Count))
	}
	c.logInfo("State synced", "component", "Sync",
		"cycle", cycleID,
		"blocks", regions.BlockCount,
		"voters", regions.VoterCount,
		"pending", snap.PendingPool.Count,
	)
	return nil
}

// Build renders every region from a single snapshot. It does not touch any
// shared state, so the same snapshot always yields the same regions.
func Build(snap *snapshot.Snapshot) (state.Regions, error) {
	src, err := highlight.Indent(snap.Raw)
	if err != nil {
		return state.Regions{}, fmt.Errorf("%w: %v", snapshot.ErrMalformed, err)
	}
	view, err := highlight.Highlight(src, highlight.WithAnchors(render.StateAnchors...))
	if err != nil {
		return state.Regions{}, err
	}

	blocks := render.BlockNav(snap.Blockchain.Ledger, view.Anchors)
	voters := render.VoterNav(snap.VoterRegistry.Registry, view.Anchors)
	render.Locate(blocks, view.HTML)
	render.Locate(voters, view.HTML)

	return state.Regions{
		NodeID:     snap.NodeID,
		Status:     snap.Status,
		BlockCount: len(snap.Blockchain.Ledger),
		VoterCount: snap.VoterRegistry.TotalRegistered,
		Blocks:     blocks,
		Voters:     voters,
		Pending:    render.PendingPool(*snap.PendingPool),
		StateHTML:  stateMarkup.Sanitize(view.HTML),
		Tally:      render.Tally(snap.Blockchain.Ledger, *snap.PendingPool),
	}, nil
}

// Mine asks the server to mine the pending pool, records the server's
// message verbatim as the operator notice and then refreshes the state. Only one mine
// runs at a time; the control is re-enabled however the action ends.
func (c *Controller) Mine(ctx context.Context) (MineResult, error) {
	if !c.state.BeginMine() {
		c.countMine(metrics.ResultBusy)
		return MineResult{}, ErrMineInProgress
	}
	defer c.state.EndMine()

	c.logInfo("Mining pending pool", "component", "Mine")

	resp, err := c.fetcher.Mine(ctx)
	if err != nil {
		c.countMine(metrics.ResultFailure)
		c.state.SetNotice("error", "Mine failed: "+err.Error())
		c.logError("Mine request failed", "component", "Mine", "error", err.Error())
		return MineResult{}, err
	}

	result := MineResult{
		Success: resp.Success,
		Message: resp.Message,
	}
	if result.Success {
		c.countMine(metrics.ResultSuccess)
		c.state.SetNotice("info", result.Message)
		c.logInfo("Block mined", "component", "Mine", "message", result.Message)
	} else {
		c.countMine(metrics.ResultRejected)
		c.state.SetNotice("error", result.Message)
		c.logWarn("Mine rejected by server", "component", "Mine", "message", result.Message)
	}

	// The mine itself succeeded or was answered; a failed refresh is recorded
	// as a sync error and does not change the mine result.
	_ = c.Sync(ctx)
	return result, nil
}

func (c *Controller) countSync(result string) {
	if c.metrics != nil {
		c.metrics.SyncCycles.WithLabelValues(result).Inc()
	}
}

func (c *Controller) countMine(result string) {
	if c.metrics != nil {
		c.metrics.MineRequests.WithLabelValues(result).Inc()
	}
}

func (c *Controller) observeDuration(start time.Time) {
	if c.metrics != nil {
		c.metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}
}
