package state

import (
	"sync"
	"sync/atomic"
	"time"

	"ledger-dash/internal/render"
)

// Mine control labels.
const (
	MineLabelIdle = "Manual Override: Mine Block"
	MineLabelBusy = "Mining..."
)

// Regions is everything rendered from one snapshot. It is only ever
// replaced as a whole, never patched.
type Regions struct {
	Generation uint64    `json:"generation"`
	CycleID    string    `json:"cycleId"`
	FetchedAt  time.Time `json:"fetchedAt"`
	NodeID     string    `json:"nodeId,omitempty"`
	Status     string    `json:"status,omitempty"`

	BlockCount int                 `json:"blockCount"`
	VoterCount int                 `json:"voterCount"`
	Blocks     []render.NavEntry   `json:"blocks"`
	Voters     []render.NavEntry   `json:"voters"`
	Pending    render.PoolPanel    `json:"pending"`
	StateHTML  string              `json:"stateHtml"`
	Tally      []render.TallyEntry `json:"tally"`
}

// MineControl is the state of the mine button apart from its visibility,
// which belongs to Regions.Pending.
type MineControl struct {
	Busy  bool   `json:"busy"`
	Label string `json:"label"`
}

// Notice is a message shown to the operator, such as the mine result.
type Notice struct {
	Level   string    `json:"level"` // info, error
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SyncError describes the last failed sync cycle. It is cleared by the next
// successful commit.
type SyncError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// LogEntry holds a single log entry.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Label     string    `json:"label"`
	Message   string    `json:"message"`
}

// ViewData is a point-in-time copy of AppState for JSON serialization.
type ViewData struct {
	Regions   *Regions    `json:"regions"`
	Mine      MineControl `json:"mine"`
	Notice    *Notice     `json:"notice,omitempty"`
	SyncError *SyncError  `json:"syncError,omitempty"`
	Logs      []LogEntry  `json:"logs"`
}

// AppState holds the dashboard's shared state. Regions are written only by
// Commit, and only by the newest generation issued.
type AppState struct {
	mu        sync.RWMutex
	issued    atomic.Uint64
	committed uint64
	regions   *Regions
	mine      MineControl
	notice    *Notice
	syncErr   *SyncError
	logs      []LogEntry
	maxLogs   int
	changeCh  chan struct{}
}

// New creates a new AppState with a max log buffer size.
func New(maxLogs int) *AppState {
	return &AppState{
		maxLogs:  maxLogs,
		logs:     []LogEntry{},
		mine:     MineControl{Label: MineLabelIdle},
		changeCh: make(chan struct{}, 1),
	}
}

// notifyChange does a non-blocking send on changeCh to signal a state mutation.
// Must be called while NOT holding mu.
func (s *AppState) notifyChange() {
	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}

// ChangeCh returns a channel that receives a value whenever the state changes.
func (s *AppState) ChangeCh() <-chan struct{} {
	return s.changeCh
}

// NextGeneration issues the generation number for a new sync cycle. Only
// the most recently issued generation may commit.
func (s *AppState) NextGeneration() uint64 {
	return s.issued.Add(1)
}

// Commit replaces all regions with r if gen is still the latest generation.
// It returns false, leaving the state untouched, for a stale generation.
func (s *AppState) Commit(gen uint64, r Regions) bool {
	s.mu.Lock()
	if gen != s.issued.Load() || gen <= s.committed {
		s.mu.Unlock()
		return false
	}
	r.Generation = gen
	s.regions = &r
	s.committed = gen
	s.syncErr = nil
	s.mu.Unlock()
	s.notifyChange()
	return true
}

// FailSync records a failed cycle if gen is still the latest generation. The
// previous regions stay visible.
func (s *AppState) FailSync(gen uint64, msg string) bool {
	s.mu.Lock()
	if gen != s.issued.Load() {
		s.mu.Unlock()
		return false
	}
	s.syncErr = &SyncError{Message: msg, At: time.Now().UTC()}
	s.mu.Unlock()
	s.notifyChange()
	return true
}

// Regions returns the committed regions, or nil before the first commit.
func (s *AppState) Regions() *Regions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regions
}

// BeginMine marks the mine control busy. It returns false if a mine is
// already in progress.
func (s *AppState) BeginMine() bool {
	s.mu.Lock()
	if s.mine.Busy {
		s.mu.Unlock()
		return false
	}
	s.mine = MineControl{Busy: true, Label: MineLabelBusy}
	s.mu.Unlock()
	s.notifyChange()
	return true
}

// EndMine re-enables the mine control and restores its label.
func (s *AppState) EndMine() {
	s.mu.Lock()
	s.mine = MineControl{Label: MineLabelIdle}
	s.mu.Unlock()
	s.notifyChange()
}

// SetNotice replaces the operator notice.
func (s *AppState) SetNotice(level, message string) {
	s.mu.Lock()
	s.notice = &Notice{Level: level, Message: message, At: time.Now().UTC()}
	s.mu.Unlock()
	s.notifyChange()
}

// AddLog appends a log entry, trimming old entries if needed.
func (s *AppState) AddLog(level, label, message string) {
	s.mu.Lock()
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Label:     label,
		Message:   message,
	}
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[len(s.logs)-s.maxLogs:]
	}
	s.mu.Unlock()
	s.notifyChange()
}

// View returns a copy of the current state for JSON serialization.
func (s *AppState) View() ViewData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := make([]LogEntry, len(s.logs))
	copy(logs, s.logs)
	return ViewData{
		Regions:   s.regions,
		Mine:      s.mine,
		Notice:    s.notice,
		SyncError: s.syncErr,
		Logs:      logs,
	}
}
