package render

import (
	"encoding/json"
	"sort"

	"ledger-dash/internal/snapshot"
)

// EmptyPoolText is shown as the only pending entry when the pool is empty.
const EmptyPoolText = "Pool empty"

// PendingEntry is one line of the pending-pool panel.
type PendingEntry struct {
	VoterID     string `json:"voterId,omitempty"`
	Party       string `json:"party,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Text returns the entry as displayed: "A ➔ X", or the placeholder text.
func (e PendingEntry) Text() string {
	if e.Placeholder {
		return EmptyPoolText
	}
	return e.VoterID + " ➔ " + e.Party
}

// PoolPanel is the rendered pending pool. MineVisible decides whether the
// mine action is offered at all.
type PoolPanel struct {
	MineVisible bool           `json:"mineVisible"`
	Entries     []PendingEntry `json:"entries"`
}

// PendingPool renders the pool panel. A positive count shows the mine
// control and one entry per transaction; otherwise the control is hidden and
// a single placeholder is shown.
func PendingPool(pool snapshot.PendingPool) PoolPanel {
	if pool.Count <= 0 {
		return PoolPanel{
			MineVisible: false,
			Entries:     []PendingEntry{{Placeholder: true}},
		}
	}
	entries := make([]PendingEntry, 0, len(pool.Transactions))
	for _, tx := range pool.Transactions {
		entries = append(entries, PendingEntry{VoterID: tx.VoterID, Party: tx.Party})
	}
	return PoolPanel{MineVisible: true, Entries: entries}
}

// TallyEntry is the number of votes counted for one party.
type TallyEntry struct {
	Party string `json:"party"`
	Votes int    `json:"votes"`
}

// Tally counts one vote per voter. The last committed vote of a voter wins;
// a pending vote counts only for voters with no committed vote. Parties are
// ordered by votes descending then name. Blocks whose transactions cannot be
// read are skipped.
func Tally(ledger []snapshot.Block, pool snapshot.PendingPool) []TallyEntry {
	votes := map[string]string{}
	for _, b := range ledger {
		var body struct {
			Transactions []snapshot.Transaction `json:"transactions"`
		}
		if err := json.Unmarshal(b.Raw, &body); err != nil {
			continue
		}
		for _, tx := range body.Transactions {
			if tx.VoterID != "" {
				votes[tx.VoterID] = tx.Party
			}
		}
	}
	for _, tx := range pool.Transactions {
		if _, ok := votes[tx.VoterID]; tx.VoterID != "" && !ok {
			votes[tx.VoterID] = tx.Party
		}
	}

	counts := map[string]int{}
	for _, party := range votes {
		if party != "" {
			counts[party]++
		}
	}

	out := make([]TallyEntry, 0, len(counts))
	for party, n := range counts {
		out = append(out, TallyEntry{Party: party, Votes: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].Party < out[j].Party
	})
	return out
}
