package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is returned when a response body is not valid JSON or lacks
// one of the sections the dashboard renders.
var ErrMalformed = errors.New("malformed snapshot")

// Snapshot is one complete, immutable read of the ledger server's state.
type Snapshot struct {
	NodeID        string         `json:"node_id,omitempty"`
	Status        string         `json:"status,omitempty"`
	Blockchain    *Blockchain    `json:"blockchain"`
	VoterRegistry *VoterRegistry `json:"voter_registry"`
	PendingPool   *PendingPool   `json:"pending_pool"`

	// Raw is the body exactly as received, used for the full-state view so
	// that the server's key order is preserved.
	Raw json.RawMessage `json:"-"`
}

// Blockchain holds the committed ledger in chain order.
type Blockchain struct {
	Length int     `json:"length,omitempty"`
	Ledger []Block `json:"ledger"`
}

// VoterRegistry holds the registered voters.
type VoterRegistry struct {
	TotalRegistered int     `json:"total_registered"`
	Registry        []Voter `json:"registry"`
}

// PendingPool holds transactions not yet sealed into a block.
type PendingPool struct {
	Count        int           `json:"count"`
	Transactions []Transaction `json:"transactions"`
}

// Block is a committed block. Only the index is interpreted; everything else
// is kept verbatim in Raw.
type Block struct {
	Index *int64
	Raw   json.RawMessage
}

// Label returns the display key of the block, "#<index>", or "#?" when the
// server omitted the index.
func (b Block) Label() string {
	if b.Index == nil {
		return "#?"
	}
	return "#" + strconv.FormatInt(*b.Index, 10)
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var fields struct {
		Index *int64 `json:"index"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	b.Index = fields.Index
	b.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b Block) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	return json.Marshal(map[string]*int64{"index": b.Index})
}

// Voter is a registry entry identified by its voter id.
type Voter struct {
	ID  string
	Raw json.RawMessage
}

func (v *Voter) UnmarshalJSON(data []byte) error {
	var fields struct {
		ID string `json:"voter_id"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	v.ID = fields.ID
	v.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (v Voter) MarshalJSON() ([]byte, error) {
	if len(v.Raw) > 0 {
		return v.Raw, nil
	}
	return json.Marshal(map[string]string{"voter_id": v.ID})
}

// Transaction is one vote, pending or sealed. The voter need not be in the
// registry.
type Transaction struct {
	VoterID string `json:"voter_id"`
	Party   string `json:"party"`
}

// Decode parses a state response body. The body must be a JSON object with
// blockchain, voter_registry and pending_pool sections.
func Decode(body []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case s.Blockchain == nil:
		return nil, fmt.Errorf("%w: missing blockchain", ErrMalformed)
	case s.VoterRegistry == nil:
		return nil, fmt.Errorf("%w: missing voter_registry", ErrMalformed)
	case s.PendingPool == nil:
		return nil, fmt.Errorf("%w: missing pending_pool", ErrMalformed)
	}
	s.Raw = append(json.RawMessage(nil), body...)
	return &s, nil
}
