package snapshot

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioBody = `{
  "blockchain": {"ledger": [{"index": 0, "hash": "00ab"}, {"index": 1, "transactions": [{"party": "X"}]}]},
  "voter_registry": {"total_registered": 2, "registry": [{"voter_id": "A", "has_voted": true}, {"voter_id": "B"}]},
  "pending_pool": {"count": 1, "transactions": [{"voter_id": "A", "party": "X"}]}
}`

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(scenarioBody))
	require.NoError(t, err)

	require.Len(t, s.Blockchain.Ledger, 2)
	assert.Equal(t, "#0", s.Blockchain.Ledger[0].Label())
	assert.Equal(t, "#1", s.Blockchain.Ledger[1].Label())
	assert.JSONEq(t, `{"index": 0, "hash": "00ab"}`, string(s.Blockchain.Ledger[0].Raw))

	assert.Equal(t, 2, s.VoterRegistry.TotalRegistered)
	require.Len(t, s.VoterRegistry.Registry, 2)
	assert.Equal(t, "A", s.VoterRegistry.Registry[0].ID)
	assert.JSONEq(t, `{"voter_id": "A", "has_voted": true}`, string(s.VoterRegistry.Registry[0].Raw))

	assert.Equal(t, 1, s.PendingPool.Count)
	assert.Equal(t, []Transaction{{VoterID: "A", Party: "X"}}, s.PendingPool.Transactions)

	assert.Equal(t, scenarioBody, string(s.Raw))
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "not json", body: `<html>login</html>`, wantMsg: "malformed snapshot"},
		{name: "array", body: `[]`, wantMsg: "malformed snapshot"},
		{name: "missing blockchain", body: `{"voter_registry": {}, "pending_pool": {}}`, wantMsg: "missing blockchain"},
		{name: "missing registry", body: `{"blockchain": {}, "pending_pool": {}}`, wantMsg: "missing voter_registry"},
		{name: "missing pool", body: `{"blockchain": {}, "voter_registry": {}}`, wantMsg: "missing pending_pool"},
		{name: "string index", body: `{"blockchain": {"ledger": [{"index": "0"}]}, "voter_registry": {}, "pending_pool": {}}`, wantMsg: "malformed snapshot"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestBlockWithoutIndex(t *testing.T) {
	var b Block
	require.NoError(t, json.Unmarshal([]byte(`{"hash": "x"}`), &b))
	assert.Nil(t, b.Index)
	assert.Equal(t, "#?", b.Label())
}

func TestMarshalKeepsRaw(t *testing.T) {
	s, err := Decode([]byte(scenarioBody))
	require.NoError(t, err)

	out, err := json.Marshal(s.Blockchain)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ledger": [{"index": 0, "hash": "00ab"}, {"index": 1, "transactions": [{"party": "X"}]}]}`, string(out))

	idx := int64(4)
	out, err = json.Marshal(Block{Index: &idx})
	require.NoError(t, err)
	assert.JSONEq(t, `{"index": 4}`, string(out))
}
