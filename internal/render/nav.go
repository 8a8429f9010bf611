// Package render derives the dashboard's panels from a snapshot. Every
// function here is pure: the same snapshot always yields the same output.
package render

import (
	"html"
	"strconv"
	"strings"

	"ledger-dash/internal/highlight"
	"ledger-dash/internal/snapshot"
)

// Anchor prefixes used by the full-state view.
const (
	BlockAnchorPrefix = "block"
	VoterAnchorPrefix = "voter"
)

// StateAnchors are the structural anchors the full-state view is rendered
// with, one per block index and one per registry voter id.
var StateAnchors = []highlight.Anchor{
	{Path: "blockchain.ledger[*].index", Prefix: BlockAnchorPrefix},
	{Path: "voter_registry.registry[*].voter_id", Prefix: VoterAnchorPrefix},
}

// NavEntry is one clickable item of a navigation list.
type NavEntry struct {
	Label string `json:"label"`
	Key   string `json:"key"`
	// Anchor is the element id of the item inside the full-state view, or
	// empty when the view has no such element.
	Anchor string `json:"anchor,omitempty"`
	// Pattern is the text searched for when no anchor exists.
	Pattern string `json:"pattern"`
	// Offset is where Pattern first occurs in the view's text, set by Locate
	// for entries without an anchor. It is -1 otherwise.
	Offset int `json:"offset"`
}

// BlockNav returns one entry per block in ledger order, labelled by index.
func BlockNav(ledger []snapshot.Block, anchors map[string]int) []NavEntry {
	out := make([]NavEntry, 0, len(ledger))
	for i, b := range ledger {
		e := NavEntry{Label: b.Label()}
		if b.Index != nil {
			e.Key = strconv.FormatInt(*b.Index, 10)
			e.Pattern = `"index": ` + e.Key
		}
		e.Anchor = anchorFor(anchors, BlockAnchorPrefix, i)
		out = append(out, e)
	}
	return out
}

// VoterNav returns one entry per registered voter in registry order,
// labelled by voter id.
func VoterNav(registry []snapshot.Voter, anchors map[string]int) []NavEntry {
	out := make([]NavEntry, 0, len(registry))
	for i, v := range registry {
		out = append(out, NavEntry{
			Label:   v.ID,
			Key:     v.ID,
			Pattern: `"voter_id": "` + v.ID + `"`,
			Anchor:  anchorFor(anchors, VoterAnchorPrefix, i),
		})
	}
	return out
}

func anchorFor(anchors map[string]int, prefix string, pos int) string {
	id := prefix + "-" + strconv.Itoa(pos)
	if _, ok := anchors[id]; ok {
		return id
	}
	return ""
}

// Locate is the best-effort textual lookup for entries that have no anchor:
// it sets Offset to the first occurrence of the entry's pattern in the text
// of the rendered markup, as the page sees it, or -1.
func Locate(entries []NavEntry, markup string) {
	var text string
	for i := range entries {
		e := &entries[i]
		e.Offset = -1
		if e.Anchor != "" || e.Pattern == "" {
			continue
		}
		if text == "" {
			text = html.UnescapeString(stripTags(markup))
		}
		e.Offset = strings.Index(text, e.Pattern)
	}
}

// stripTags removes the span tags the highlighter generates.
func stripTags(markup string) string {
	var b strings.Builder
	b.Grow(len(markup))
	for i := 0; i < len(markup); {
		if markup[i] == '<' {
			if end := strings.IndexByte(markup[i:], '>'); end >= 0 {
				i += end + 1
				continue
			}
		}
		b.WriteByte(markup[i])
		i++
	}
	return b.String()
}
