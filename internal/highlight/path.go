package highlight

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Anchor marks the value found at Path so that it can be scrolled to.
// Path is dotted with [*] standing for any array position, for example
// "blockchain.ledger[*].index". The value span receives the id
// "<Prefix>-<position>", where position is the index matched by the first
// [*] segment.
type Anchor struct {
	Path   string
	Prefix string
}

type segment struct {
	key   string
	index int
	array bool
	wild  bool
}

func parsePath(p string) ([]segment, error) {
	var segs []segment
	for _, part := range strings.Split(p, ".") {
		name := part
		var tail string
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, tail = part[:i], part[i:]
		}
		if name != "" {
			segs = append(segs, segment{key: name})
		}
		for tail != "" {
			end := strings.IndexByte(tail, ']')
			if tail[0] != '[' || end < 0 {
				return nil, fmt.Errorf("malformed path segment %q in %q", part, p)
			}
			inner := tail[1:end]
			if inner == "*" {
				segs = append(segs, segment{array: true, wild: true})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("malformed index %q in %q", inner, p)
				}
				segs = append(segs, segment{array: true, index: n})
			}
			tail = tail[end+1:]
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty anchor path")
	}
	return segs, nil
}

// match reports whether the current location equals the pattern and returns
// the array position captured by the first wildcard.
func match(pattern, at []segment) (int, bool) {
	if len(pattern) != len(at) {
		return 0, false
	}
	captured := -1
	for i, p := range pattern {
		a := at[i]
		if p.array != a.array {
			return 0, false
		}
		switch {
		case !p.array:
			if p.key != a.key {
				return 0, false
			}
		case p.wild:
			if captured < 0 {
				captured = a.index
			}
		case p.index != a.index:
			return 0, false
		}
	}
	if captured < 0 {
		captured = 0
	}
	return captured, true
}

// frame is one open container while walking the token stream.
type frame struct {
	array bool
	key   string
	index int
}

// tracker follows the JSON nesting so each scalar can be located by path.
type tracker struct {
	stack []frame
}

func (t *tracker) observe(tok Token) {
	switch tok.Kind {
	case Key:
		if n := len(t.stack); n > 0 && !t.stack[n-1].array {
			t.stack[n-1].key = keyName(tok.Text)
		}
	case Punct:
		switch tok.Text {
		case "{":
			t.stack = append(t.stack, frame{})
		case "[":
			t.stack = append(t.stack, frame{array: true})
		case "}", "]":
			if n := len(t.stack); n > 0 {
				t.stack = t.stack[:n-1]
			}
		case ",":
			if n := len(t.stack); n > 0 && t.stack[n-1].array {
				t.stack[n-1].index++
			}
		}
	}
}

func (t *tracker) location() []segment {
	at := make([]segment, len(t.stack))
	for i, f := range t.stack {
		if f.array {
			at[i] = segment{array: true, index: f.index}
		} else {
			at[i] = segment{key: f.key}
		}
	}
	return at
}

// keyName extracts the decoded name from a Key token such as `"index" :`.
func keyName(text string) string {
	end := strings.LastIndexByte(text, '"')
	if end <= 0 {
		return ""
	}
	quoted := text[:end+1]
	var name string
	if err := json.Unmarshal([]byte(quoted), &name); err != nil {
		return quoted[1 : len(quoted)-1]
	}
	return name
}
