// Package highlight renders JSON text as HTML markup with one span per token.
//
// Input is tokenized by a byte-level scanner rather than a regular
// expression, so malformed or truncated strings degrade to escaped plain
// text instead of corrupting the markup. Every byte of output outside the
// generated tags has &, < and > escaped.
package highlight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IndentUnit is the indentation used when values are serialized.
const IndentUnit = "    "

// Result is the rendered markup plus the structural anchors found in it.
type Result struct {
	HTML string
	// Anchors maps each emitted element id to the 1-based line it sits on.
	Anchors map[string]int
}

// Option configures Highlight.
type Option func(*options)

type options struct {
	anchors []Anchor
}

// WithAnchors tags the values found at the given paths with element ids.
func WithAnchors(anchors ...Anchor) Option {
	return func(o *options) {
		o.anchors = append(o.anchors, anchors...)
	}
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape replaces &, < and > with their entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Highlight renders v. Strings, byte slices and json.RawMessage are taken as
// already-serialized JSON; any other value is serialized with four-space
// indentation first. The same input always yields byte-identical output.
func Highlight(v any, opts ...Option) (Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	src, err := source(v)
	if err != nil {
		return Result{}, err
	}

	type compiled struct {
		segs   []segment
		prefix string
	}
	rules := make([]compiled, 0, len(o.anchors))
	for _, a := range o.anchors {
		segs, err := parsePath(a.Path)
		if err != nil {
			return Result{}, fmt.Errorf("invalid anchor: %w", err)
		}
		rules = append(rules, compiled{segs: segs, prefix: a.Prefix})
	}

	res := Result{Anchors: map[string]int{}}
	var b strings.Builder
	b.Grow(len(src) * 2)

	var tr tracker
	s := NewScanner(src)
	for {
		tok, ok := s.Next()
		if !ok {
			break
		}

		id := ""
		if tok.Kind.IsValue() && len(rules) > 0 {
			at := tr.location()
			for _, r := range rules {
				if pos, ok := match(r.segs, at); ok {
					candidate := r.prefix + "-" + strconv.Itoa(pos)
					if _, dup := res.Anchors[candidate]; !dup {
						id = candidate
						res.Anchors[id] = tok.Line
					}
					break
				}
			}
		}
		tr.observe(tok)

		cls := tok.Kind.Class()
		if cls == "" {
			b.WriteString(Escape(tok.Text))
			continue
		}
		b.WriteString(`<span class="`)
		b.WriteString(cls)
		b.WriteString(`"`)
		if id != "" {
			b.WriteString(` id="`)
			b.WriteString(Escape(id))
			b.WriteString(`"`)
		}
		b.WriteString(`>`)
		b.WriteString(Escape(tok.Text))
		b.WriteString(`</span>`)
	}

	res.HTML = b.String()
	return res, nil
}

// Classify returns the class of every styled token in src, in order. It is
// the token-stream view of Highlight without any markup.
func Classify(src string) []Token {
	var out []Token
	for _, tok := range Tokenize(src) {
		if tok.Kind.Class() != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Indent re-indents raw JSON with IndentUnit while keeping key order and
// string escapes exactly as sent.
func Indent(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", IndentUnit); err != nil {
		return "", fmt.Errorf("failed to indent JSON: %w", err)
	}
	return buf.String(), nil
}

// Marshal serializes v the way Highlight does for structured input.
func Marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", IndentUnit)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to serialize value: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func source(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case json.RawMessage:
		return string(t), nil
	}
	return Marshal(v)
}
