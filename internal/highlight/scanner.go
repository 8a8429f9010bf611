package highlight

// Kind identifies the lexical class of a token.
type Kind int

const (
	Invalid Kind = iota // bytes that are not part of any JSON token
	Space
	Punct
	Key
	String
	Number
	Boolean
	Null
)

var kindNames = [...]string{"invalid", "space", "punct", "key", "string", "number", "boolean", "null"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Class returns the CSS class used for the kind, or "" when the token is
// emitted without a span.
func (k Kind) Class() string {
	switch k {
	case Key:
		return "json-key"
	case String:
		return "json-string"
	case Number:
		return "json-number"
	case Boolean:
		return "json-boolean"
	case Null:
		return "json-null"
	}
	return ""
}

// IsValue reports whether the token is a scalar JSON value.
func (k Kind) IsValue() bool {
	return k == String || k == Number || k == Boolean || k == Null
}

// Token is one lexeme of the input. Text is the original, unescaped source.
// A Key token spans the quoted name, any whitespace after it and the colon.
type Token struct {
	Kind   Kind
	Text   string
	Offset int
	Line   int
}

// Scanner splits JSON text into tokens one byte at a time. It never fails:
// input it cannot classify comes back as Invalid tokens.
type Scanner struct {
	src  string
	pos  int
	line int
}

// NewScanner returns a scanner positioned at the start of src.
func NewScanner(src string) *Scanner {
	return &Scanner{src: src, line: 1}
}

// Tokenize scans src to the end.
func Tokenize(src string) []Token {
	s := NewScanner(src)
	var out []Token
	for {
		tok, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, tok)
	}
}

// Next returns the next token, or false at end of input.
func (s *Scanner) Next() (Token, bool) {
	if s.pos >= len(s.src) {
		return Token{}, false
	}
	start, line := s.pos, s.line
	c := s.src[s.pos]

	var kind Kind
	switch {
	case isSpace(c):
		s.scanSpace()
		kind = Space
	case c == '"':
		kind = s.scanString()
	case c == '-' || isDigit(c):
		kind = s.scanNumber()
	case isWordByte(c):
		kind = s.scanWord()
	case c == '{' || c == '}' || c == '[' || c == ']' || c == ',' || c == ':':
		s.pos++
		kind = Punct
	default:
		s.pos++
		kind = Invalid
	}

	text := s.src[start:s.pos]
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			s.line++
		}
	}
	return Token{Kind: kind, Text: text, Offset: start, Line: line}, true
}

func (s *Scanner) scanSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

// scanString consumes a quoted string and, when the next non-space byte is a
// colon, the colon as well. A string cut short by a raw newline is Invalid up
// to the newline and scanning resumes there; one cut short by the end of the
// input is Invalid to the end.
func (s *Scanner) scanString() Kind {
	i := s.pos + 1
	for i < len(s.src) {
		switch s.src[i] {
		case '"':
			s.pos = i + 1
			return s.maybeKey()
		case '\\':
			if i+1 >= len(s.src) {
				s.pos = len(s.src)
				return Invalid
			}
			if s.src[i+1] == '\n' {
				s.pos = i + 1
				return Invalid
			}
			if s.src[i+1] == 'u' {
				j := i + 2
				for j < len(s.src) && j < i+6 && isAlnum(s.src[j]) {
					j++
				}
				i = j
				continue
			}
			i += 2
		case '\n':
			// Raw newlines cannot appear inside a JSON string.
			s.pos = i
			return Invalid
		default:
			i++
		}
	}
	s.pos = len(s.src)
	return Invalid
}

func (s *Scanner) maybeKey() Kind {
	j := s.pos
	for j < len(s.src) && isSpace(s.src[j]) {
		j++
	}
	if j < len(s.src) && s.src[j] == ':' {
		s.pos = j + 1
		return Key
	}
	return String
}

// scanNumber follows -?\d+(\.\d*)?([eE][+-]?\d+)?
func (s *Scanner) scanNumber() Kind {
	i := s.pos
	if s.src[i] == '-' {
		i++
	}
	if i >= len(s.src) || !isDigit(s.src[i]) {
		s.pos++
		return Invalid
	}
	for i < len(s.src) && isDigit(s.src[i]) {
		i++
	}
	if i < len(s.src) && s.src[i] == '.' {
		i++
		for i < len(s.src) && isDigit(s.src[i]) {
			i++
		}
	}
	if i < len(s.src) && (s.src[i] == 'e' || s.src[i] == 'E') {
		j := i + 1
		if j < len(s.src) && (s.src[j] == '+' || s.src[j] == '-') {
			j++
		}
		if j < len(s.src) && isDigit(s.src[j]) {
			for j < len(s.src) && isDigit(s.src[j]) {
				j++
			}
			i = j
		}
	}
	s.pos = i
	return Number
}

func (s *Scanner) scanWord() Kind {
	i := s.pos
	for i < len(s.src) && isWordByte(s.src[i]) {
		i++
	}
	word := s.src[s.pos:i]
	s.pos = i
	switch word {
	case "true", "false":
		return Boolean
	case "null":
		return Null
	}
	return Invalid
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordByte(c byte) bool {
	return isAlnum(c) || c == '_'
}
