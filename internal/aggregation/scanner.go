package aggregation

// scanner walks a formula byte by byte, yielding bare identifiers.
// String literals, quoted identifiers and comments are skipped.
type scanner struct {
	input string
	pos   int
}

func newScanner(input string) *scanner {
	return &scanner{input: input}
}

func (s *scanner) peek(offset int) byte {
	if s.pos+offset >= len(s.input) {
		return 0
	}
	return s.input[s.pos+offset]
}

// nextIdentifier advances past the next bare identifier and returns it.
func (s *scanner) nextIdentifier() (string, bool) {
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		switch {
		case ch == '\'':
			s.skipQuoted('\'')
		case ch == '"':
			s.skipQuoted('"')
		case ch == '`':
			s.skipQuoted('`')
		case ch == '-' && s.peek(1) == '-':
			for s.pos < len(s.input) && s.input[s.pos] != '\n' {
				s.pos++
			}
		case ch == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case isIdentStart(ch):
			start := s.pos
			for s.pos < len(s.input) && isIdentPart(s.input[s.pos]) {
				s.pos++
			}
			return s.input[start:s.pos], true
		case isDigit(ch):
			// Numbers like 1e10 must not yield "e10".
			for s.pos < len(s.input) && isIdentPart(s.input[s.pos]) {
				s.pos++
			}
		default:
			s.pos++
		}
	}
	return "", false
}

// nextIsCall reports whether the next non-blank byte opens an argument list.
func (s *scanner) nextIsCall() bool {
	i := s.pos
	for i < len(s.input) && isSpace(s.input[i]) {
		i++
	}
	return i < len(s.input) && s.input[i] == '('
}

// skipQuoted skips a quoted run, treating a doubled quote as an escape.
func (s *scanner) skipQuoted(q byte) {
	s.pos++ // opening quote
	for s.pos < len(s.input) {
		if s.input[s.pos] == q {
			if s.peek(1) == q {
				s.pos += 2
				continue
			}
			s.pos++
			return
		}
		s.pos++
	}
}

func (s *scanner) skipBlockComment() {
	s.pos += 2
	for s.pos < len(s.input) {
		if s.input[s.pos] == '*' && s.peek(1) == '/' {
			s.pos += 2
			return
		}
		s.pos++
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
