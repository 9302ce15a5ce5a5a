package ifc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const stepMagic = "ISO-10303-21;"

var errNotSTEP = errors.New("missing ISO-10303-21 header")

type kind uint8

const (
	kindNull kind = iota
	kindDerived
	kindRef
	kindNumber
	kindString
	kindEnum
	kindList
	kindTyped
)

// value is one attribute of a STEP entity instance
type value struct {
	kind kind
	ref  int
	num  float64
	str  string // string body, enum literal or type name for typed values
	list []value
}

func (v value) isNull() bool {
	return v.kind == kindNull || v.kind == kindDerived
}

func (v value) float() (float64, bool) {
	switch v.kind {
	case kindNumber:
		return v.num, true
	case kindTyped:
		if len(v.list) == 1 {
			return v.list[0].float()
		}
	}
	return 0, false
}

func (v value) text() string {
	switch v.kind {
	case kindString, kindEnum:
		return v.str
	case kindTyped:
		if len(v.list) == 1 {
			return v.list[0].text()
		}
	}
	return ""
}

func (v value) floats() []float64 {
	if v.kind != kindList {
		return nil
	}
	out := make([]float64, 0, len(v.list))
	for _, item := range v.list {
		f, ok := item.float()
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// entity is one "#id=TYPE(args);" instance from the DATA section
type entity struct {
	id   int
	typ  string
	args []value
}

func (e *entity) arg(i int) value {
	if e == nil || i >= len(e.args) {
		return value{kind: kindNull}
	}
	return e.args[i]
}

// document is a parsed STEP physical file
type document struct {
	entities map[int]*entity
	order    []int
	warnings []string
}

func (d *document) get(v value) *entity {
	if v.kind != kindRef {
		return nil
	}
	return d.entities[v.ref]
}

// getType resolves v and returns it only when its type is one of types
func (d *document) getType(v value, types ...string) *entity {
	e := d.get(v)
	if e == nil {
		return nil
	}
	for _, t := range types {
		if e.typ == t {
			return e
		}
	}
	return nil
}

type scanner struct {
	data []byte
	pos  int
	line int
}

func (s *scanner) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", s.line, fmt.Sprintf(format, args...))
}

func (s *scanner) peek() byte {
	if s.pos >= len(s.data) {
		return 0
	}
	return s.data[s.pos]
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case c == '\n':
			s.line++
			s.pos++
		case c == ' ' || c == '\t' || c == '\r':
			s.pos++
		case c == '/' && s.pos+1 < len(s.data) && s.data[s.pos+1] == '*':
			end := bytes.Index(s.data[s.pos+2:], []byte("*/"))
			if end < 0 {
				s.pos = len(s.data)
				return
			}
			s.line += bytes.Count(s.data[s.pos:s.pos+2+end], []byte{'\n'})
			s.pos += end + 4
		default:
			return
		}
	}
}

func (s *scanner) expect(c byte) error {
	s.skipSpace()
	if s.peek() != c {
		return s.errorf("expected %q, found %q", c, s.peek())
	}
	s.pos++
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isKeywordByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func (s *scanner) keyword() string {
	start := s.pos
	for s.pos < len(s.data) && isKeywordByte(s.data[s.pos]) {
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func (s *scanner) integer() (int, error) {
	start := s.pos
	for s.pos < len(s.data) && isDigit(s.data[s.pos]) {
		s.pos++
	}
	n, err := strconv.Atoi(string(s.data[start:s.pos]))
	if err != nil {
		return 0, s.errorf("invalid instance number")
	}
	return n, nil
}

func (s *scanner) number() (value, error) {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if !isDigit(c) && c != '.' && c != '-' && c != '+' && c != 'E' && c != 'e' {
			break
		}
		s.pos++
	}
	f, err := strconv.ParseFloat(string(s.data[start:s.pos]), 64)
	if err != nil {
		return value{}, s.errorf("invalid number %q", s.data[start:s.pos])
	}
	return value{kind: kindNumber, num: f}, nil
}

// str reads a quoted string; a doubled quote is a literal quote
func (s *scanner) str() (string, error) {
	s.pos++ // opening quote
	var sb strings.Builder
	for {
		i := bytes.IndexByte(s.data[s.pos:], '\'')
		if i < 0 {
			return "", s.errorf("unterminated string")
		}
		chunk := s.data[s.pos : s.pos+i]
		s.line += bytes.Count(chunk, []byte{'\n'})
		sb.Write(chunk)
		s.pos += i + 1
		if s.peek() == '\'' {
			sb.WriteByte('\'')
			s.pos++
			continue
		}
		return sb.String(), nil
	}
}

func (s *scanner) value() (value, error) {
	s.skipSpace()
	c := s.peek()
	switch {
	case c == '$':
		s.pos++
		return value{kind: kindNull}, nil
	case c == '*':
		s.pos++
		return value{kind: kindDerived}, nil
	case c == '#':
		s.pos++
		n, err := s.integer()
		return value{kind: kindRef, ref: n}, err
	case c == '\'':
		str, err := s.str()
		return value{kind: kindString, str: str}, err
	case c == '"':
		s.pos++
		i := bytes.IndexByte(s.data[s.pos:], '"')
		if i < 0 {
			return value{}, s.errorf("unterminated binary")
		}
		str := string(s.data[s.pos : s.pos+i])
		s.pos += i + 1
		return value{kind: kindString, str: str}, nil
	case c == '.':
		s.pos++
		i := bytes.IndexByte(s.data[s.pos:], '.')
		if i < 0 {
			return value{}, s.errorf("unterminated enumeration")
		}
		str := string(s.data[s.pos : s.pos+i])
		s.pos += i + 1
		return value{kind: kindEnum, str: str}, nil
	case c == '(':
		list, err := s.list()
		return value{kind: kindList, list: list}, err
	case c == '-' || c == '+' || isDigit(c):
		return s.number()
	case isKeywordByte(c):
		name := s.keyword()
		inner, err := s.list()
		return value{kind: kindTyped, str: strings.ToUpper(name), list: inner}, err
	case c == 0:
		return value{}, s.errorf("unexpected end of file")
	}
	return value{}, s.errorf("unexpected %q", c)
}

func (s *scanner) list() ([]value, error) {
	if err := s.expect('('); err != nil {
		return nil, err
	}
	var out []value
	s.skipSpace()
	if s.peek() == ')' {
		s.pos++
		return out, nil
	}
	for {
		v, err := s.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		s.skipSpace()
		switch s.peek() {
		case ',':
			s.pos++
		case ')':
			s.pos++
			return out, nil
		default:
			return nil, s.errorf("expected ',' or ')', found %q", s.peek())
		}
	}
}

// skipStatement advances past the next top-level ';', honouring strings
func (s *scanner) skipStatement() error {
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case '\'':
			if _, err := s.str(); err != nil {
				return err
			}
			continue
		case '\n':
			s.line++
		case ';':
			s.pos++
			return nil
		}
		s.pos++
	}
	return s.errorf("unterminated statement")
}

func (s *scanner) statement(doc *document) error {
	if err := s.expect('#'); err != nil {
		return err
	}
	id, err := s.integer()
	if err != nil {
		return err
	}
	if err := s.expect('='); err != nil {
		return err
	}
	s.skipSpace()
	if s.peek() == '(' {
		line := s.line
		if err := s.skipStatement(); err != nil {
			return err
		}
		doc.warnings = append(doc.warnings, fmt.Sprintf("line %d: complex instance #%d skipped", line, id))
		return nil
	}

	typ := s.keyword()
	if typ == "" {
		return s.errorf("missing entity type for #%d", id)
	}
	args, err := s.list()
	if err != nil {
		return err
	}
	if err := s.expect(';'); err != nil {
		return err
	}

	if _, dup := doc.entities[id]; dup {
		doc.warnings = append(doc.warnings, fmt.Sprintf("line %d: duplicate instance #%d", s.line, id))
	} else {
		doc.order = append(doc.order, id)
	}
	doc.entities[id] = &entity{id: id, typ: strings.ToUpper(typ), args: args}
	return nil
}

// parseSTEP reads the DATA section of an ISO 10303-21 file
func parseSTEP(data []byte) (*document, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	s := &scanner{data: data, line: 1}
	s.skipSpace()
	if !bytes.HasPrefix(data[s.pos:], []byte(stepMagic)) {
		return nil, errNotSTEP
	}

	idx := bytes.Index(data, []byte("DATA;"))
	if idx < 0 {
		return nil, errors.New("missing DATA section")
	}
	s.line += bytes.Count(data[s.pos:idx], []byte{'\n'})
	s.pos = idx + len("DATA;")

	doc := &document{entities: make(map[int]*entity)}
	for {
		s.skipSpace()
		if s.pos >= len(data) {
			return nil, s.errorf("unterminated DATA section")
		}
		if bytes.HasPrefix(data[s.pos:], []byte("ENDSEC")) {
			return doc, nil
		}
		if err := s.statement(doc); err != nil {
			return nil, err
		}
	}
}
