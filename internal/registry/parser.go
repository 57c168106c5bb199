package registry

import "fmt"

// Registry documents are a constrained JSON subset: objects whose
// values are double-quoted strings, bare scalars (numbers, booleans),
// or nested objects of the same shape. No arrays, no escape sequences.
// This is a format contract for trusted-authoring documents, not a
// general JSON parser; documents outside the contract are rejected.

// node is a parsed document value: a string scalar or an object.
type node struct {
	scalar string
	object map[string]node
	isObj  bool
}

// field returns the scalar value of key, or "" when the key is absent
// or holds an object.
func (n node) field(key string) string {
	v, ok := n.object[key]
	if !ok || v.isObj {
		return ""
	}
	return v.scalar
}

type parser struct {
	src []byte
	pos int
}

// parseDocument parses a full registry document.
func parseDocument(src []byte) (node, error) {
	p := &parser{src: src}
	p.skipSpace()
	n, err := p.parseObject()
	if err != nil {
		return node{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return node{}, p.errf("unexpected trailing data")
	}
	return n, nil
}

func (p *parser) parseObject() (node, error) {
	if !p.consume('{') {
		return node{}, p.errf("expected '{'")
	}
	obj := make(map[string]node)
	p.skipSpace()
	if p.consume('}') {
		return node{object: obj, isObj: true}, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseQuoted()
		if err != nil {
			return node{}, err
		}
		p.skipSpace()
		if !p.consume(':') {
			return node{}, p.errf("expected ':' after key %q", key)
		}
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return node{}, err
		}
		obj[key] = val
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume('}') {
			return node{object: obj, isObj: true}, nil
		}
		return node{}, p.errf("expected ',' or '}' after value for %q", key)
	}
}

func (p *parser) parseValue() (node, error) {
	switch p.peek() {
	case '{':
		return p.parseObject()
	case '[':
		return node{}, p.errf("arrays are not part of the registry format")
	case '"':
		s, err := p.parseQuoted()
		if err != nil {
			return node{}, err
		}
		return node{scalar: s}, nil
	}
	// Bare scalar: number, true/false, null. Kept as its source text.
	start := p.pos
	for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return node{}, p.errf("expected a value")
	}
	return node{scalar: string(p.src[start:p.pos])}, nil
}

func (p *parser) parseQuoted() (string, error) {
	if !p.consume('"') {
		return "", p.errf("expected a quoted string")
	}
	start := p.pos
	for p.pos < len(p.src) {
		if p.src[p.pos] == '"' {
			s := string(p.src[start:p.pos])
			p.pos++
			return s, nil
		}
		p.pos++
	}
	return "", p.errf("unterminated string")
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) errf(format string, args ...interface{}) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func isDelimiter(c byte) bool {
	switch c {
	case ',', '}', ']', ':', ' ', '\t', '\r', '\n':
		return true
	}
	return false
}
