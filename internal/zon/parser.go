// Package zon parses the ZON struct-literal dialect used by package
// manifests into a typed tree and renders it as strict JSON.
//
// Only the subset needed for dependency and version extraction is
// supported: struct literals, positional literals, strings (including
// multiline), numbers, bools, null, and enum literals.
package zon

import "fmt"

// Kind discriminates Value variants.
type Kind int

const (
	KindObject Kind = iota
	KindArray
	KindString
	KindNumber
	KindBool
	KindEnum
	KindNull
)

// Field is one named field of an object value, in declaration order.
type Field struct {
	Name  string
	Value Value
}

// Value is a node of the parsed tree.
type Value struct {
	Kind   Kind
	Str    string  // KindString: decoded text; KindEnum: name; KindNumber: raw text
	Bool   bool    // KindBool
	Fields []Field // KindObject
	Elems  []Value // KindArray
}

type parser struct {
	lex  *lexer
	cur  token
	peek token
}

// Parse parses a complete ZON document and returns its value tree.
func Parse(src string) (Value, error) {
	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return Value{}, err
	}
	if err := p.advance(); err != nil {
		return Value{}, err
	}
	v, err := p.parseValue()
	if err != nil {
		return Value{}, err
	}
	if p.cur.kind != tokEOF {
		return Value{}, p.errorf("trailing input after document")
	}
	return v, nil
}

func (p *parser) advance() error {
	p.cur = p.peek
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("zon: offset %d: %s", p.cur.off, fmt.Sprintf(format, args...))
}

func (p *parser) parseValue() (Value, error) {
	switch p.cur.kind {
	case tokDotBrace:
		if err := p.advance(); err != nil {
			return Value{}, err
		}
		return p.parseLiteral()
	case tokString:
		v := Value{Kind: KindString, Str: p.cur.text}
		return v, p.advance()
	case tokNumber:
		v := Value{Kind: KindNumber, Str: p.cur.text}
		return v, p.advance()
	case tokDotName:
		// A dotted name in value position is an enum literal.
		v := Value{Kind: KindEnum, Str: p.cur.text}
		return v, p.advance()
	case tokIdent:
		switch p.cur.text {
		case "true", "false":
			v := Value{Kind: KindBool, Bool: p.cur.text == "true"}
			return v, p.advance()
		case "null":
			return Value{Kind: KindNull}, p.advance()
		}
		return Value{}, p.errorf("unsupported identifier %q", p.cur.text)
	}
	return Value{}, p.errorf("unexpected token")
}

// parseLiteral parses the body of a ".{...}" literal, the opening token
// already consumed. A literal whose first entry is ".name =" is an
// object; otherwise it is a positional list. An empty literal is an
// empty object.
func (p *parser) parseLiteral() (Value, error) {
	if p.cur.kind == tokRBrace {
		return Value{Kind: KindObject}, p.advance()
	}
	if p.cur.kind == tokDotName && p.peek.kind == tokEqual {
		return p.parseFields()
	}
	return p.parseElems()
}

func (p *parser) parseFields() (Value, error) {
	v := Value{Kind: KindObject}
	for {
		if p.cur.kind != tokDotName {
			return Value{}, p.errorf("expected field name")
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return Value{}, err
		}
		if p.cur.kind != tokEqual {
			return Value{}, p.errorf("expected '=' after field name %q", name)
		}
		if err := p.advance(); err != nil {
			return Value{}, err
		}
		fv, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		v.Fields = append(v.Fields, Field{Name: name, Value: fv})

		done, err := p.endOfEntry()
		if err != nil {
			return Value{}, err
		}
		if done {
			return v, nil
		}
	}
}

func (p *parser) parseElems() (Value, error) {
	v := Value{Kind: KindArray, Elems: []Value{}}
	for {
		ev, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		v.Elems = append(v.Elems, ev)

		done, err := p.endOfEntry()
		if err != nil {
			return Value{}, err
		}
		if done {
			return v, nil
		}
	}
}

// endOfEntry consumes the separator after an entry. It reports true when
// the enclosing literal is closed, handling trailing commas.
func (p *parser) endOfEntry() (bool, error) {
	switch p.cur.kind {
	case tokComma:
		if err := p.advance(); err != nil {
			return false, err
		}
		if p.cur.kind == tokRBrace {
			return true, p.advance()
		}
		return false, nil
	case tokRBrace:
		return true, p.advance()
	}
	return false, p.errorf("expected ',' or '}'")
}
