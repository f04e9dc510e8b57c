package query

import (
	"strconv"
	"strings"

	"github.com/pianohacker/qualia/field"
)

// Parse compiles query text into a Query. An empty or all-whitespace string
// parses to a Query with no clauses, matching every object.
func Parse(raw string) (*Query, error) {
	p := &parser{lex: newLexer(raw), raw: raw}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.tok.Type == eofToken {
		return &Query{Raw: raw}, nil
	}

	var clauses []Clause
	for {
		c, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)

		switch p.tok.Type {
		case commaToken:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case eofToken:
			return &Query{Clauses: clauses, Raw: raw}, nil
		default:
			return nil, parseErrorf(p.tok.Offset, "expected ',' or end of query, got %q", p.tok.Value)
		}
	}
}

type parser struct {
	lex *lexer
	tok token
	raw string
}

func (p *parser) advance() error {
	tok, err := p.lex.nextToken()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseClause() (Clause, error) {
	if p.tok.Type != identToken {
		return Clause{}, parseErrorf(p.tok.Offset, "expected field name, got %q", p.tok.Value)
	}
	fieldName := p.tok.Value
	if fieldName == "" {
		return Clause{}, parseErrorf(p.tok.Offset, "field name must not be empty")
	}

	if err := p.advance(); err != nil {
		return Clause{}, err
	}
	if p.tok.Type != colonToken {
		return Clause{}, parseErrorf(p.tok.Offset, "expected ':' after field name %q", fieldName)
	}
	if err := p.advance(); err != nil {
		return Clause{}, err
	}

	pred, err := p.parsePredicate(fieldName)
	if err != nil {
		return Clause{}, err
	}

	return Clause{Field: fieldName, Predicate: pred}, nil
}

func isKeyword(tok token, word string) bool {
	return tok.Type == identToken && strings.EqualFold(tok.Value, word)
}

func (p *parser) parsePredicate(fieldName string) (Predicate, error) {
	switch {
	case isKeyword(p.tok, "exactly"):
		if err := p.advance(); err != nil {
			return Predicate{}, err
		}
		return p.parseExact(fieldName)

	case isKeyword(p.tok, "between"):
		if err := p.advance(); err != nil {
			return Predicate{}, err
		}
		return p.parseBetween(fieldName)

	default:
		return p.parseLiteral(fieldName)
	}
}

// parseExact handles `field: exactly <literal>`: always a whitespace-exact
// phrase match, unless the literal is an unquoted valid calendar date, in
// which case the grammar's explicit date-equals form applies.
func (p *parser) parseExact(fieldName string) (Predicate, error) {
	tok := p.tok
	if tok.Type != identToken && tok.Type != quotedToken {
		return Predicate{}, parseErrorf(tok.Offset, "expected a value after %q", "exactly")
	}

	if err := p.advance(); err != nil {
		return Predicate{}, err
	}

	if tok.Type == identToken {
		if d, err := field.ParseDay(tok.Value); err == nil {
			return Predicate{Kind: DateEquals, Date: d, RawText: tok.Value}, nil
		}
	}

	return Predicate{Kind: PhraseExact, Phrase: tok.Value}, nil
}

func (p *parser) parseBetween(fieldName string) (Predicate, error) {
	if isKeyword(p.tok, "dates") {
		if err := p.advance(); err != nil {
			return Predicate{}, err
		}
		return p.parseDateRange()
	}
	return p.parseIntegerRange()
}

func (p *parser) parseIntegerRange() (Predicate, error) {
	min, err := p.parseIntegerLiteral()
	if err != nil {
		return Predicate{}, err
	}

	if !isKeyword(p.tok, "and") {
		return Predicate{}, parseErrorf(p.tok.Offset, "expected %q in range, got %q", "and", p.tok.Value)
	}
	if err := p.advance(); err != nil {
		return Predicate{}, err
	}

	max, err := p.parseIntegerLiteral()
	if err != nil {
		return Predicate{}, err
	}

	return Predicate{Kind: IntegerRange, IntegerMin: min, IntegerMax: max}, nil
}

func (p *parser) parseDateRange() (Predicate, error) {
	min, err := p.parseDateLiteral()
	if err != nil {
		return Predicate{}, err
	}

	if !isKeyword(p.tok, "and") {
		return Predicate{}, parseErrorf(p.tok.Offset, "expected %q in date range, got %q", "and", p.tok.Value)
	}
	if err := p.advance(); err != nil {
		return Predicate{}, err
	}

	max, err := p.parseDateLiteral()
	if err != nil {
		return Predicate{}, err
	}

	return Predicate{Kind: DateRange, DateMin: min, DateMax: max}, nil
}

func (p *parser) parseIntegerLiteral() (int64, error) {
	if p.tok.Type != identToken {
		return 0, parseErrorf(p.tok.Offset, "expected an integer, got %q", p.tok.Value)
	}
	n, err := strconv.ParseInt(p.tok.Value, 10, 64)
	if err != nil {
		return 0, parseErrorf(p.tok.Offset, "expected an integer, got %q", p.tok.Value)
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *parser) parseDateLiteral() (field.Day, error) {
	if p.tok.Type != identToken {
		return field.Day{}, parseErrorf(p.tok.Offset, "expected a date, got %q", p.tok.Value)
	}
	d, err := field.ParseDay(p.tok.Value)
	if err != nil {
		return field.Day{}, parseErrorf(p.tok.Offset, "expected a date (YYYY-MM-DD), got %q", p.tok.Value)
	}
	if err := p.advance(); err != nil {
		return field.Day{}, err
	}
	return d, nil
}

// parseLiteral handles the bare forms: `field: <word-or-quoted>`. A quoted
// literal is always phrase-contains. An unquoted literal is classified by
// shape: integer-looking text produces IntegerEquals, date-looking text
// produces DateEquals, anything else produces PhraseContains — mirroring
// field.Classify. The object_id field requires an integer literal.
func (p *parser) parseLiteral(fieldName string) (Predicate, error) {
	tok := p.tok
	if tok.Type != identToken && tok.Type != quotedToken {
		return Predicate{}, parseErrorf(tok.Offset, "expected a value for field %q, got %q", fieldName, tok.Value)
	}
	if err := p.advance(); err != nil {
		return Predicate{}, err
	}

	if fieldName == "object_id" {
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if tok.Type != identToken || err != nil {
			return Predicate{}, parseErrorf(tok.Offset, "object_id requires an integer, got %q", tok.Value)
		}
		return Predicate{Kind: ObjectIDEquals, Integer: n}, nil
	}

	if tok.Type == quotedToken {
		return Predicate{Kind: PhraseContains, Tokens: field.Tokenize(tok.Value), RawText: tok.Value}, nil
	}

	if n, err := strconv.ParseInt(tok.Value, 10, 64); err == nil {
		return Predicate{Kind: IntegerEquals, Integer: n, RawText: tok.Value}, nil
	}

	if d, err := field.ParseDay(tok.Value); err == nil {
		return Predicate{Kind: DateEquals, Date: d, RawText: tok.Value}, nil
	}

	return Predicate{Kind: PhraseContains, Tokens: field.Tokenize(tok.Value), RawText: tok.Value}, nil
}
