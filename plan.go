package qualia

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pianohacker/qualia/field"
	"github.com/pianohacker/qualia/query"
)

// compiledQuery is a query lowered to one SQL statement over the store's
// tables, intersecting a CTE per clause the way query.Parse's Clauses
// conjoin. The zero-clause query matches every object.
type compiledQuery struct {
	sql  string
	args []any
}

// selectivityRank orders clauses before compilation: point lookups run
// first, then ranges, then token intersections, per §4.3's "estimated
// selectivity" ordering. This affects only which CTE SQLite evaluates
// first, never the result.
func selectivityRank(k query.PredicateKind) int {
	switch k {
	case query.ObjectIDEquals:
		return 0
	case query.IntegerEquals, query.DateEquals, query.PhraseExact:
		return 1
	case query.IntegerRange, query.DateRange:
		return 2
	case query.PhraseContains:
		return 3
	default:
		return 4
	}
}

func compileQuery(q *query.Query) (compiledQuery, error) {
	if len(q.Clauses) == 0 {
		return compiledQuery{sql: `SELECT object_id FROM objects`}, nil
	}

	clauses := make([]query.Clause, len(q.Clauses))
	copy(clauses, q.Clauses)
	sort.SliceStable(clauses, func(i, j int) bool {
		return selectivityRank(clauses[i].Predicate.Kind) < selectivityRank(clauses[j].Predicate.Kind)
	})

	var b strings.Builder
	var args []any

	b.WriteString("WITH ")
	for i, c := range clauses {
		if i > 0 {
			b.WriteString(", ")
		}

		clauseSQL, clauseArgs, err := compileClause(c)
		if err != nil {
			return compiledQuery{}, err
		}

		fmt.Fprintf(&b, "clause_%d AS (%s)", i, clauseSQL)
		args = append(args, clauseArgs...)
	}

	b.WriteString(" SELECT object_id FROM clause_0")
	for i := 1; i < len(clauses); i++ {
		fmt.Fprintf(&b, " INTERSECT SELECT object_id FROM clause_%d", i)
	}

	return compiledQuery{sql: b.String(), args: args}, nil
}

// compileClause lowers one clause to a SELECT over object_id, per the
// plan mapping in §4.3: phrase-contains intersects token membership across
// every query token; phrase-exact and the equals/range forms are point or
// range lookups on the appropriate index columns. IntegerEquals and
// DateEquals additionally union in a token match on the clause's raw
// literal text, so a numeric- or date-shaped query still matches a field
// whose actual stored values are phrases (the tie-break rule of §4.2).
func compileClause(c query.Clause) (string, []any, error) {
	p := c.Predicate
	name := c.Field

	switch p.Kind {
	case query.ObjectIDEquals:
		return `SELECT object_id FROM objects WHERE object_id = ?`,
			[]any{p.Integer}, nil

	case query.PhraseExact:
		return `SELECT object_id FROM properties WHERE name = ? AND value_tag = ? AND value_text = ?`,
			[]any{name, string(field.TagPhrase), p.Phrase}, nil

	case query.PhraseContains:
		if len(p.Tokens) == 0 {
			return `SELECT object_id FROM objects WHERE 1 = 0`, nil, nil
		}

		var b strings.Builder
		var args []any
		for i, tok := range p.Tokens {
			if i > 0 {
				b.WriteString(" INTERSECT ")
			}
			b.WriteString(`SELECT object_id FROM tokens WHERE name = ? AND token = ?`)
			args = append(args, name, tok)
		}
		return b.String(), args, nil

	case query.IntegerEquals:
		return `SELECT object_id FROM properties WHERE name = ? AND value_tag = ? AND numeric_key = ?
			UNION
			SELECT object_id FROM tokens WHERE name = ? AND token = ?`,
			[]any{name, string(field.TagInteger), p.Integer, name, strings.ToLower(p.RawText)}, nil

	case query.IntegerRange:
		return `SELECT object_id FROM properties WHERE name = ? AND value_tag = ? AND numeric_key BETWEEN ? AND ?`,
			[]any{name, string(field.TagInteger), p.IntegerMin, p.IntegerMax}, nil

	case query.DateEquals:
		return `SELECT object_id FROM properties WHERE name = ? AND value_tag = ? AND date_key = ?
			UNION
			SELECT object_id FROM tokens WHERE name = ? AND token = ?`,
			[]any{name, string(field.TagDate), dateKeyOf(p.Date), name, strings.ToLower(p.RawText)}, nil

	case query.DateRange:
		return `SELECT object_id FROM properties WHERE name = ? AND value_tag = ? AND date_key BETWEEN ? AND ?`,
			[]any{name, string(field.TagDate), dateKeyOf(p.DateMin), dateKeyOf(p.DateMax)}, nil

	default:
		return "", nil, fmt.Errorf("compile clause: unknown predicate kind %v", p.Kind)
	}
}

func dateKeyOf(d field.Day) int64 {
	return int64(d.Year)*10000 + int64(d.Month)*100 + int64(d.Day)
}
