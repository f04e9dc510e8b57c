package query

import "github.com/pianohacker/qualia/field"

// PredicateKind tags the variant carried by a Predicate.
type PredicateKind int

// PredicateKind values, one per row of the query grammar table.
const (
	PhraseContains PredicateKind = iota
	PhraseExact
	IntegerEquals
	IntegerRange
	DateEquals
	DateRange
	ObjectIDEquals
)

func (k PredicateKind) String() string {
	switch k {
	case PhraseContains:
		return "phrase-contains"
	case PhraseExact:
		return "phrase-exact"
	case IntegerEquals:
		return "integer-equals"
	case IntegerRange:
		return "integer-range"
	case DateEquals:
		return "date-equals"
	case DateRange:
		return "date-range"
	case ObjectIDEquals:
		return "object-id-equals"
	default:
		return "unknown"
	}
}

// Predicate is one clause's test. Only the fields matching Kind are
// meaningful. RawText carries the clause's unclassified literal for
// IntegerEquals and DateEquals: when the executor finds the target field
// actually holds Phrase values, it falls back to a token match on RawText
// instead of failing with a type mismatch.
type Predicate struct {
	Kind PredicateKind

	RawText string

	Tokens []string
	Phrase string

	Integer    int64
	IntegerMin int64
	IntegerMax int64

	Date    field.Day
	DateMin field.Day
	DateMax field.Day
}

// Clause is a single field-predicate pair.
type Clause struct {
	Field     string
	Predicate Predicate
}

// Query is the parsed form of a query string: a conjunction of clauses.
// The zero-clause Query matches every object in the store.
type Query struct {
	Clauses []Clause
	Raw     string
}
