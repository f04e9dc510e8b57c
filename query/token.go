package query

// tokenType enumerates the lexical tokens of the query grammar.
type tokenType int

const (
	eofToken    tokenType = iota
	identToken            // bare word: field name, keyword, or unquoted literal
	quotedToken           // "..." literal, whitespace preserved verbatim
	colonToken            // :
	commaToken            // ,
)

func (t tokenType) String() string {
	switch t {
	case eofToken:
		return "EOF"
	case identToken:
		return "IDENT"
	case quotedToken:
		return "QUOTED"
	case colonToken:
		return "COLON"
	case commaToken:
		return "COMMA"
	default:
		return "UNKNOWN"
	}
}

// token is a single lexed unit: its type, literal text, and the byte offset
// in the source query where it started (used to locate parse errors).
type token struct {
	Type   tokenType
	Value  string
	Offset int
}
