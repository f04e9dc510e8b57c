package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_lexer_nextToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []token
	}{
		{
			name: "just-eof",
			raw:  "",
			want: []token{
				{Type: eofToken, Value: ""},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "field-and-bare-word",
			raw:  "name: report",
			want: []token{
				{Type: identToken, Value: "name"},
				{Type: colonToken, Value: ":"},
				{Type: identToken, Value: "report"},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "quoted-literal-preserves-internal-space",
			raw:  `name: "final  report"`,
			want: []token{
				{Type: identToken, Value: "name"},
				{Type: colonToken, Value: ":"},
				{Type: quotedToken, Value: "final  report"},
				{Type: eofToken, Value: ""},
			},
		},
		{
			name: "comma-separated-clauses",
			raw:  "a: 1,b: 2",
			want: []token{
				{Type: identToken, Value: "a"},
				{Type: colonToken, Value: ":"},
				{Type: identToken, Value: "1"},
				{Type: commaToken, Value: ","},
				{Type: identToken, Value: "b"},
				{Type: colonToken, Value: ":"},
				{Type: identToken, Value: "2"},
				{Type: eofToken, Value: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := newLexer(tt.raw)
			for i, want := range tt.want {
				got, err := l.nextToken()
				require.NoError(t, err)
				require.Equalf(t, want.Type, got.Type, "token %d type", i)
				require.Equalf(t, want.Value, got.Value, "token %d value", i)
			}
		})
	}
}

func Test_lexer_nextToken_FailsOnUnterminatedQuote(t *testing.T) {
	t.Parallel()

	l := newLexer(`name: "unterminated`)

	_, err := l.nextToken()
	require.NoError(t, err)
	_, err = l.nextToken()
	require.NoError(t, err)
	_, err = l.nextToken()
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
