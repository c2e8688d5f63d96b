package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtl/internal/dtlerr"
)

func scan(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := New(src, "test.dtl").ScanTokens()
	require.NoError(t, err)
	return toks
}

func types(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestScanTokensEndsWithEOF(t *testing.T) {
	toks := scan(t, "")
	require.Len(t, toks, 1)
	assert.Equal(t, TokenEOF, toks[0].Type)
}

func TestKeywordsAreCaseSensitive(t *testing.T) {
	toks := scan(t, "IMPORT import Import")
	assert.Equal(t, []TokenType{TokenImport, TokenName, TokenType_, TokenEOF}, types(toks))
}

func TestNameVsTypeIdentifierSplitByLeadingCase(t *testing.T) {
	toks := scan(t, "orders Orders")
	require.Len(t, toks, 3)
	assert.Equal(t, TokenName, toks[0].Type)
	assert.Equal(t, TokenType_, toks[1].Type)
}

func TestStringLiteralUnescapesDoubledQuote(t *testing.T) {
	toks := scan(t, `'it''s fine'`)
	require.Len(t, toks, 2)
	assert.Equal(t, TokenString, toks[0].Type)
	assert.Equal(t, "it's fine", toks[0].Lexeme)
}

func TestUnterminatedStringIsLexicalError(t *testing.T) {
	_, err := New("'no closing quote", "f.dtl").ScanTokens()
	require.Error(t, err)
	derr, ok := err.(*dtlerr.Error)
	require.True(t, ok)
	assert.Equal(t, dtlerr.Lexical, derr.Kind)
}

func TestUnterminatedBlockCommentIsLexicalError(t *testing.T) {
	_, err := New("/* never closes", "f.dtl").ScanTokens()
	require.Error(t, err)
	derr, ok := err.(*dtlerr.Error)
	require.True(t, ok)
	assert.Equal(t, dtlerr.Lexical, derr.Kind)
}

func TestLineCommentRunsToNewline(t *testing.T) {
	toks := scan(t, "a // comment \n b")
	assert.Equal(t, []TokenType{TokenName, TokenName, TokenEOF}, types(toks))
}

func TestComparisonOperatorsAreMaximalMunch(t *testing.T) {
	toks := scan(t, "< <= > >= != =")
	assert.Equal(t, []TokenType{TokenLT, TokenLE, TokenGT, TokenGE, TokenNotEqual, TokenEqual, TokenEOF}, types(toks))
}

func TestUnexpectedCharacterIsLexicalError(t *testing.T) {
	_, err := New("a & b", "f.dtl").ScanTokens()
	require.Error(t, err)
	derr, ok := err.(*dtlerr.Error)
	require.True(t, ok)
	assert.Equal(t, dtlerr.Lexical, derr.Kind)
}

func TestIntegerLiteral(t *testing.T) {
	toks := scan(t, "12345")
	require.Len(t, toks, 2)
	assert.Equal(t, TokenInt, toks[0].Type)
	assert.Equal(t, "12345", toks[0].Lexeme)
}

func TestSpanTracksLineAndColumn(t *testing.T) {
	toks := scan(t, "a\nb")
	require.Len(t, toks, 3)
	assert.Equal(t, 1, toks[0].Span.Start.Line)
	assert.Equal(t, 2, toks[1].Span.Start.Line)
	assert.Equal(t, 1, toks[1].Span.Start.Column)
}
