package parser

import (
	"fmt"

	"dtl/internal/dtlerr"
	"dtl/internal/lexer"
)

// Parser consumes a token stream produced by internal/lexer and builds a
// Program by recursive descent.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

// New creates a Parser over tokens (as returned by Lexer.ScanTokens).
func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the entire token stream into a Program. It stops at the
// first syntax error, per spec section 7 ("no recovery or multi-error
// reporting").
func Parse(tokens []lexer.Token) (*Program, error) {
	p := New(tokens)
	return p.ParseProgram()
}

func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for !p.check(lexer.TokenEOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

// --- token cursor helpers ---

func (p *Parser) peek() lexer.Token  { return p.tokens[p.pos] }
func (p *Parser) previous() lexer.Token {
	return p.tokens[p.pos-1]
}

func (p *Parser) check(t lexer.TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.check(lexer.TokenEOF) {
		p.pos++
	}
	return p.previous()
}

func (p *Parser) matchAny(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, context string) (lexer.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	tok := p.peek()
	return lexer.Token{}, &dtlerr.Error{
		Kind:    dtlerr.Syntax,
		Message: fmt.Sprintf("expected %s %s, got %s %q", t, context, tok.Type, tok.Lexeme),
		Span:    tok.Span,
	}
}

func span(start, end dtlerr.Span) dtlerr.Span {
	return dtlerr.Span{Start: start.Start, End: end.End}
}

// --- statements ---

func (p *Parser) parseStmt() (Stmt, error) {
	switch p.peek().Type {
	case lexer.TokenExport:
		return p.parseExportStmt()
	case lexer.TokenUpdate, lexer.TokenDelete, lexer.TokenInsert, lexer.TokenBegin:
		return p.parseUnsupportedStmt()
	case lexer.TokenName:
		return p.parseAssignStmt()
	default:
		tok := p.peek()
		return nil, &dtlerr.Error{
			Kind:    dtlerr.Syntax,
			Message: fmt.Sprintf("unexpected token %s %q at statement start", tok.Type, tok.Lexeme),
			Span:    tok.Span,
		}
	}
}

func (p *Parser) parseAssignStmt() (Stmt, error) {
	nameTok, err := p.expect(lexer.TokenName, "(table name)")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenEqual, "after table name"); err != nil {
		return nil, err
	}
	table, err := p.parseTableExpr()
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(lexer.TokenSemicolon, "to end statement")
	if err != nil {
		return nil, err
	}
	return &AssignStmt{
		Name:  nameTok.Lexeme,
		Table: table,
		Sp:    span(dtlerr.Span{Start: nameTok.Span.Start}, semi.Span),
	}, nil
}

func (p *Parser) parseExportStmt() (Stmt, error) {
	kw := p.advance() // EXPORT
	table, err := p.parseTableExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenTo, "after exported table expression"); err != nil {
		return nil, err
	}
	pathTok, err := p.expect(lexer.TokenString, "(output path)")
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(lexer.TokenSemicolon, "to end statement")
	if err != nil {
		return nil, err
	}
	return &ExportStmt{
		Table: table,
		Path:  StringLit{Value: pathTok.Lexeme, Sp: pathTok.Span},
		Sp:    span(kw.Span, semi.Span),
	}, nil
}

func (p *Parser) parseUnsupportedStmt() (Stmt, error) {
	kw := p.advance()
	for !p.check(lexer.TokenSemicolon) && !p.check(lexer.TokenEOF) {
		p.advance()
	}
	semi, err := p.expect(lexer.TokenSemicolon, "to end statement")
	if err != nil {
		return nil, err
	}
	return &UnsupportedStmt{Keyword: string(kw.Type), Sp: span(kw.Span, semi.Span)}, nil
}

// --- table expressions ---

func (p *Parser) parseTableExpr() (TableExpr, error) {
	switch p.peek().Type {
	case lexer.TokenImport:
		kw := p.advance()
		pathTok, err := p.expect(lexer.TokenString, "(import path)")
		if err != nil {
			return nil, err
		}
		return &ImportExpr{
			Path: StringLit{Value: pathTok.Lexeme, Sp: pathTok.Span},
			Sp:   span(kw.Span, pathTok.Span),
		}, nil
	case lexer.TokenSelect:
		return p.parseSelectExpr()
	case lexer.TokenName:
		tok := p.advance()
		return &TableRefExpr{Name: tok.Lexeme, Sp: tok.Span}, nil
	default:
		tok := p.peek()
		return nil, &dtlerr.Error{
			Kind:    dtlerr.Syntax,
			Message: fmt.Sprintf("expected a table expression, got %s %q", tok.Type, tok.Lexeme),
			Span:    tok.Span,
		}
	}
}

func (p *Parser) parseTableBinding() (TableBinding, error) {
	table, err := p.parseTableExpr()
	if err != nil {
		return TableBinding{}, err
	}
	alias := ""
	if p.matchAny(lexer.TokenAs) {
		nameTok, err := p.expect(lexer.TokenName, "(alias)")
		if err != nil {
			return TableBinding{}, err
		}
		alias = nameTok.Lexeme
	}
	return TableBinding{Table: table, Alias: alias}, nil
}

func (p *Parser) parseSelectExpr() (TableExpr, error) {
	kw := p.advance() // SELECT

	var columns []ColumnBinding
	for {
		col, err := p.parseColumnBinding()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
		if !p.matchAny(lexer.TokenComma) {
			break
		}
	}

	if _, err := p.expect(lexer.TokenFrom, "after column list"); err != nil {
		return nil, err
	}
	from, err := p.parseTableBinding()
	if err != nil {
		return nil, err
	}

	var joins []JoinClause
	for p.check(lexer.TokenJoin) {
		j, err := p.parseJoinClause()
		if err != nil {
			return nil, err
		}
		joins = append(joins, j)
	}

	var where Expr
	endSp := p.previous().Span
	if p.matchAny(lexer.TokenWhere) {
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
		endSp = where.Span()
	}

	var groupBy *GroupByClause
	if p.check(lexer.TokenGroup) {
		gbStart := p.advance()
		consecutive := p.matchAny(lexer.TokenConsecutive)
		if _, err := p.expect(lexer.TokenBy, "after GROUP"); err != nil {
			return nil, err
		}
		var exprs []Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
			if !p.matchAny(lexer.TokenComma) {
				break
			}
		}
		groupBy = &GroupByClause{Consecutive: consecutive, Exprs: exprs, Sp: span(gbStart.Span, exprs[len(exprs)-1].Span())}
		endSp = groupBy.Sp
	}

	return &SelectExpr{
		Columns: columns,
		From:    from,
		Joins:   joins,
		Where:   where,
		GroupBy: groupBy,
		Sp:      span(kw.Span, endSp),
	}, nil
}

func (p *Parser) parseColumnBinding() (ColumnBinding, error) {
	if p.check(lexer.TokenStar) {
		tok := p.advance()
		return ColumnBinding{Wildcard: true, Sp: tok.Span}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return ColumnBinding{}, err
	}
	alias := ""
	sp := e.Span()
	if p.matchAny(lexer.TokenAs) {
		nameTok, err := p.expect(lexer.TokenName, "(column alias)")
		if err != nil {
			return ColumnBinding{}, err
		}
		alias = nameTok.Lexeme
		sp = span(e.Span(), nameTok.Span)
	}
	return ColumnBinding{Expr: e, Alias: alias, Sp: sp}, nil
}

func (p *Parser) parseJoinClause() (JoinClause, error) {
	kw := p.advance() // JOIN
	binding, err := p.parseTableBinding()
	if err != nil {
		return JoinClause{}, err
	}
	jc := JoinClause{Table: binding, Sp: kw.Span}
	switch {
	case p.matchAny(lexer.TokenOn):
		on, err := p.parseExpr()
		if err != nil {
			return JoinClause{}, err
		}
		jc.On = on
		jc.Sp = span(kw.Span, on.Span())
	case p.matchAny(lexer.TokenUsing):
		if _, err := p.expect(lexer.TokenLParen, "after USING"); err != nil {
			return JoinClause{}, err
		}
		for {
			nameTok, err := p.expect(lexer.TokenName, "(column name)")
			if err != nil {
				return JoinClause{}, err
			}
			jc.Using = append(jc.Using, nameTok.Lexeme)
			if !p.matchAny(lexer.TokenComma) {
				break
			}
		}
		closeTok, err := p.expect(lexer.TokenRParen, "to close USING list")
		if err != nil {
			return JoinClause{}, err
		}
		jc.Sp = span(kw.Span, closeTok.Span)
	}
	return jc, nil
}

// --- expressions ---
//
// Precedence, loosest to tightest: comparison, additive, multiplicative,
// unary/primary. `=` doubles as the ON-clause equality operator (the
// statement-level assignment `=` is only ever parsed at parseAssignStmt,
// which never calls into parseExpr, so there is no ambiguity).

var comparisonOps = map[lexer.TokenType]string{
	lexer.TokenEqual:    "=",
	lexer.TokenNotEqual: "!=",
	lexer.TokenLT:       "<",
	lexer.TokenLE:       "<=",
	lexer.TokenGT:       ">",
	lexer.TokenGE:       ">=",
}

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if op, ok := comparisonOps[p.peek().Type]; ok {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, Left: left, Right: right, Sp: span(left.Span(), right.Span())}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.TokenPlus) || p.check(lexer.TokenMinus) {
		opTok := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: string(opTok.Type), Left: left, Right: right, Sp: span(left.Span(), right.Span())}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.TokenStar) || p.check(lexer.TokenSlash) {
		opTok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: string(opTok.Type), Left: left, Right: right, Sp: span(left.Span(), right.Span())}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenInt:
		p.advance()
		var v int64
		fmt.Sscanf(tok.Lexeme, "%d", &v)
		return &IntLit{Value: v, Sp: tok.Span}, nil
	case lexer.TokenString:
		p.advance()
		return &StringLit{Value: tok.Lexeme, Sp: tok.Span}, nil
	case lexer.TokenLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen, "to close parenthesized expression"); err != nil {
			return nil, err
		}
		return inner, nil
	case lexer.TokenName:
		p.advance()
		if p.check(lexer.TokenLParen) {
			return p.parseCallArgs(tok)
		}
		if p.matchAny(lexer.TokenDot) {
			nameTok, err := p.expect(lexer.TokenName, "(column name after '.')")
			if err != nil {
				return nil, err
			}
			return &ColumnRefExpr{Table: tok.Lexeme, Name: nameTok.Lexeme, Sp: span(tok.Span, nameTok.Span)}, nil
		}
		return &ColumnRefExpr{Name: tok.Lexeme, Sp: tok.Span}, nil
	default:
		return nil, &dtlerr.Error{
			Kind:    dtlerr.Syntax,
			Message: fmt.Sprintf("expected an expression, got %s %q", tok.Type, tok.Lexeme),
			Span:    tok.Span,
		}
	}
}

func (p *Parser) parseCallArgs(nameTok lexer.Token) (Expr, error) {
	p.advance() // (
	var args []Expr
	if !p.check(lexer.TokenRParen) {
		for {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if !p.matchAny(lexer.TokenComma) {
				break
			}
		}
	}
	closeTok, err := p.expect(lexer.TokenRParen, "to close call arguments")
	if err != nil {
		return nil, err
	}
	return &CallExpr{Name: nameTok.Lexeme, Args: args, Sp: span(nameTok.Span, closeTok.Span)}, nil
}
