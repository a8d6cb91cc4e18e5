package sqlfront

import (
	"strconv"
	"strings"

	"reldb/internal/errs"
)

// Parser is a recursive-descent parser over Lexer's token stream, one
// statement per call to ParseStatement.
//
// Grounded on ShubhamNegi4-DaemonDB query_parser/parser/parser.go's
// curToken/peekToken two-token lookahead and per-statement parseX
// methods (parseSelect/parseInsert/parseUpdate/parseDrop), extended to
// cover the DDL, DELETE, WHERE-predicate, ORDER BY/GROUP BY/LIMIT, and
// transaction-control statements of spec.md §6 the teacher never parsed.
// Unlike the teacher's parser, which panics on an unexpected token and
// relies on its caller to recover, every parse error here is returned as
// a typed errs.KindInternal value so the session loop can report it
// without crashing the process.
type Parser struct {
	l         *Lexer
	curToken  Token
	peekToken Token
	err       error
}

func NewParser(l *Lexer) *Parser {
	p := &Parser{l: l}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = errs.Newf(errs.KindInternal, format, args...)
	}
}

func (p *Parser) expect(kind TokenKind) {
	if p.curToken.Kind != kind {
		p.fail("unexpected token %q", p.curToken.Value)
		return
	}
	p.advance()
}

// ParseStatement parses one statement from the start of sql and returns
// it, or an error if that statement doesn't match any production of
// spec.md §6's grammar. Tokens after the end of the statement are not
// examined.
func ParseStatement(sql string) (Statement, error) {
	p := NewParser(NewLexer(sql))
	stmt := p.parseStatement()
	if p.err != nil {
		return nil, p.err
	}
	return stmt, nil
}

func (p *Parser) parseStatement() Statement {
	switch p.curToken.Kind {
	case SELECT:
		return p.parseSelect()
	case INSERT:
		return p.parseInsert()
	case UPDATE:
		return p.parseUpdate()
	case DELETE:
		return p.parseDelete()
	case CREATE:
		return p.parseCreate()
	case DROP:
		return p.parseDrop()
	case SHOW:
		return p.parseShow()
	case DESC:
		p.advance()
		table := p.curToken.Value
		p.expect(IDENT)
		return &DescStmt{Table: table}
	case BEGIN:
		p.advance()
		return &BeginStmt{}
	case COMMIT:
		p.advance()
		return &CommitStmt{}
	case ABORT:
		p.advance()
		return &AbortStmt{}
	case ROLLBACK:
		p.advance()
		return &RollbackStmt{}
	case EXIT:
		p.advance()
		return &ExitStmt{}
	case HELP:
		p.advance()
		return &HelpStmt{}
	default:
		p.fail("unexpected token %q at start of statement", p.curToken.Value)
		return nil
	}
}

func (p *Parser) parseShow() Statement {
	p.advance() // SHOW
	switch p.curToken.Kind {
	case TABLES:
		p.advance()
		return &ShowTablesStmt{}
	case INDEX:
		p.advance()
		p.expect(FROM)
		table := p.curToken.Value
		p.expect(IDENT)
		return &ShowIndexStmt{Table: table}
	default:
		p.fail("expected TABLES or INDEX after SHOW, got %q", p.curToken.Value)
		return nil
	}
}

func (p *Parser) parseCreate() Statement {
	p.advance() // CREATE
	switch p.curToken.Kind {
	case TABLE:
		return p.parseCreateTable()
	case INDEX:
		p.advance()
		table := p.curToken.Value
		p.expect(IDENT)
		cols := p.parseColumnNameList()
		return &CreateIndexStmt{Table: table, Columns: cols}
	default:
		p.fail("expected TABLE or INDEX after CREATE, got %q", p.curToken.Value)
		return nil
	}
}

func (p *Parser) parseCreateTable() *CreateTableStmt {
	p.advance() // TABLE
	table := p.curToken.Value
	p.expect(IDENT)
	p.expect(LPAREN)

	var cols []ColumnDef
	for p.curToken.Kind != RPAREN && p.err == nil {
		name := p.curToken.Value
		p.expect(IDENT)
		typeName := strings.ToUpper(p.curToken.Value)
		p.expect(IDENT)
		length := 0
		if p.curToken.Kind == LPAREN {
			p.advance()
			n, err := strconv.Atoi(p.curToken.Value)
			if err != nil {
				p.fail("expected integer length, got %q", p.curToken.Value)
			}
			length = n
			p.expect(NUMBER)
			p.expect(RPAREN)
		}
		cols = append(cols, ColumnDef{Name: name, TypeName: typeName, Length: length})
		if p.curToken.Kind == COMMA {
			p.advance()
		}
	}
	p.expect(RPAREN)
	return &CreateTableStmt{Table: table, Columns: cols}
}

func (p *Parser) parseColumnNameList() []string {
	p.expect(LPAREN)
	var cols []string
	for p.curToken.Kind != RPAREN && p.err == nil {
		cols = append(cols, p.curToken.Value)
		p.expect(IDENT)
		if p.curToken.Kind == COMMA {
			p.advance()
		}
	}
	p.expect(RPAREN)
	return cols
}

func (p *Parser) parseDrop() Statement {
	p.advance() // DROP
	switch p.curToken.Kind {
	case TABLE:
		p.advance()
		table := p.curToken.Value
		p.expect(IDENT)
		return &DropTableStmt{Table: table}
	case INDEX:
		p.advance()
		table := p.curToken.Value
		p.expect(IDENT)
		cols := p.parseColumnNameList()
		return &DropIndexStmt{Table: table, Columns: cols}
	default:
		p.fail("expected TABLE or INDEX after DROP, got %q", p.curToken.Value)
		return nil
	}
}

func (p *Parser) parseInsert() *InsertStmt {
	p.advance() // INSERT
	p.expect(INTO)
	table := p.curToken.Value
	p.expect(IDENT)
	p.expect(VALUES)
	p.expect(LPAREN)

	var values []Expr
	for p.curToken.Kind != RPAREN && p.err == nil {
		values = append(values, p.parsePrimary())
		if p.curToken.Kind == COMMA {
			p.advance()
		}
	}
	p.expect(RPAREN)
	return &InsertStmt{Table: table, Values: values}
}

func (p *Parser) parseDelete() *DeleteStmt {
	p.advance() // DELETE
	p.expect(FROM)
	table := p.curToken.Value
	p.expect(IDENT)

	var where Expr
	if p.curToken.Kind == WHERE {
		p.advance()
		where = p.parseExpr()
	}
	return &DeleteStmt{Table: table, Where: where}
}

func (p *Parser) parseUpdate() *UpdateStmt {
	p.advance() // UPDATE
	table := p.curToken.Value
	p.expect(IDENT)
	p.expect(SET)

	var assigns []Assignment
	for {
		col := p.curToken.Value
		p.expect(IDENT)
		p.expect(EQ)
		val := p.parsePrimary()
		assigns = append(assigns, Assignment{Column: col, Value: val})
		if p.curToken.Kind == COMMA {
			p.advance()
			continue
		}
		break
	}

	var where Expr
	if p.curToken.Kind == WHERE {
		p.advance()
		where = p.parseExpr()
	}
	return &UpdateStmt{Table: table, Assignments: assigns, Where: where}
}

func (p *Parser) parseSelect() *SelectStmt {
	p.advance() // SELECT
	stmt := &SelectStmt{}

	if p.curToken.Kind == ASTERISK {
		stmt.Items = append(stmt.Items, SelectItem{Star: true})
		p.advance()
	} else {
		for {
			stmt.Items = append(stmt.Items, p.parseSelectItem())
			if p.curToken.Kind == COMMA {
				p.advance()
				continue
			}
			break
		}
	}

	p.expect(FROM)
	for {
		stmt.Tables = append(stmt.Tables, p.curToken.Value)
		p.expect(IDENT)
		if p.curToken.Kind == COMMA {
			p.advance()
			continue
		}
		break
	}

	if p.curToken.Kind == WHERE {
		p.advance()
		stmt.Where = p.parseExpr()
	}

	if p.curToken.Kind == GROUP {
		p.advance()
		p.expect(BY)
		for {
			stmt.GroupBy = append(stmt.GroupBy, p.parseColumnRef())
			if p.curToken.Kind == COMMA {
				p.advance()
				continue
			}
			break
		}
	}

	if p.curToken.Kind == ORDER {
		p.advance()
		p.expect(BY)
		for {
			col := p.parseColumnRef()
			desc := false
			if p.curToken.Kind == ASC {
				p.advance()
			} else if p.curToken.Kind == DESC {
				desc = true
				p.advance()
			}
			stmt.Order = append(stmt.Order, OrderItem{Column: col, Desc: desc})
			if p.curToken.Kind == COMMA {
				p.advance()
				continue
			}
			break
		}
	}

	if p.curToken.Kind == LIMIT {
		p.advance()
		n, err := strconv.Atoi(p.curToken.Value)
		if err != nil {
			p.fail("expected integer after LIMIT, got %q", p.curToken.Value)
		}
		stmt.Limit = n
		stmt.HasLimit = true
		p.expect(NUMBER)
	}

	return stmt
}

func (p *Parser) parseSelectItem() SelectItem {
	switch p.curToken.Kind {
	case COUNT, MAX, MIN, SUM:
		agg := p.curToken.Value
		p.advance()
		p.expect(LPAREN)
		item := SelectItem{Agg: strings.ToUpper(agg)}
		if p.curToken.Kind == ASTERISK {
			item.AggStar = true
			p.advance()
		} else {
			item.Column = p.parseColumnRef()
		}
		p.expect(RPAREN)
		if p.curToken.Kind == AS {
			p.advance()
			item.Alias = p.curToken.Value
			p.expect(IDENT)
		}
		return item
	default:
		col := p.parseColumnRef()
		item := SelectItem{Column: col}
		if p.curToken.Kind == AS {
			p.advance()
			item.Alias = p.curToken.Value
			p.expect(IDENT)
		}
		return item
	}
}

func (p *Parser) parseColumnRef() ColumnRef {
	name := p.curToken.Value
	p.expect(IDENT)
	if p.curToken.Kind == DOT {
		p.advance()
		col := p.curToken.Value
		p.expect(IDENT)
		return ColumnRef{Table: name, Name: col}
	}
	return ColumnRef{Name: name}
}

// parseExpr parses a WHERE predicate: a chain of comparisons joined by AND.
func (p *Parser) parseExpr() Expr {
	left := p.parseComparison()
	for p.curToken.Kind == AND {
		p.advance()
		right := p.parseComparison()
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseComparison() Expr {
	left := p.parsePrimary()
	op, ok := comparisonOp(p.curToken.Kind)
	if !ok {
		p.fail("expected comparison operator, got %q", p.curToken.Value)
		return left
	}
	p.advance()
	right := p.parsePrimary()
	return &BinaryExpr{Op: op, Left: left, Right: right}
}

func comparisonOp(k TokenKind) (string, bool) {
	switch k {
	case EQ:
		return "=", true
	case NEQ:
		return "<>", true
	case LT:
		return "<", true
	case LE:
		return "<=", true
	case GT:
		return ">", true
	case GE:
		return ">=", true
	default:
		return "", false
	}
}

func (p *Parser) parsePrimary() Expr {
	switch p.curToken.Kind {
	case NUMBER:
		n, err := strconv.ParseInt(p.curToken.Value, 10, 64)
		if err != nil {
			p.fail("invalid integer %q", p.curToken.Value)
		}
		p.advance()
		return &Literal{Value: n}
	case MINUS:
		p.advance()
		lit, ok := p.parsePrimary().(*Literal)
		if !ok {
			p.fail("expected number after unary minus")
			return &Literal{}
		}
		switch v := lit.Value.(type) {
		case int64:
			return &Literal{Value: -v}
		case float64:
			return &Literal{Value: -v}
		default:
			p.fail("expected number after unary minus")
			return &Literal{}
		}
	case FLOATLIT:
		f, err := strconv.ParseFloat(p.curToken.Value, 64)
		if err != nil {
			p.fail("invalid float %q", p.curToken.Value)
		}
		p.advance()
		return &Literal{Value: f}
	case STRINGLIT:
		s := p.curToken.Value
		p.advance()
		return &Literal{Value: s}
	case IDENT:
		return p.parseColumnRef()
	default:
		p.fail("unexpected token %q in expression", p.curToken.Value)
		p.advance()
		return &Literal{}
	}
}
