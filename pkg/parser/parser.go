package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// Parser turns command-language text into command ASTs.
type Parser struct {
	toks []token
	pos  int
}

// Parse tokenizes and parses a script into its statements.
func Parse(source string) ([]Command, error) {
	toks, err := newLexer(source).lex()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	var cmds []Command
	for {
		for p.acceptSym(";") {
		}
		if p.peek().kind == tokEOF {
			return cmds, nil
		}
		cmd, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
		if p.peek().kind != tokEOF && !p.acceptSym(";") {
			return nil, p.errf("expected ; or end of input")
		}
	}
}

// ParseOne parses exactly one statement.
func ParseOne(source string) (Command, error) {
	cmds, err := Parse(source)
	if err != nil {
		return nil, err
	}
	if len(cmds) != 1 {
		return nil, &dberr.ParseError{Msg: fmt.Sprintf("expected one statement, got %d", len(cmds))}
	}
	return cmds[0], nil
}

// ParseExpression parses a standalone expression, as stored in
// computed-column descriptors.
func ParseExpression(source string) (expr.Expr, error) {
	toks, err := newLexer(source).lex()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errf("trailing input after expression")
	}
	return e, nil
}

func (p *Parser) parseStatement() (Command, error) {
	switch p.peek().upper {
	case "DEFINE":
		p.next()
		p.acceptKw("TENSOR")
		return p.parseDefine(value.KindTensor)
	case "VECTOR":
		p.next()
		return p.parseDefine(value.KindVector)
	case "MATRIX":
		p.next()
		return p.parseDefine(value.KindMatrix)
	case "LET":
		p.next()
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expectSym("="); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Let{Name: name, Expr: e}, nil
	case "DATASET":
		p.next()
		return p.parseCreateDataset()
	case "INSERT":
		p.next()
		return p.parseInsert()
	case "ADD":
		p.next()
		return p.parseAddColumn()
	case "MATERIALIZE":
		p.next()
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &Materialize{Dataset: name}, nil
	case "SELECT":
		return p.parseSelect()
	case "CREATE":
		p.next()
		return p.parseCreate()
	case "DROP":
		p.next()
		return p.parseDrop()
	case "USE":
		p.next()
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &UseDatabase{Name: name}, nil
	case "SEARCH":
		p.next()
		return p.parseSearch()
	case "EXPLAIN":
		p.next()
		plan := p.acceptKw("PLAN")
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		switch stmt.(type) {
		case *Select, *Search:
			return &Explain{Stmt: stmt, Plan: plan}, nil
		default:
			return nil, p.errf("EXPLAIN expects SELECT or SEARCH")
		}
	case "SHOW":
		p.next()
		return p.parseShow()
	case "LIST":
		p.next()
		return p.parseList()
	case "SAVE":
		p.next()
		return p.parseSaveLoad(true)
	case "LOAD":
		p.next()
		return p.parseSaveLoad(false)
	case "SET":
		p.next()
		return p.parseSetMetadata()
	default:
		return nil, p.errf("unknown command %q", p.peek().text)
	}
}

func (p *Parser) parseDefine(kind value.Kind) (Command, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectSym("="); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &DefineTensor{Name: name, Kind: kind, Expr: e}, nil
}

func (p *Parser) parseCreateDataset() (Command, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("COLUMNS"); err != nil {
		return nil, err
	}
	if err := p.expectSym("("); err != nil {
		return nil, err
	}
	var fields []value.Field
	for {
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		if p.acceptSym(",") {
			continue
		}
		break
	}
	if err := p.expectSym(")"); err != nil {
		return nil, err
	}
	return &CreateDataset{Name: name, Fields: fields}, nil
}

func (p *Parser) parseField() (value.Field, error) {
	name, err := p.ident()
	if err != nil {
		return value.Field{}, err
	}
	if err := p.expectSym(":"); err != nil {
		return value.Field{}, err
	}
	typ, err := p.parseType()
	if err != nil {
		return value.Field{}, err
	}
	nullable := false
	if p.acceptKw("NULLABLE") || p.acceptKw("NULL") {
		nullable = true
	}
	return value.Field{Name: name, Type: typ, Nullable: nullable}, nil
}

func (p *Parser) parseType() (value.Type, error) {
	t := p.next()
	if t.kind != tokIdent {
		return value.Type{}, p.errAt(t, "expected type name")
	}
	var kind value.Kind
	dims := 0
	switch t.upper {
	case "INT":
		kind = value.KindInt
	case "FLOAT":
		kind = value.KindFloat
	case "BOOL":
		kind = value.KindBool
	case "STRING":
		kind = value.KindString
	case "VECTOR":
		kind, dims = value.KindVector, 1
	case "MATRIX":
		kind, dims = value.KindMatrix, 2
	case "TENSOR":
		kind, dims = value.KindTensor, -1
	default:
		return value.Type{}, p.errAt(t, "unknown type %q", t.text)
	}
	if dims == 0 {
		return value.Type{Kind: kind}, nil
	}
	if err := p.expectSym("("); err != nil {
		return value.Type{}, err
	}
	var ds []int
	for {
		n, err := p.intLit()
		if err != nil {
			return value.Type{}, err
		}
		ds = append(ds, n)
		if p.acceptSym(",") {
			continue
		}
		break
	}
	if err := p.expectSym(")"); err != nil {
		return value.Type{}, err
	}
	if dims > 0 && len(ds) != dims {
		return value.Type{}, p.errAt(t, "%s takes %d dimensions, got %d", t.upper, dims, len(ds))
	}
	return value.Type{Kind: kind, Dims: ds}, nil
}

func (p *Parser) parseInsert() (Command, error) {
	if err := p.expectKw("INTO"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectSym("("); err != nil {
		return nil, err
	}
	var values []expr.Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, e)
		if p.acceptSym(",") {
			continue
		}
		break
	}
	if err := p.expectSym(")"); err != nil {
		return nil, err
	}
	return &Insert{Dataset: name, Values: values}, nil
}

func (p *Parser) parseAddColumn() (Command, error) {
	if err := p.expectKw("COLUMN"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	dataset := ""
	if p.acceptSym(".") {
		dataset = name
		name, err = p.ident()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectSym("="); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	lazy := p.acceptKw("LAZY")
	return &AddColumn{Dataset: dataset, Column: name, Expr: e, Source: e.String(), Lazy: lazy}, nil
}

func (p *Parser) parseSelect() (Command, error) {
	if err := p.expectKw("SELECT"); err != nil {
		return nil, err
	}
	sel := &Select{}
	for {
		if p.peekSym("*") && len(sel.Items) == 0 {
			p.next()
			sel.Items = append(sel.Items, SelectItem{Star: true})
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := SelectItem{Expr: e}
			if p.acceptKw("AS") {
				alias, err := p.ident()
				if err != nil {
					return nil, err
				}
				item.Alias = alias
			}
			sel.Items = append(sel.Items, item)
		}
		if p.acceptSym(",") {
			continue
		}
		break
	}
	if err := p.expectKw("FROM"); err != nil {
		return nil, err
	}
	from, err := p.ident()
	if err != nil {
		return nil, err
	}
	sel.From = from

	if p.acceptKw("WHERE") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = e
	}
	if p.acceptKw("GROUP") {
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.ident()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, col)
			if p.acceptSym(",") {
				continue
			}
			break
		}
		if p.acceptKw("HAVING") {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.Having = e
		}
	}
	if p.acceptKw("ORDER") {
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		spec := &OrderSpec{Expr: e}
		if p.acceptKw("DESC") {
			spec.Desc = true
		} else {
			p.acceptKw("ASC")
		}
		sel.Order = spec
	}
	if p.acceptKw("LIMIT") {
		n, err := p.intLit()
		if err != nil {
			return nil, err
		}
		sel.Limit = &n
	}
	return sel, nil
}

func (p *Parser) parseCreate() (Command, error) {
	switch {
	case p.acceptKw("DATABASE"):
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &CreateDatabase{Name: name}, nil
	case p.acceptKw("VECTOR"):
		if err := p.expectKw("INDEX"); err != nil {
			return nil, err
		}
		return p.parseCreateIndex(true)
	case p.acceptKw("INDEX"):
		return p.parseCreateIndex(false)
	default:
		return nil, p.errf("expected DATABASE or [VECTOR] INDEX after CREATE")
	}
}

func (p *Parser) parseCreateIndex(vector bool) (Command, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("ON"); err != nil {
		return nil, err
	}
	ds, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectSym("("); err != nil {
		return nil, err
	}
	col, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectSym(")"); err != nil {
		return nil, err
	}
	cmd := &CreateIndex{Name: name, Dataset: ds, Column: col, Vector: vector, Metric: index.MetricCosine}
	if p.acceptKw("USING") {
		m, err := p.ident()
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(m) {
		case "cosine":
			cmd.Metric = index.MetricCosine
		case "euclidean", "l2":
			cmd.Metric = index.MetricEuclidean
		default:
			return nil, p.errf("unknown metric %q", m)
		}
	}
	return cmd, nil
}

func (p *Parser) parseDrop() (Command, error) {
	switch {
	case p.acceptKw("DATABASE"):
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &DropDatabase{Name: name}, nil
	case p.acceptKw("DATASET"):
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &DropDataset{Name: name}, nil
	case p.acceptKw("TENSOR"):
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &DropTensor{Name: name}, nil
	default:
		return nil, p.errf("expected DATABASE, DATASET, or TENSOR after DROP")
	}
}

func (p *Parser) parseSearch() (Command, error) {
	ds, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("WHERE"); err != nil {
		return nil, err
	}
	col, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectSym("~="); err != nil {
		return nil, err
	}
	q, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("LIMIT"); err != nil {
		return nil, err
	}
	k, err := p.intLit()
	if err != nil {
		return nil, err
	}
	return &Search{Dataset: ds, Column: col, Query: q, K: k}, nil
}

func (p *Parser) parseShow() (Command, error) {
	switch {
	case p.acceptKw("DATABASES"):
		return &Show{What: ShowDatabases}, nil
	case p.acceptKw("ALL"):
		return &Show{What: ShowAll}, nil
	case p.acceptKw("INDEXES"):
		cmd := &ShowIndexes{}
		if p.acceptKw("ON") {
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			cmd.Dataset = name
		}
		return cmd, nil
	case p.acceptKw("SCHEMA"):
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &Show{What: ShowSchema, Name: name}, nil
	case p.acceptKw("SHAPE"):
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &Show{What: ShowShape, Name: name}, nil
	default:
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &Show{What: ShowObject, Name: name}, nil
	}
}

func (p *Parser) parseList() (Command, error) {
	switch {
	case p.acceptKw("DATASETS"):
		return &List{Datasets: true}, nil
	case p.acceptKw("TENSORS"):
		return &List{}, nil
	default:
		return nil, p.errf("expected DATASETS or TENSORS after LIST")
	}
}

func (p *Parser) parseSaveLoad(save bool) (Command, error) {
	var isTensor bool
	switch {
	case p.acceptKw("DATASET"):
	case p.acceptKw("TENSOR"):
		isTensor = true
	default:
		return nil, p.errf("expected DATASET or TENSOR")
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if save {
		return &Save{Tensor: isTensor, Name: name}, nil
	}
	return &Load{Tensor: isTensor, Name: name}, nil
}

func (p *Parser) parseSetMetadata() (Command, error) {
	if err := p.expectKw("DATASET"); err != nil {
		return nil, err
	}
	if err := p.expectKw("METADATA"); err != nil {
		return nil, err
	}
	ds, err := p.ident()
	if err != nil {
		return nil, err
	}
	key, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expectSym("="); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &SetMetadata{Dataset: ds, Key: key, Value: e}, nil
}

// Expression grammar, loosest binding first.

func (p *Parser) parseExpr() (expr.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (expr.Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKw("OR") {
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &expr.Binary{Op: expr.OpOr, L: l, R: r}
	}
	return l, nil
}

func (p *Parser) parseAnd() (expr.Expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKw("AND") {
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &expr.Binary{Op: expr.OpAnd, L: l, R: r}
	}
	return l, nil
}

func (p *Parser) parseNot() (expr.Expr, error) {
	if p.acceptKw("NOT") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &expr.Unary{Op: expr.OpNot, X: x}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]expr.BinaryOp{
	"=": expr.OpEq, "!=": expr.OpNe, "<": expr.OpLt, "<=": expr.OpLe,
	">": expr.OpGt, ">=": expr.OpGe, "~=": expr.OpSim,
}

func (p *Parser) parseComparison() (expr.Expr, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokSymbol {
		if op, ok := comparisonOps[t.text]; ok {
			p.next()
			r, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &expr.Binary{Op: op, L: l, R: r}, nil
		}
	}
	return l, nil
}

func (p *Parser) parseAdditive() (expr.Expr, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op expr.BinaryOp
		switch {
		case p.acceptSym("+"):
			op = expr.OpAdd
		case p.acceptSym("-"):
			op = expr.OpSub
		default:
			return l, nil
		}
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = &expr.Binary{Op: op, L: l, R: r}
	}
}

func (p *Parser) parseMultiplicative() (expr.Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op expr.BinaryOp
		switch {
		case p.acceptSym("*"):
			op = expr.OpMul
		case p.acceptSym("/"):
			op = expr.OpDiv
		default:
			return l, nil
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &expr.Binary{Op: op, L: l, R: r}
	}
}

func (p *Parser) parseUnary() (expr.Expr, error) {
	if p.acceptSym("-") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &expr.Unary{Op: expr.OpNeg, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (expr.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptSym("["):
			var terms []expr.IndexTerm
			for {
				if p.acceptSym("*") {
					terms = append(terms, expr.IndexTerm{Wildcard: true})
				} else {
					n, err := p.intLit()
					if err != nil {
						return nil, err
					}
					terms = append(terms, expr.IndexTerm{Index: n})
				}
				if p.acceptSym(",") {
					continue
				}
				break
			}
			if err := p.expectSym("]"); err != nil {
				return nil, err
			}
			e = &expr.TensorIndex{X: e, Indices: terms}
		case p.acceptSym("."):
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			e = &expr.TupleField{X: e, Name: name}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parsePrimary() (expr.Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return numberLiteral(t)
	case tokString:
		p.next()
		return &expr.Literal{Value: value.NewString(t.text)}, nil
	case tokIdent:
		switch t.upper {
		case "TRUE":
			p.next()
			return &expr.Literal{Value: value.NewBool(true)}, nil
		case "FALSE":
			p.next()
			return &expr.Literal{Value: value.NewBool(false)}, nil
		case "NULL":
			p.next()
			return &expr.Literal{Value: value.Null()}, nil
		}
		p.next()
		if p.acceptSym("(") {
			return p.parseCallArgs(t.text)
		}
		if prefixOps[t.upper] && p.startsOperand() {
			l, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			r, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &expr.Call{Name: t.upper, Args: []expr.Expr{l, r}}, nil
		}
		return &expr.ColumnRef{Name: t.text}, nil
	case tokSymbol:
		switch t.text {
		case "(":
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSym(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			return p.parseTensorLiteral()
		}
	}
	return nil, p.errAt(t, "unexpected token %q", t.text)
}

// prefixOps are the binary tensor operators the command language also
// accepts in prefix form, e.g. ADD a b.
var prefixOps = map[string]bool{
	"ADD": true, "SUB": true, "MUL": true, "DIV": true,
	"MATMUL": true, "DOT": true,
}

// reservedWords never start a prefix-form operand.
var reservedWords = map[string]bool{
	"FROM": true, "WHERE": true, "GROUP": true, "BY": true, "HAVING": true,
	"ORDER": true, "LIMIT": true, "AS": true, "AND": true, "OR": true,
	"NOT": true, "LAZY": true, "ASC": true, "DESC": true, "VALUES": true,
	"USING": true, "ON": true, "COLUMNS": true,
}

// startsOperand reports whether the next token can begin a prefix-form
// operand.
func (p *Parser) startsOperand() bool {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		return true
	case tokIdent:
		return !reservedWords[t.upper]
	case tokSymbol:
		return t.text == "[" || t.text == "("
	default:
		return false
	}
}

func (p *Parser) parseCallArgs(name string) (expr.Expr, error) {
	call := &expr.Call{Name: name}
	if p.peekSym("*") && strings.EqualFold(name, "COUNT") {
		p.next()
		call.Star = true
		if err := p.expectSym(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
	if p.acceptSym(")") {
		return call, nil
	}
	for {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, a)
		if p.acceptSym(",") {
			continue
		}
		break
	}
	if err := p.expectSym(")"); err != nil {
		return nil, err
	}
	return call, nil
}

// parseTensorLiteral reads a bracketed literal of any nesting depth into
// a tensor value: [..] is a vector, [[..]] a matrix, deeper nesting a
// general tensor.
func (p *Parser) parseTensorLiteral() (expr.Expr, error) {
	shape, data, err := p.parseNestedList()
	if err != nil {
		return nil, err
	}
	t, err := tensor.New(shape, data)
	if err != nil {
		return nil, p.errf("invalid tensor literal: %v", err)
	}
	return &expr.Literal{Value: value.FromTensor(t)}, nil
}

func (p *Parser) parseNestedList() ([]int, []float64, error) {
	if err := p.expectSym("["); err != nil {
		return nil, nil, err
	}
	if p.peekSym("[") {
		var inner []int
		var data []float64
		count := 0
		for {
			s, d, err := p.parseNestedList()
			if err != nil {
				return nil, nil, err
			}
			if count == 0 {
				inner = s
			} else if !shapesEqual(inner, s) {
				return nil, nil, p.errf("ragged tensor literal")
			}
			data = append(data, d...)
			count++
			if p.acceptSym(",") {
				continue
			}
			break
		}
		if err := p.expectSym("]"); err != nil {
			return nil, nil, err
		}
		return append([]int{count}, inner...), data, nil
	}
	var data []float64
	if p.acceptSym("]") {
		return []int{0}, nil, nil
	}
	for {
		f, err := p.floatLit()
		if err != nil {
			return nil, nil, err
		}
		data = append(data, f)
		if p.acceptSym(",") {
			continue
		}
		break
	}
	if err := p.expectSym("]"); err != nil {
		return nil, nil, err
	}
	return []int{len(data)}, data, nil
}

// Token helpers.

func (p *Parser) peek() token { return p.toks[p.pos] }

func (p *Parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) peekSym(s string) bool {
	t := p.peek()
	return t.kind == tokSymbol && t.text == s
}

func (p *Parser) acceptSym(s string) bool {
	if p.peekSym(s) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expectSym(s string) error {
	if !p.acceptSym(s) {
		return p.errf("expected %q", s)
	}
	return nil
}

func (p *Parser) acceptKw(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && t.upper == kw {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expectKw(kw string) error {
	if !p.acceptKw(kw) {
		return p.errf("expected %s", kw)
	}
	return nil
}

func (p *Parser) ident() (string, error) {
	t := p.next()
	if t.kind != tokIdent {
		return "", p.errAt(t, "expected identifier, got %q", t.text)
	}
	return t.text, nil
}

func (p *Parser) intLit() (int, error) {
	neg := p.acceptSym("-")
	t := p.next()
	if t.kind != tokNumber {
		return 0, p.errAt(t, "expected integer, got %q", t.text)
	}
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, p.errAt(t, "expected integer, got %q", t.text)
	}
	if neg {
		n = -n
	}
	return n, nil
}

func (p *Parser) floatLit() (float64, error) {
	neg := p.acceptSym("-")
	t := p.next()
	if t.kind != tokNumber {
		return 0, p.errAt(t, "expected number, got %q", t.text)
	}
	f, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, p.errAt(t, "invalid number %q", t.text)
	}
	if neg {
		f = -f
	}
	return f, nil
}

func numberLiteral(t token) (expr.Expr, error) {
	if !strings.ContainsAny(t.text, ".eE") {
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err == nil {
			return &expr.Literal{Value: value.NewInt(i)}, nil
		}
	}
	f, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return nil, &dberr.ParseError{Line: t.line, Column: t.col, Msg: "invalid number " + t.text}
	}
	return &expr.Literal{Value: value.NewFloat(f)}, nil
}

func (p *Parser) errf(format string, args ...any) error {
	return p.errAt(p.peek(), format, args...)
}

func (p *Parser) errAt(t token, format string, args ...any) error {
	return &dberr.ParseError{Line: t.line, Column: t.col, Msg: fmt.Sprintf(format, args...)}
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
