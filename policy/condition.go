package policy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrConditionInvalid is returned when a condition cannot be compiled or
// references something outside the sandbox.
var ErrConditionInvalid = errors.New("invalid policy condition")

// Evaluation limits. Conditions are attacker-adjacent input once rule
// management is delegated, so the interpreter bounds everything.
const (
	maxConditionLen   = 512
	maxConditionDepth = 16
)

// Subject carries the principal attributes visible to conditions.
type Subject struct {
	ID       string
	Username string
	Roles    []string
	Groups   []string
	IsActive bool
}

// Request is one authorization request: who wants to do what to which
// object.
type Request struct {
	Sub Subject
	Obj string
	Act string
}

// Condition is a compiled rule condition. The zero value is not usable;
// build one with [CompileCondition].
//
// The expression language is deliberately tiny: identifiers sub, obj, act
// and the sub.* attributes; string and number literals; comparisons,
// membership via in, boolean combinators in both symbolic (&&, ||, !) and
// word (and, or, not) form; parentheses. There are no calls, no indexing,
// no attribute access beyond the fixed set, so a hostile condition can at
// worst evaluate to false.
type Condition struct {
	src  string
	expr node
}

// CompileCondition parses a condition. The empty string and "true" compile
// to an always-pass condition.
func CompileCondition(src string) (*Condition, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" || trimmed == "true" {
		return &Condition{src: src, expr: boolLit(true)}, nil
	}
	if len(trimmed) > maxConditionLen {
		return nil, fmt.Errorf("%w: condition exceeds %d bytes", ErrConditionInvalid, maxConditionLen)
	}

	toks, err := lexCondition(trimmed)
	if err != nil {
		return nil, err
	}
	p := &condParser{toks: toks}
	expr, err := p.parseOr(0)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q", ErrConditionInvalid, p.peek().text)
	}
	return &Condition{src: src, expr: expr}, nil
}

// Eval evaluates the condition against a request. Any runtime error, such
// as a type mismatch, yields false.
func (c *Condition) Eval(req Request) bool {
	v, err := c.expr.eval(req)
	if err != nil {
		return false
	}
	b, err := v.asBool()
	return err == nil && b
}

// String returns the original condition source.
func (c *Condition) String() string { return c.src }

// EvalCondition compiles and evaluates in one step. Used by the engine for
// ad hoc checks; the engine's hot path keeps compiled conditions in its
// snapshot instead.
func EvalCondition(src string, req Request) (bool, error) {
	c, err := CompileCondition(src)
	if err != nil {
		return false, err
	}
	return c.Eval(req), nil
}

// lexer

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
)

type condTok struct {
	kind tokKind
	text string
}

func lexCondition(src string) ([]condTok, error) {
	var toks []condTok
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '(':
			toks = append(toks, condTok{tokLParen, "("})
			i++
		case ch == ')':
			toks = append(toks, condTok{tokRParen, ")"})
			i++
		case ch == '\'' || ch == '"':
			quote := ch
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("%w: unterminated string", ErrConditionInvalid)
			}
			toks = append(toks, condTok{tokString, src[i+1 : j]})
			i = j + 1
		case ch >= '0' && ch <= '9':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, condTok{tokNumber, src[i:j]})
			i = j
		case isIdentStart(rune(ch)):
			j := i
			for j < len(src) && isIdentPart(rune(src[j])) {
				j++
			}
			toks = append(toks, condTok{tokIdent, src[i:j]})
			i = j
		default:
			op, n := lexOperator(src[i:])
			if n == 0 {
				return nil, fmt.Errorf("%w: unexpected character %q", ErrConditionInvalid, string(ch))
			}
			toks = append(toks, condTok{tokOp, op})
			i += n
		}
	}
	toks = append(toks, condTok{tokEOF, ""})
	return toks, nil
}

func lexOperator(s string) (string, int) {
	two := []string{"==", "!=", "<=", ">=", "&&", "||"}
	for _, op := range two {
		if strings.HasPrefix(s, op) {
			return op, 2
		}
	}
	switch s[0] {
	case '<', '>', '!':
		return string(s[0]), 1
	}
	return "", 0
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '.'
}

// parser

type condParser struct {
	toks []condTok
	pos  int
}

func (p *condParser) peek() condTok { return p.toks[p.pos] }

func (p *condParser) next() condTok {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *condParser) matchOp(texts ...string) (string, bool) {
	t := p.peek()
	for _, want := range texts {
		if (t.kind == tokOp || t.kind == tokIdent) && t.text == want {
			p.next()
			return want, true
		}
	}
	return "", false
}

func (p *condParser) parseOr(depth int) (node, error) {
	if depth > maxConditionDepth {
		return nil, fmt.Errorf("%w: expression too deep", ErrConditionInvalid)
	}
	left, err := p.parseAnd(depth + 1)
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.matchOp("||", "or"); !ok {
			return left, nil
		}
		right, err := p.parseAnd(depth + 1)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "||", left: left, right: right}
	}
}

func (p *condParser) parseAnd(depth int) (node, error) {
	if depth > maxConditionDepth {
		return nil, fmt.Errorf("%w: expression too deep", ErrConditionInvalid)
	}
	left, err := p.parseUnary(depth + 1)
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.matchOp("&&", "and"); !ok {
			return left, nil
		}
		right, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *condParser) parseUnary(depth int) (node, error) {
	if depth > maxConditionDepth {
		return nil, fmt.Errorf("%w: expression too deep", ErrConditionInvalid)
	}
	if _, ok := p.matchOp("!", "not"); ok {
		inner, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parseComparison(depth + 1)
}

func (p *condParser) parseComparison(depth int) (node, error) {
	left, err := p.parseOperand(depth + 1)
	if err != nil {
		return nil, err
	}
	op, ok := p.matchOp("==", "!=", "<=", ">=", "<", ">", "in")
	if !ok {
		return left, nil
	}
	right, err := p.parseOperand(depth + 1)
	if err != nil {
		return nil, err
	}
	return binaryNode{op: op, left: left, right: right}, nil
}

func (p *condParser) parseOperand(depth int) (node, error) {
	if depth > maxConditionDepth {
		return nil, fmt.Errorf("%w: expression too deep", ErrConditionInvalid)
	}
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr(depth + 1)
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrConditionInvalid)
		}
		return inner, nil
	case tokString:
		return strLit(t.text), nil
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrConditionInvalid, t.text)
		}
		return numLit(n), nil
	case tokIdent:
		switch t.text {
		case "true", "True":
			return boolLit(true), nil
		case "false", "False":
			return boolLit(false), nil
		}
		return newIdentNode(t.text)
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrConditionInvalid, t.text)
	}
}

// evaluation

type valueKind int

const (
	kindBool valueKind = iota
	kindString
	kindNumber
	kindList
)

type condValue struct {
	kind valueKind
	b    bool
	s    string
	n    float64
	list []string
}

func (v condValue) asBool() (bool, error) {
	if v.kind != kindBool {
		return false, fmt.Errorf("%w: expected boolean", ErrConditionInvalid)
	}
	return v.b, nil
}

type node interface {
	eval(req Request) (condValue, error)
}

type boolLit bool

func (l boolLit) eval(Request) (condValue, error) {
	return condValue{kind: kindBool, b: bool(l)}, nil
}

type strLit string

func (l strLit) eval(Request) (condValue, error) {
	return condValue{kind: kindString, s: string(l)}, nil
}

type numLit float64

func (l numLit) eval(Request) (condValue, error) {
	return condValue{kind: kindNumber, n: float64(l)}, nil
}

type identNode string

// The fixed attribute surface. Everything else is rejected at compile time.
var allowedIdents = map[string]struct{}{
	"sub": {}, "obj": {}, "act": {},
	"sub.id": {}, "sub.username": {}, "sub.roles": {},
	"sub.groups": {}, "sub.is_active": {},
}

func newIdentNode(name string) (node, error) {
	if _, ok := allowedIdents[name]; !ok {
		return nil, fmt.Errorf("%w: unknown identifier %q", ErrConditionInvalid, name)
	}
	return identNode(name), nil
}

func (id identNode) eval(req Request) (condValue, error) {
	switch string(id) {
	case "sub", "sub.username":
		return condValue{kind: kindString, s: req.Sub.Username}, nil
	case "sub.id":
		return condValue{kind: kindString, s: req.Sub.ID}, nil
	case "sub.roles":
		return condValue{kind: kindList, list: req.Sub.Roles}, nil
	case "sub.groups":
		return condValue{kind: kindList, list: req.Sub.Groups}, nil
	case "sub.is_active":
		return condValue{kind: kindBool, b: req.Sub.IsActive}, nil
	case "obj":
		return condValue{kind: kindString, s: req.Obj}, nil
	case "act":
		return condValue{kind: kindString, s: req.Act}, nil
	}
	return condValue{}, fmt.Errorf("%w: unknown identifier %q", ErrConditionInvalid, string(id))
}

type notNode struct {
	inner node
}

func (n notNode) eval(req Request) (condValue, error) {
	v, err := n.inner.eval(req)
	if err != nil {
		return condValue{}, err
	}
	b, err := v.asBool()
	if err != nil {
		return condValue{}, err
	}
	return condValue{kind: kindBool, b: !b}, nil
}

type binaryNode struct {
	op    string
	left  node
	right node
}

func (n binaryNode) eval(req Request) (condValue, error) {
	switch n.op {
	case "&&", "||":
		lv, err := n.left.eval(req)
		if err != nil {
			return condValue{}, err
		}
		lb, err := lv.asBool()
		if err != nil {
			return condValue{}, err
		}
		if n.op == "&&" && !lb {
			return condValue{kind: kindBool, b: false}, nil
		}
		if n.op == "||" && lb {
			return condValue{kind: kindBool, b: true}, nil
		}
		rv, err := n.right.eval(req)
		if err != nil {
			return condValue{}, err
		}
		rb, err := rv.asBool()
		if err != nil {
			return condValue{}, err
		}
		return condValue{kind: kindBool, b: rb}, nil
	}

	lv, err := n.left.eval(req)
	if err != nil {
		return condValue{}, err
	}
	rv, err := n.right.eval(req)
	if err != nil {
		return condValue{}, err
	}

	if n.op == "in" {
		return evalIn(lv, rv)
	}
	return evalComparison(n.op, lv, rv)
}

func evalIn(lv, rv condValue) (condValue, error) {
	if lv.kind != kindString {
		return condValue{}, fmt.Errorf("%w: in expects a string on the left", ErrConditionInvalid)
	}
	switch rv.kind {
	case kindList:
		for _, item := range rv.list {
			if item == lv.s {
				return condValue{kind: kindBool, b: true}, nil
			}
		}
		return condValue{kind: kindBool, b: false}, nil
	case kindString:
		return condValue{kind: kindBool, b: strings.Contains(rv.s, lv.s)}, nil
	}
	return condValue{}, fmt.Errorf("%w: in expects a list or string on the right", ErrConditionInvalid)
}

func evalComparison(op string, lv, rv condValue) (condValue, error) {
	if lv.kind != rv.kind {
		return condValue{}, fmt.Errorf("%w: cannot compare mixed types", ErrConditionInvalid)
	}

	switch lv.kind {
	case kindString:
		return orderedResult(op, strings.Compare(lv.s, rv.s))
	case kindNumber:
		switch {
		case lv.n < rv.n:
			return orderedResult(op, -1)
		case lv.n > rv.n:
			return orderedResult(op, 1)
		default:
			return orderedResult(op, 0)
		}
	case kindBool:
		if op != "==" && op != "!=" {
			return condValue{}, fmt.Errorf("%w: booleans only support equality", ErrConditionInvalid)
		}
		eq := lv.b == rv.b
		return condValue{kind: kindBool, b: (op == "==") == eq}, nil
	}
	return condValue{}, fmt.Errorf("%w: lists cannot be compared", ErrConditionInvalid)
}

func orderedResult(op string, cmp int) (condValue, error) {
	var b bool
	switch op {
	case "==":
		b = cmp == 0
	case "!=":
		b = cmp != 0
	case "<":
		b = cmp < 0
	case "<=":
		b = cmp <= 0
	case ">":
		b = cmp > 0
	case ">=":
		b = cmp >= 0
	default:
		return condValue{}, fmt.Errorf("%w: unsupported operator %q", ErrConditionInvalid, op)
	}
	return condValue{kind: kindBool, b: b}, nil
}
