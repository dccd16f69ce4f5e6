package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The counting channel accepts arithmetic expressions, not just literal
// numbers, so "6*7" is a valid way to post 42. The grammar is
// deliberately tiny: digits, + - * / ( ) . and whitespace. Chained
// operators are rejected except a double minus ("5--3" reads as 5+3),
// as are division by zero, empty parentheses and leading zeros.

const maxCountExprLen = 256

type exprToken struct {
	kind byte    // 'n' number, or the operator/paren rune itself
	num  float64 // valid when kind == 'n'
}

type exprParser struct {
	toks []exprToken
	pos  int
}

// evaluateCountExpr parses and evaluates text under the counting
// grammar and returns the value when it is a non-negative integer.
func evaluateCountExpr(text string) (int64, error) {
	toks, err := tokenizeCountExpr(text)
	if err != nil {
		return 0, err
	}
	if len(toks) == 0 {
		return 0, fmt.Errorf("empty expression")
	}
	p := &exprParser{toks: toks}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, fmt.Errorf("unexpected trailing input")
	}
	rounded := math.Round(v)
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v-rounded) > 1e-6 {
		return 0, fmt.Errorf("expression does not evaluate to an integer")
	}
	if rounded < 0 || rounded > math.MaxInt32 {
		return 0, fmt.Errorf("expression out of range")
	}
	return int64(rounded), nil
}

func tokenizeCountExpr(text string) ([]exprToken, error) {
	text = strings.TrimSpace(text)
	if len(text) > maxCountExprLen {
		return nil, fmt.Errorf("expression too long")
	}
	var toks []exprToken
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			sawDot := false
			for i < len(text) && (text[i] >= '0' && text[i] <= '9' || text[i] == '.') {
				if text[i] == '.' {
					if sawDot {
						return nil, fmt.Errorf("malformed number")
					}
					sawDot = true
				}
				i++
			}
			lit := text[start:i]
			if err := checkNumberLiteral(lit); err != nil {
				return nil, err
			}
			n, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed number %q", lit)
			}
			toks = append(toks, exprToken{kind: 'n', num: n})
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '(' || c == ')':
			toks = append(toks, exprToken{kind: c})
			i++
		default:
			return nil, fmt.Errorf("illegal character %q", c)
		}
	}
	return toks, nil
}

// checkNumberLiteral rejects bare dots ("."), dangling fractions ("1.")
// and leading zeros ("007"); "0" and "0.5" remain legal.
func checkNumberLiteral(lit string) error {
	if lit == "" || lit == "." {
		return fmt.Errorf("malformed number")
	}
	if strings.HasPrefix(lit, ".") || strings.HasSuffix(lit, ".") {
		return fmt.Errorf("malformed number %q", lit)
	}
	if len(lit) > 1 && lit[0] == '0' && lit[1] != '.' {
		return fmt.Errorf("leading zero in %q", lit)
	}
	return nil
}

func (p *exprParser) peek() (exprToken, bool) {
	if p.pos >= len(p.toks) {
		return exprToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	v, err := p.parseTerm(false)
	if err != nil {
		return 0, err
	}
	for {
		tok, ok := p.peek()
		if !ok || (tok.kind != '+' && tok.kind != '-') {
			return v, nil
		}
		p.pos++
		// A unary minus is only legal right after a binary minus, so
		// "5--3" reads as 5+3 while "+-", "*-" and "/-" chains stay
		// illegal.
		rhs, err := p.parseTerm(tok.kind == '-')
		if err != nil {
			return 0, err
		}
		if tok.kind == '+' {
			v += rhs
		} else {
			v -= rhs
		}
	}
}

func (p *exprParser) parseTerm(allowNeg bool) (float64, error) {
	v, err := p.parseUnary(allowNeg)
	if err != nil {
		return 0, err
	}
	for {
		tok, ok := p.peek()
		if !ok || (tok.kind != '*' && tok.kind != '/') {
			return v, nil
		}
		p.pos++
		rhs, err := p.parseUnary(false)
		if err != nil {
			return 0, err
		}
		if tok.kind == '*' {
			v *= rhs
		} else {
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		}
	}
}

func (p *exprParser) parseUnary(allowNeg bool) (float64, error) {
	tok, ok := p.peek()
	if ok && tok.kind == '-' {
		if !allowNeg {
			return 0, fmt.Errorf("unexpected operator")
		}
		p.pos++
		v, err := p.parsePrimary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	tok, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	switch tok.kind {
	case 'n':
		p.pos++
		return tok.num, nil
	case '(':
		p.pos++
		if next, ok := p.peek(); ok && next.kind == ')' {
			return 0, fmt.Errorf("empty parentheses")
		}
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected operator")
	}
}
