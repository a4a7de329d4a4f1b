package graph

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseDependencies splits an additive size or value expression into
// dependency terms: at most one constant term (all literals summed, omitted
// when zero) followed by the symbolic terms in the order they appear.
//
// A word run directly preceded by '-' contributes only its leading digits.
// A negated symbol such as "-i" cannot be represented and is dropped, so
// "10 - i" parses to [10]. When the literals do not fit in an int64 the
// constant term is omitted; parseOperand marks such an operand as overflowed.
func ParseDependencies(expr string) []Term {
	return parseExpression(expr).terms
}

type parsedExpression struct {
	terms    []Term
	dropped  []string
	overflow bool // a literal or the literal sum does not fit in an int64
}

func parseExpression(expr string) parsedExpression {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, expr)

	var (
		constant int64
		symbols  []Term
		dropped  []string
		overflow bool
	)
	for i := 0; i < len(s); {
		if !isWordByte(s[i]) {
			i++
			continue
		}
		j := i
		for j < len(s) && isWordByte(s[j]) {
			j++
		}
		run := s[i:j]
		negated := i > 0 && s[i-1] == '-'
		i = j

		if negated {
			digits := leadingDigits(run)
			if digits != "" {
				v, err := strconv.ParseInt(digits, 10, 64)
				if err != nil {
					overflow = true
				} else if sum, ok := addInt64(constant, -v); ok {
					constant = sum
				} else {
					overflow = true
				}
			}
			if digits != run {
				dropped = append(dropped, "-"+run[len(digits):])
			}
			continue
		}

		if isDigits(run) {
			v, err := strconv.ParseInt(run, 10, 64)
			if err != nil {
				overflow = true
				continue
			}
			if sum, ok := addInt64(constant, v); ok {
				constant = sum
			} else {
				overflow = true
			}
			continue
		}
		symbols = append(symbols, SymbolTerm(run))
	}

	terms := make([]Term, 0, len(symbols)+1)
	if constant != 0 && !overflow {
		terms = append(terms, ConstTerm(constant))
	}
	terms = append(terms, symbols...)
	return parsedExpression{terms: terms, dropped: dropped, overflow: overflow}
}

// addInt64 returns a+b and false when the sum wraps.
func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func leadingDigits(s string) string {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return s[:n]
}
