package extractor

import (
	"regexp"
	"sort"
)

var (
	// Pattern: #define <NAME> <DIGITS>
	definePattern = regexp.MustCompile(`#define (\w+) (\d+)`)

	// Pattern: int <NAME> [= <expr>] ; or ,
	intPattern = regexp.MustCompile(`\bint (\w+)[ =]*([\w+\- ]*?) *[;,]`)

	// Pattern: <lowercase-prefix> <NAME>[<size-expr>]
	bufferPattern = regexp.MustCompile(`\b([a-z]+) (\w+)\[([\w +\-]*)\]`)
)

// Words that can precede an indexing expression without declaring anything.
var statementKeywords = map[string]bool{
	"return": true,
	"case":   true,
	"goto":   true,
	"sizeof": true,
	"else":   true,
	"do":     true,
}

type declKind uint8

const (
	declDefine declKind = iota
	declInt
	declBuffer
)

// declMatch is one grammar hit within a unit of text.
type declMatch struct {
	kind   declKind
	offset int
	name   string
	expr   string
}

// matchDefines returns every #define with a decimal value in line.
func matchDefines(line string) []declMatch {
	var out []declMatch
	for _, m := range definePattern.FindAllStringSubmatchIndex(line, -1) {
		out = append(out, declMatch{
			kind:   declDefine,
			offset: m[0],
			name:   line[m[2]:m[3]],
			expr:   line[m[4]:m[5]],
		})
	}
	return out
}

// matchInts returns every int declaration in line. The initializer is
// empty when the declaration carries none.
func matchInts(line string) []declMatch {
	var out []declMatch
	for _, m := range intPattern.FindAllStringSubmatchIndex(line, -1) {
		out = append(out, declMatch{
			kind:   declInt,
			offset: m[0],
			name:   line[m[2]:m[3]],
			expr:   line[m[4]:m[5]],
		})
	}
	return out
}

// matchBuffers returns every fixed-size array declaration in line.
func matchBuffers(line string) []declMatch {
	var out []declMatch
	for _, m := range bufferPattern.FindAllStringSubmatchIndex(line, -1) {
		if statementKeywords[line[m[2]:m[3]]] {
			continue
		}
		out = append(out, declMatch{
			kind:   declBuffer,
			offset: m[0],
			name:   line[m[4]:m[5]],
			expr:   line[m[6]:m[7]],
		})
	}
	return out
}

// matchDeclarations applies all three grammars independently and orders
// the hits by their position in line.
func matchDeclarations(line string) []declMatch {
	var all []declMatch
	all = append(all, matchDefines(line)...)
	all = append(all, matchInts(line)...)
	all = append(all, matchBuffers(line)...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].offset < all[j].offset })
	return all
}
