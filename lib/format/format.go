/*package format handles the miniature formatting language used to name
chunked phase space files. Simulations that run in parallel usually score
one phase space file per job, e.g. run.1.egsphsp1 through run.512.egsphsp1,
and tools that combine or summarize them need a compact way to name the
whole set. A path format is fixed text plus variables written as
{verb,rule}, where "verb" is a printf() verb (e.g. %d, %03d) and "rule" is
a sequence format giving the values the variable takes on:

	run.{%d,1..512}.egsphsp1
	node{%02d,0..15}/scored.{%d,1..32 - 7}.phsp

Sequence formats are a generic way to specify non-contiguous sequences of
natural numbers. They consist of tokens separated by "+" or "-", and each
token is either a number or two numbers separated by "..":

	100
	0..100
	0..10 + 100
	0..100 - 63 - 10..20

These build up sequences by adding and removing numbers and ranges, which
is useful for skipping the outputs of crashed or corrupted jobs. Spaces
around "-", "+", and "," are ignored.
*/
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	e "github.com/phasespace/phsp/lib/error"
)

// BigNumber caps the size of an expanded format. Anything larger is assumed
// to be a typo in a range bound.
const BigNumber = 1 << 20

// ExpandSequenceFormat expands a sequence format string into a sorted
// sequence of integers.
func ExpandSequenceFormat(format string) ([]int, error) {
	tok, err := tokeniseSequenceFormat(format)
	if err != nil {
		return nil, err
	}
	adds, subs, err := addsSubsSequenceFormat(tok)
	if err != nil {
		return nil, err
	}

	m := map[int]int{}
	for i := range adds {
		for _, n := range parseSequenceFormatToken(adds[i]) {
			if _, ok := m[n]; ok {
				return nil, fmt.Errorf("The number %d is added more "+
					"than once.", n)
			}
			m[n] = n
		}
	}
	for i := range subs {
		for _, n := range parseSequenceFormatToken(subs[i]) {
			if _, ok := m[n]; !ok {
				return nil, fmt.Errorf("The number %d is removed more "+
					"times than it was inserted.", n)
			}
			delete(m, n)
		}
	}

	if len(m) > BigNumber {
		return nil, fmt.Errorf("This sequence would have %d elements, "+
			"which is almost certainly a bug.", len(m))
	}

	out := []int{}
	for n := range m {
		out = append(out, n)
	}
	sort.Ints(out)

	return out, nil
}

// tokeniseSequenceFormat splits a sequence format string into number/range
// tokens and "+"/"-" operator tokens.
func tokeniseSequenceFormat(format string) ([]string, error) {
	// Make sure all operators are separated by spaces.
	formatClean := strings.ReplaceAll(format, "+", " + ")
	formatClean = strings.ReplaceAll(formatClean, "-", " - ")

	tokRaw := strings.Split(formatClean, " ")
	tok := []string{}
	for i := range tokRaw {
		tokRaw[i] = strings.Trim(tokRaw[i], " ")
		if len(tokRaw[i]) > 0 {
			tok = append(tok, tokRaw[i])
		}
	}

	if len(tok) == 0 {
		return nil, fmt.Errorf("The format string is empty.")
	}
	return tok, nil
}

func addsSubsSequenceFormat(tok []string) (adds, subs []string, err error) {
	if len(tok) == 0 {
		return nil, nil, fmt.Errorf("Format string is empty")
	}

	// Handle the case where the starting "+" is dropped.
	adds, subs = []string{}, []string{}
	var start int
	if tok[0] == "+" || tok[0] == "-" {
		start = 0
	} else {
		if err := isSequenceFormatToken(tok[0]); err != nil {
			return nil, nil, fmt.Errorf(
				"Element number %d, '%s', cannot be parsed because %s",
				1, tok[0], err.Error(),
			)
		}

		adds = append(adds, tok[0])
		start = 1
	}

	for i := start; i < len(tok); i += 2 {
		if tok[i] != "-" && tok[i] != "+" {
			return nil, nil, fmt.Errorf(
				"Element number %d, '%s', should be a '-' or '+', but isn't.",
				i+1, tok[i])
		}

		if i+1 >= len(tok) {
			return nil, nil, fmt.Errorf(
				"The format string ends in a trailing '%s'", tok[i],
			)
		}

		if err := isSequenceFormatToken(tok[i+1]); err != nil {
			return nil, nil, fmt.Errorf(
				"Element number %d, '%s', cannot be parsed because %s",
				i+2, tok[i+1], err.Error(),
			)
		}

		if tok[i] == "+" {
			adds = append(adds, tok[i+1])
		} else {
			subs = append(subs, tok[i+1])
		}
	}

	return adds, subs, nil
}

// isSequenceFormatToken returns a nil error if tok is a valid token for a
// sequence format and an error describing the problem otherwise. The error
// message assumes it is printed after a trailing "because".
func isSequenceFormatToken(tok string) error {
	if len(tok) == 0 {
		return fmt.Errorf("the format string is empty.")
	}

	bounds := strings.Split(tok, "..")

	switch len(bounds) {
	case 1:
		_, err := strconv.Atoi(bounds[0])
		if err != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[0])
		}
		return nil
	case 2:
		start, err1 := strconv.Atoi(bounds[0])
		if err1 != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[0])
		}
		end, err2 := strconv.Atoi(bounds[1])
		if err2 != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[1])
		}
		if end < start {
			return fmt.Errorf("lower bound %d is larger than upper bound %d.",
				start, end)
		}

		return nil
	}
	return fmt.Errorf("it has more than one '..'.")
}

// parseSequenceFormatToken parses a single token in a sequence format
// string and returns the corresponding array of numbers. It assumes the
// checks in isSequenceFormatToken have already been run and does no error
// checking of its own, since the caller has better location information
// for its error messages.
func parseSequenceFormatToken(tok string) []int {
	bounds := strings.Split(tok, "..")

	switch len(bounds) {
	case 1:
		n, _ := strconv.Atoi(tok)
		return []int{n}
	case 2:
		start, _ := strconv.Atoi(bounds[0])
		end, _ := strconv.Atoi(bounds[1])
		out := []int{}
		for n := start; n <= end; n++ {
			out = append(out, n)
		}

		return out
	}

	e.Internal("Invalid sequence format token, '%s', passed "+
		"isSequenceFormatToken()", tok)
	return nil
}

// pathVar is one {verb,rule} variable in a path format, already expanded.
type pathVar struct {
	verb   string
	values []int
}

// HasVars returns true if format contains at least one {verb,rule}
// variable, i.e. if ExpandPathFormat would return more than a copy of it.
func HasVars(format string) bool {
	return strings.Contains(format, "{")
}

// ExpandPathFormat expands a path format into the full list of file names
// it describes. Variables expand in place and the rightmost variable
// varies fastest, so the output keeps related files adjacent. A format
// with no variables expands to itself.
func ExpandPathFormat(format string) ([]string, error) {
	starts, ends, err := pathFormatStartsEnds(format)
	if err != nil {
		return nil, err
	}

	seps := []string{}
	vars := []pathVar{}
	sepStart := 0
	for i := range starts {
		seps = append(seps, format[sepStart:starts[i]])
		sepStart = ends[i]

		body := format[starts[i]+1 : ends[i]-1]
		j := strings.Index(body, ",")
		if j < 0 {
			return nil, fmt.Errorf("The path format '%s' has an invalid "+
				"variable, '{%s}'. Variables should contain a formatting "+
				"verb (e.g. '%%d', '%%03d'), a comma, and a sequence "+
				"format giving the values the variable takes on (e.g. "+
				"'0..511').", format, body)
		}

		verb := strings.Trim(body[:j], " ")
		if len(verb) < 2 || verb[0] != '%' || verb[len(verb)-1] != 'd' {
			return nil, fmt.Errorf("The variable '{%s}' in the path "+
				"format '%s' starts with '%s', which is not an integer "+
				"formatting verb like '%%d' or '%%03d'.", body, format, verb)
		}

		values, err := ExpandSequenceFormat(body[j+1:])
		if err != nil {
			return nil, fmt.Errorf("The variable '{%s}' in the path "+
				"format '%s' has an invalid sequence format. %s",
				body, format, err.Error())
		}

		vars = append(vars, pathVar{verb, values})
	}
	seps = append(seps, format[sepStart:])

	n := 1
	for i := range vars {
		n *= len(vars[i].values)
		if n > BigNumber {
			return nil, fmt.Errorf("The path format '%s' would expand to "+
				"more than %d files, which is almost certainly a bug.",
				format, BigNumber)
		}
	}

	out := []string{}
	idx := make([]int, len(vars))
	for {
		b := strings.Builder{}
		for i := range vars {
			b.WriteString(seps[i])
			fmt.Fprintf(&b, vars[i].verb, vars[i].values[idx[i]])
		}
		b.WriteString(seps[len(seps)-1])
		out = append(out, b.String())

		// Odometer increment, rightmost variable fastest.
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(vars[i].values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			break
		}
	}

	return out, nil
}

// pathFormatStartsEnds returns the indices of the beginning and end of each
// path format variable.
func pathFormatStartsEnds(format string) (starts, ends []int, err error) {
	starts, ends = []int{}, []int{}
	nestedLevel := 0

	ending := "Make sure variables in path formats are enclosed in " +
		"matching { ... } pairs."

	for i := range format {
		if format[i] == '{' {
			nestedLevel++
			starts = append(starts, i)
		} else if format[i] == '}' {
			nestedLevel--
			ends = append(ends, i+1)
		}

		if nestedLevel > 1 {
			end := len(starts) - 1
			return nil, nil, fmt.Errorf("The path format '%s' has nested "+
				"'{' characters, making it invalid. These '{'s are at "+
				"indices %d and %d. "+ending,
				format, starts[end-1], starts[end])
		} else if nestedLevel < 0 {
			end := len(ends) - 1
			return nil, nil, fmt.Errorf("The path format '%s' has a '}' "+
				"that doesn't come after a '{' character, making it "+
				"invalid. This '}' is at index %d. "+ending,
				format, ends[end]-1)
		}
	}

	if len(ends) != len(starts) {
		end := len(starts) - 1
		return nil, nil, fmt.Errorf("The path format '%s' has a '{' "+
			"without a matching '}', making it invalid. This '{' is at "+
			"index %d. "+ending, format, starts[end])
	}

	return starts, ends, nil
}
