package propagation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrInvalidTerm is returned when a value or error field is not a finite
	// number.
	ErrInvalidTerm = errors.New("propagation: invalid term")

	// ErrInvalidExpression is returned by ParseExpression for malformed input.
	ErrInvalidExpression = errors.New("propagation: invalid expression")
)

// ParseTerm parses the free-text fields of the add-term form.
//
// value and errStr must parse as finite floats after trimming. unit is kept
// verbatim apart from surrounding blanks. An empty op means OpAdd. Every
// failing field is reported, not just the first.
func ParseTerm(value, errStr, unit, op string) (Input, error) {
	var result *multierror.Error

	v, err := parseNumber("value", value)
	if err != nil {
		result = multierror.Append(result, err)
	}
	e, err := parseNumber("error", errStr)
	if err != nil {
		result = multierror.Append(result, err)
	}
	operation, err := ParseOperation(strings.TrimSpace(op))
	if err != nil {
		result = multierror.Append(result, err)
	}

	if result != nil {
		result.ErrorFormat = joinErrors
		return Input{}, result
	}
	return Input{
		Value:     v,
		Error:     e,
		Unit:      strings.TrimSpace(unit),
		Operation: operation,
	}, nil
}

func parseNumber(field, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidTerm, field)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidTerm, field, s)
	}
	return f, nil
}

// joinErrors renders a multierror on one line, which is how the form shows it.
func joinErrors(errs []error) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ParseExpression parses a measurement expression such as
//
//	3.2±0.5cm + 120±2cm - 4 +- 0.1 cm
//
// Grammar: TERM (OP TERM)*, where TERM is VALUE '±' ERROR [UNIT] ("+-" is
// accepted for '±') and OP is a lone '+' or '-'. A unit may follow the error
// directly or as the next word. Terms without a unit get defaultUnit.
func ParseExpression(expr, defaultUnit string) ([]Input, error) {
	expr = strings.ReplaceAll(expr, "+-", "±")
	expr = strings.ReplaceAll(expr, "±", " ± ")
	tokens := joinPlusMinus(strings.Fields(expr))
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidExpression)
	}

	var out []Input
	op := OpAdd
	expectTerm := true
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !expectTerm {
			if !isOperator(tok) {
				return nil, fmt.Errorf("%w: expected + or - before %q", ErrInvalidExpression, tok)
			}
			op = Operation(tok)
			expectTerm = true
			continue
		}

		in, err := parseTermToken(tok)
		if err != nil {
			return nil, err
		}
		// A bare word after the term is its unit.
		if in.Unit == "" && i+1 < len(tokens) && !isOperator(tokens[i+1]) && !strings.Contains(tokens[i+1], "±") {
			in.Unit = tokens[i+1]
			i++
		}
		if in.Unit == "" {
			in.Unit = defaultUnit
		}
		in.Operation = op
		out = append(out, in)
		expectTerm = false
	}

	if expectTerm {
		return nil, fmt.Errorf("%w: trailing operator", ErrInvalidExpression)
	}
	return out, nil
}

// joinPlusMinus glues "3.2", "±", "0.5cm" back into "3.2±0.5cm".
func joinPlusMinus(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if tokens[i] == "±" && len(out) > 0 && i+1 < len(tokens) {
			out[len(out)-1] += "±" + tokens[i+1]
			i++
			continue
		}
		out = append(out, tokens[i])
	}
	return out
}

func isOperator(tok string) bool {
	return tok == string(OpAdd) || tok == string(OpSub)
}

// parseTermToken parses "VALUE±ERROR[UNIT]".
func parseTermToken(tok string) (Input, error) {
	valStr, rest, ok := strings.Cut(tok, "±")
	if !ok {
		return Input{}, fmt.Errorf("%w: term %q has no ± error", ErrInvalidExpression, tok)
	}
	v, err := parseNumber("value", valStr)
	if err != nil {
		return Input{}, err
	}
	n := numericPrefix(rest)
	if n == 0 {
		return Input{}, fmt.Errorf("%w: error in %q is not a number", ErrInvalidTerm, tok)
	}
	e, err := parseNumber("error", rest[:n])
	if err != nil {
		return Input{}, err
	}
	return Input{Value: v, Error: e, Unit: rest[n:]}, nil
}

// numericPrefix returns the length of the longest prefix of s that parses as
// a finite float.
func numericPrefix(s string) int {
	for n := len(s); n > 0; n-- {
		f, err := strconv.ParseFloat(s[:n], 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return n
		}
	}
	return 0
}
