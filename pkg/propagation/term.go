package propagation

import (
	"errors"
	"fmt"
)

// Operation is the sign a term contributes with.
type Operation string

const (
	OpAdd Operation = "+"
	OpSub Operation = "-"
)

// ErrInvalidOperation is returned for operations outside {+, -}.
var ErrInvalidOperation = errors.New("propagation: operation must be + or -")

// ParseOperation converts s into an Operation. An empty string means OpAdd,
// matching the form default.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "", "+":
		return OpAdd, nil
	case "-":
		return OpSub, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidOperation, s)
	}
}

// Valid reports whether op is OpAdd or OpSub.
func (op Operation) Valid() bool {
	return op == OpAdd || op == OpSub
}

// Term is one measured quantity in the expression.
type Term struct {
	// ID is unique within the live sequence. It carries no ordering.
	ID string `json:"id"`

	// Value is the measured magnitude.
	Value float64 `json:"value"`

	// Error is the absolute uncertainty, in the same unit as Value.
	Error float64 `json:"error"`

	// Unit is a display label only. It is never converted or checked
	// dimensionally.
	Unit string `json:"unit"`

	// Operation is stored for every term but ignored on the first one.
	Operation Operation `json:"operation"`
}

// Input is a parsed but not yet identified term.
type Input struct {
	Value     float64
	Error     float64
	Unit      string
	Operation Operation
}

// term attaches id to in.
func (in Input) term(id string) Term {
	return Term{
		ID:        id,
		Value:     in.Value,
		Error:     in.Error,
		Unit:      in.Unit,
		Operation: in.Operation,
	}
}
