package propagation

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

var (
	// ErrTermNotFound is returned when no term carries the requested id.
	ErrTermNotFound = errors.New("propagation: term not found")

	// ErrMixedUnits is returned by Append under Policy.StrictUnits when the
	// unit differs from the first term's.
	ErrMixedUnits = errors.New("propagation: unit differs from the first term")

	// ErrNegativeError is returned by Append when the absolute error is
	// negative and Policy.AllowNegativeErrors is off.
	ErrNegativeError = errors.New("propagation: absolute error must not be negative")

	// ErrTooManyTerms is returned by Append once Policy.MaxTerms is reached.
	ErrTooManyTerms = errors.New("propagation: term limit reached")
)

// Policy controls what Append accepts. The zero Policy is permissive about
// units and strict about negative errors.
type Policy struct {
	// StrictUnits rejects terms whose unit differs from the first term's.
	StrictUnits bool

	// AllowNegativeErrors accepts a negative absolute error as given.
	AllowNegativeErrors bool

	// MaxTerms caps the sequence length. Zero means unlimited.
	MaxTerms int
}

// Option configures a Sequence.
type Option func(*Sequence)

// WithPolicy sets the append policy.
func WithPolicy(p Policy) Option {
	return func(s *Sequence) { s.policy = p }
}

// WithIDFunc replaces the id generator. Generated ids must be unique within
// the sequence; tests use a counter.
func WithIDFunc(fn func() string) Option {
	return func(s *Sequence) { s.newID = fn }
}

// Sequence is an ordered, never-empty list of terms.
type Sequence struct {
	terms  []Term
	policy Policy
	newID  func() string
}

// NewSequence returns a Sequence holding first as its only term. first is
// checked against the policy's error rule only; it defines the unit later
// terms are compared to.
func NewSequence(first Input, opts ...Option) (*Sequence, error) {
	s := &Sequence{newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	if err := checkNumbers(first); err != nil {
		return nil, err
	}
	if first.Error < 0 && !s.policy.AllowNegativeErrors {
		return nil, fmt.Errorf("%w: got %g", ErrNegativeError, first.Error)
	}
	if first.Operation == "" {
		first.Operation = OpAdd
	}
	s.terms = []Term{first.term(s.newID())}
	return s, nil
}

// SetPolicy replaces the policy for subsequent appends. Terms already in the
// sequence are kept as they are.
func (s *Sequence) SetPolicy(p Policy) {
	s.policy = p
}

// Policy returns the active policy.
func (s *Sequence) Policy() Policy {
	return s.policy
}

// Len returns the number of terms, always at least one.
func (s *Sequence) Len() int {
	return len(s.terms)
}

// Terms returns a copy of the terms in order.
func (s *Sequence) Terms() []Term {
	out := make([]Term, len(s.terms))
	copy(out, s.terms)
	return out
}

// Result aggregates the current terms.
func (s *Sequence) Result() Result {
	return Aggregate(s.terms)
}

// Append validates in against the policy and adds it at the end with a
// fresh id. On error the sequence is left untouched.
func (s *Sequence) Append(in Input) (Term, error) {
	if err := checkNumbers(in); err != nil {
		return Term{}, err
	}
	if in.Operation == "" {
		in.Operation = OpAdd
	}
	if !in.Operation.Valid() {
		return Term{}, fmt.Errorf("%w: got %q", ErrInvalidOperation, in.Operation)
	}
	if in.Error < 0 && !s.policy.AllowNegativeErrors {
		return Term{}, fmt.Errorf("%w: got %g", ErrNegativeError, in.Error)
	}
	if s.policy.StrictUnits && in.Unit != s.terms[0].Unit {
		return Term{}, fmt.Errorf("%w: got %q, want %q", ErrMixedUnits, in.Unit, s.terms[0].Unit)
	}
	if s.policy.MaxTerms > 0 && len(s.terms) >= s.policy.MaxTerms {
		return Term{}, fmt.Errorf("%w (%d)", ErrTooManyTerms, s.policy.MaxTerms)
	}

	t := in.term(s.newID())
	s.terms = append(s.terms, t)
	return t, nil
}

// Remove deletes the term with the given id. It reports false, leaving the
// sequence unchanged, when id is unknown or names the only remaining term.
func (s *Sequence) Remove(id string) bool {
	if len(s.terms) <= 1 {
		return false
	}
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.terms = append(s.terms[:i], s.terms[i+1:]...)
	return true
}

// UpdateOperation sets the operation of the term with the given id in place.
func (s *Sequence) UpdateOperation(id string, op Operation) error {
	if !op.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidOperation, op)
	}
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTermNotFound, id)
	}
	s.terms[i].Operation = op
	return nil
}

// Contains reports whether a term with the given id is present.
func (s *Sequence) Contains(id string) bool {
	return s.index(id) >= 0
}

func (s *Sequence) index(id string) int {
	for i, t := range s.terms {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// checkNumbers rejects NaN and infinities, which would poison every later
// result.
func checkNumbers(in Input) error {
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return fmt.Errorf("%w: value is not a finite number", ErrInvalidTerm)
	}
	if math.IsNaN(in.Error) || math.IsInf(in.Error, 0) {
		return fmt.Errorf("%w: error is not a finite number", ErrInvalidTerm)
	}
	return nil
}
