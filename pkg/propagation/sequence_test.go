package propagation

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterIDs returns an id generator yielding "t1", "t2", ...
func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
}

func newSeq(t *testing.T, opts ...Option) *Sequence {
	t.Helper()
	opts = append([]Option{WithIDFunc(counterIDs())}, opts...)
	s, err := NewSequence(Input{Value: 3.2, Error: 0.5, Unit: "cm"}, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSequence_SeedsOneTerm(t *testing.T) {
	s := newSeq(t)

	require.Equal(t, 1, s.Len())
	first := s.Terms()[0]
	assert.Equal(t, "t1", first.ID)
	assert.Equal(t, OpAdd, first.Operation)
	assert.Equal(t, Result{Value: 3.2, Error: 0.5, Unit: "cm"}, s.Result())
}

func TestNewSequence_DefaultIDsAreUnique(t *testing.T) {
	s, err := NewSequence(Input{Value: 1, Error: 0.1, Unit: "cm"})
	require.NoError(t, err)

	seen := map[string]bool{s.Terms()[0].ID: true}
	for i := 0; i < 100; i++ {
		tm, err := s.Append(Input{Value: 1, Error: 0.1, Unit: "cm"})
		require.NoError(t, err)
		require.False(t, seen[tm.ID], "duplicate id %q", tm.ID)
		seen[tm.ID] = true
	}
}

func TestNewSequence_RejectsNegativeError(t *testing.T) {
	_, err := NewSequence(Input{Value: 1, Error: -1})
	assert.ErrorIs(t, err, ErrNegativeError)
}

func TestAppend_AddsAtEnd(t *testing.T) {
	s := newSeq(t)

	tm, err := s.Append(Input{Value: 120, Error: 2, Unit: "cm", Operation: OpAdd})
	require.NoError(t, err)

	terms := s.Terms()
	require.Len(t, terms, 2)
	assert.Equal(t, tm, terms[1])
	assert.Equal(t, "t2", tm.ID)

	r := s.Result()
	assert.InDelta(t, 123.2, r.Value, 1e-9)
	assert.InDelta(t, 2.5, r.Error, 1e-9)
}

func TestAppend_EmptyOperationMeansAdd(t *testing.T) {
	s := newSeq(t)
	tm, err := s.Append(Input{Value: 1, Error: 0.1, Unit: "cm"})
	require.NoError(t, err)
	assert.Equal(t, OpAdd, tm.Operation)
}

func TestAppend_RejectionsLeaveSequenceUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		in     Input
		want   error
	}{
		{"bad operation", Policy{}, Input{Value: 1, Error: 1, Operation: "*"}, ErrInvalidOperation},
		{"negative error", Policy{}, Input{Value: 1, Error: -0.1, Unit: "cm"}, ErrNegativeError},
		{"mixed units strict", Policy{StrictUnits: true}, Input{Value: 1, Error: 1, Unit: "mm"}, ErrMixedUnits},
		{"term limit", Policy{MaxTerms: 1}, Input{Value: 1, Error: 1, Unit: "cm"}, ErrTooManyTerms},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newSeq(t, WithPolicy(tc.policy))
			before := s.Terms()

			_, err := s.Append(tc.in)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, s.Terms())
		})
	}
}

func TestAppend_NonFiniteRejected(t *testing.T) {
	s := newSeq(t)
	before := s.Terms()

	// The form flow: parse, append only on success.
	for _, raw := range [][2]string{{"abc", "1"}, {"1", "x"}, {"", "1"}, {"NaN", "1"}, {"1", "Inf"}} {
		in, err := ParseTerm(raw[0], raw[1], "cm", "+")
		if err == nil {
			_, err = s.Append(in)
		}
		require.ErrorIs(t, err, ErrInvalidTerm, "input %v", raw)
	}

	_, err := s.Append(Input{Value: math.NaN(), Error: 1, Unit: "cm"})
	require.ErrorIs(t, err, ErrInvalidTerm)
	_, err = s.Append(Input{Value: 1, Error: math.Inf(1), Unit: "cm"})
	require.ErrorIs(t, err, ErrInvalidTerm)

	assert.Equal(t, before, s.Terms())
}

func TestAppend_PermissivePolicy(t *testing.T) {
	s := newSeq(t, WithPolicy(Policy{AllowNegativeErrors: true}))

	_, err := s.Append(Input{Value: 1, Error: -0.5, Unit: "mm"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.InDelta(t, 0.0, s.Result().Error, 1e-9)
}

func TestSetPolicy_AppliesToLaterAppends(t *testing.T) {
	s := newSeq(t)
	_, err := s.Append(Input{Value: 1, Error: 0.1, Unit: "mm"})
	require.NoError(t, err)

	s.SetPolicy(Policy{StrictUnits: true})
	_, err = s.Append(Input{Value: 1, Error: 0.1, Unit: "mm"})
	assert.ErrorIs(t, err, ErrMixedUnits)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Policy().StrictUnits)
}

func TestRemove(t *testing.T) {
	s := newSeq(t)
	_, err := s.Append(Input{Value: 120, Error: 2, Unit: "cm"})
	require.NoError(t, err)

	assert.False(t, s.Remove("nope"), "unknown id")
	assert.Equal(t, 2, s.Len())

	assert.True(t, s.Remove("t1"))
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "t2", s.Terms()[0].ID)

	// The survivor now anchors the expression.
	assert.Equal(t, Result{Value: 120, Error: 2, Unit: "cm"}, s.Result())
}

func TestRemove_NeverEmpties(t *testing.T) {
	s := newSeq(t)
	for i := 0; i < 5; i++ {
		_, err := s.Append(Input{Value: float64(i), Error: 0.1, Unit: "cm"})
		require.NoError(t, err)
	}

	for _, tm := range s.Terms() {
		s.Remove(tm.ID)
		require.GreaterOrEqual(t, s.Len(), 1)
	}
	require.Equal(t, 1, s.Len())
	assert.False(t, s.Remove(s.Terms()[0].ID))
	assert.Equal(t, 1, s.Len())
}

func TestRemoveThenReinsert_KeepsResult(t *testing.T) {
	s := newSeq(t)
	_, err := s.Append(Input{Value: 120, Error: 2, Unit: "cm", Operation: OpAdd})
	require.NoError(t, err)
	last, err := s.Append(Input{Value: 20, Error: 1, Unit: "cm", Operation: OpSub})
	require.NoError(t, err)
	want := s.Result()

	require.True(t, s.Remove(last.ID))
	_, err = s.Append(Input{Value: last.Value, Error: last.Error, Unit: last.Unit, Operation: last.Operation})
	require.NoError(t, err)

	got := s.Result()
	assert.InDelta(t, want.Value, got.Value, 1e-9)
	assert.InDelta(t, want.Error, got.Error, 1e-9)
}

func TestUpdateOperation(t *testing.T) {
	s := newSeq(t)
	_, err := s.Append(Input{Value: 4, Error: 0.5, Unit: "cm", Operation: OpAdd})
	require.NoError(t, err)

	require.NoError(t, s.UpdateOperation("t2", OpSub))

	terms := s.Terms()
	require.Len(t, terms, 2)
	assert.Equal(t, "t2", terms[1].ID, "identity and position preserved")
	assert.Equal(t, OpSub, terms[1].Operation)
	assert.InDelta(t, -0.8, s.Result().Value, 1e-9)

	assert.ErrorIs(t, s.UpdateOperation("missing", OpAdd), ErrTermNotFound)
	assert.ErrorIs(t, s.UpdateOperation("t2", "x"), ErrInvalidOperation)
}

func TestUpdateOperation_FirstTermStoredButIgnored(t *testing.T) {
	s := newSeq(t)
	require.NoError(t, s.UpdateOperation("t1", OpSub))

	assert.Equal(t, OpSub, s.Terms()[0].Operation)
	assert.InDelta(t, 3.2, s.Result().Value, 1e-9)
}

func TestTerms_ReturnsCopy(t *testing.T) {
	s := newSeq(t)
	terms := s.Terms()
	terms[0].Value = 999

	assert.InDelta(t, 3.2, s.Terms()[0].Value, 1e-9)
	assert.True(t, s.Contains("t1"))
	assert.False(t, s.Contains("t9"))
}
