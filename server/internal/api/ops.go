package api

import (
	"errors"
	"fmt"

	"github.com/errprop/errprop/pkg/propagation"
	"github.com/errprop/errprop/server/internal/metrics"
	"github.com/errprop/errprop/server/internal/store"
)

// The session mutations below are shared by the JSON API and the HTML form
// so that both validate and count the same way. reg must not be nil.

// AppendTerm parses req and appends it to the session. On any error the
// session is left unchanged and the rejection is counted by reason.
func AppendTerm(st *store.Store, reg *metrics.Registry, sessionID string, req TermRequest) (store.Snapshot, error) {
	in, err := propagation.ParseTerm(string(req.Value), string(req.Error), req.Unit, req.Operation)
	if err != nil {
		if _, ok := st.Get(sessionID); !ok {
			return store.Snapshot{}, fmt.Errorf("%w: %q", store.ErrNotFound, sessionID)
		}
		reg.TermsRejected.WithLabelValues(RejectReason(err)).Inc()
		return store.Snapshot{}, err
	}

	snap, err := st.Update(sessionID, func(seq *propagation.Sequence) error {
		_, err := seq.Append(in)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return snap, err
	case err != nil:
		reg.TermsRejected.WithLabelValues(RejectReason(err)).Inc()
		return snap, err
	}
	reg.TermsAppended.Inc()
	return snap, nil
}

// RemoveTerm removes termID from the session. removed is false, without an
// error, when termID is the last remaining term.
func RemoveTerm(st *store.Store, reg *metrics.Registry, sessionID, termID string) (snap store.Snapshot, removed bool, err error) {
	snap, err = st.Update(sessionID, func(seq *propagation.Sequence) error {
		if !seq.Contains(termID) {
			return fmt.Errorf("%w: %q", propagation.ErrTermNotFound, termID)
		}
		removed = seq.Remove(termID)
		return nil
	})
	if err != nil {
		return snap, false, err
	}
	if removed {
		reg.TermsRemoved.Inc()
	}
	return snap, removed, nil
}

// UpdateOperation sets the operation of termID in place.
func UpdateOperation(st *store.Store, reg *metrics.Registry, sessionID, termID, op string) (store.Snapshot, error) {
	if op == "" {
		return store.Snapshot{}, fmt.Errorf("%w: operation is required", propagation.ErrInvalidOperation)
	}
	operation, err := propagation.ParseOperation(op)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap, err := st.Update(sessionID, func(seq *propagation.Sequence) error {
		return seq.UpdateOperation(termID, operation)
	})
	if err != nil {
		return snap, err
	}
	reg.OperationsUpdated.Inc()
	return snap, nil
}

// RejectReason labels an append failure for the rejected-terms counter.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, propagation.ErrInvalidTerm):
		return "invalid_term"
	case errors.Is(err, propagation.ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, propagation.ErrNegativeError):
		return "negative_error"
	case errors.Is(err, propagation.ErrMixedUnits):
		return "mixed_units"
	case errors.Is(err, propagation.ErrTooManyTerms):
		return "too_many_terms"
	default:
		return "other"
	}
}
