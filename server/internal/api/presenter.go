package api

import (
	"sync"
	"time"

	"github.com/errprop/errprop/pkg/propagation"
	"github.com/errprop/errprop/server/internal/store"
)

// Formula is the propagation rule shown under every result.
const Formula = "δR = δA + δB + δC + ..."

// Presenter turns store snapshots into response payloads with the current
// display precision. The precision can be swapped at runtime (config
// hot-reload); Presenter is safe for concurrent use.
type Presenter struct {
	mu        sync.RWMutex
	precision propagation.Precision
}

// NewPresenter returns a Presenter using precision p.
func NewPresenter(p propagation.Precision) *Presenter {
	return &Presenter{precision: p}
}

// SetPrecision replaces the display precision.
func (p *Presenter) SetPrecision(prec propagation.Precision) {
	p.mu.Lock()
	p.precision = prec
	p.mu.Unlock()
}

// Precision returns the active display precision.
func (p *Presenter) Precision() propagation.Precision {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.precision
}

// Session builds the full payload for one session snapshot.
func (p *Presenter) Session(snap store.Snapshot) SessionResponse {
	return SessionResponse{
		ID:        snap.ID,
		Terms:     toTermResponses(snap.Terms),
		Result:    p.Result(snap.Terms, snap.Result),
		CreatedAt: snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Revision:  snap.Revision,
	}
}

// Result renders r, derived from terms, with diagnostics.
func (p *Presenter) Result(terms []propagation.Term, r propagation.Result) ResultResponse {
	d := propagation.Detail(r, p.Precision())
	return ResultResponse{
		Value:            r.Value,
		Error:            r.Error,
		Unit:             r.Unit,
		RelativeErrorPct: propagation.RelativeErrorPct(r),
		Headline:         d.Headline,
		DetailValue:      d.Value,
		DetailError:      d.Error,
		Relative:         d.Relative,
		Formula:          Formula,
		Diagnostics:      computeDiagnostics(terms, r),
	}
}

func toTermResponses(terms []propagation.Term) []TermResponse {
	out := make([]TermResponse, 0, len(terms))
	for _, t := range terms {
		out = append(out, TermResponse{
			ID:        t.ID,
			Value:     t.Value,
			Error:     t.Error,
			Unit:      t.Unit,
			Operation: string(t.Operation),
			Display:   propagation.Chip(t),
		})
	}
	return out
}
