package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/schema"

	"github.com/errprop/errprop/pkg/propagation"
	"github.com/errprop/errprop/pkg/slides"
	"github.com/errprop/errprop/server/internal/metrics"
	"github.com/errprop/errprop/server/internal/store"
)

// maxBodyBytes bounds request bodies; a term list request is tiny.
const maxBodyBytes = 64 << 10

// Notifier is told about every change to a session. The WebSocket hub
// implements it.
type Notifier interface {
	Notify(sessionID string)
}

// nopNotifier is used when no Notifier is configured.
type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Options wires a Handler to its collaborators. Store and Presenter are
// required; the rest are optional.
type Options struct {
	Store     *store.Store
	Presenter *Presenter
	Metrics   *metrics.Registry
	Notifier  Notifier
	Deck      *slides.Deck

	// Auth wraps every /api/v1 route except /health.
	Auth func(http.Handler) http.Handler

	// AllowedOrigins enables CORS for browser clients on other origins.
	AllowedOrigins []string
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store     *store.Store
	presenter *Presenter
	metrics   *metrics.Registry
	notifier  Notifier
	deck      *slides.Deck
	decoder   *schema.Decoder
	router    chi.Router
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{
		store:     opts.Store,
		presenter: opts.Presenter,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		deck:      opts.Deck,
		decoder:   NewFormDecoder(),
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.notifier == nil {
		h.notifier = nopNotifier{}
	}
	authMW := opts.Auth
	if authMW == nil {
		authMW = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Group(func(r chi.Router) {
			r.Use(authMW)

			r.Post("/evaluate", h.evaluate)
			r.Get("/slides", h.slides)

			r.Post("/sessions", h.createSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.deleteSession)
				r.Get("/result", h.getResult)
				r.Post("/terms", h.appendTerm)
				r.Patch("/terms/{termID}", h.updateOperation)
				r.Delete("/terms/{termID}", h.removeTerm)
			})
		})
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// NewFormDecoder returns the gorilla/schema decoder used for form bodies.
// Unknown keys (submit buttons, CSRF fields) are ignored.
func NewFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		SessionCount: h.store.LiveCount(),
	})
}

// createSession handles POST /api/v1/sessions.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Create()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.SessionsCreated.Inc()
	slog.Debug("api: session created", "session", snap.ID)
	jsonResp(w, http.StatusCreated, h.session(snap))
}

// getSession handles GET /api/v1/sessions/{id}.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	jsonResp(w, http.StatusOK, h.session(snap))
}

// deleteSession handles DELETE /api/v1/sessions/{id}.
func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.store.Delete(id) {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	h.notifier.Notify(id)
	w.WriteHeader(http.StatusNoContent)
}

// getResult handles GET /api/v1/sessions/{id}/result.
func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	h.metrics.ResultsComputed.Inc()
	jsonResp(w, http.StatusOK, h.presenter.Result(snap.Terms, snap.Result))
}

// appendTerm handles POST /api/v1/sessions/{id}/terms with a JSON or
// form-encoded body.
func (h *Handler) appendTerm(w http.ResponseWriter, r *http.Request) {
	var req TermRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	snap, err := AppendTerm(h.store, h.metrics, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.notifier.Notify(id)
	jsonResp(w, http.StatusCreated, h.session(snap))
}

// updateOperation handles PATCH /api/v1/sessions/{id}/terms/{termID}.
func (h *Handler) updateOperation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	snap, err := UpdateOperation(h.store, h.metrics, id, chi.URLParam(r, "termID"), req.Operation)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.notifier.Notify(id)
	jsonResp(w, http.StatusOK, h.session(snap))
}

// removeTerm handles DELETE /api/v1/sessions/{id}/terms/{termID}. Removing the
// last term is a no-op reported with removed=false.
func (h *Handler) removeTerm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, removed, err := RemoveTerm(h.store, h.metrics, id, chi.URLParam(r, "termID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if removed {
		h.notifier.Notify(id)
	}
	jsonResp(w, http.StatusOK, RemoveResponse{Removed: removed, Session: h.session(snap)})
}

// evaluate handles POST /api/v1/evaluate: aggregate a term list without
// creating a session. The first term's operation is ignored as usual.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Terms) == 0 {
		jsonErr(w, http.StatusUnprocessableEntity, "at least one term is required")
		return
	}

	var seq *propagation.Sequence
	for i, tr := range req.Terms {
		in, err := propagation.ParseTerm(string(tr.Value), string(tr.Error), tr.Unit, tr.Operation)
		if err == nil {
			if i == 0 {
				seq, err = propagation.NewSequence(in, propagation.WithPolicy(h.store.Policy()))
			} else {
				_, err = seq.Append(in)
			}
		}
		if err != nil {
			h.fail(w, r, fmt.Errorf("term %d: %w", i, err))
			return
		}
	}

	terms := seq.Terms()
	h.metrics.ResultsComputed.Inc()
	jsonResp(w, http.StatusOK, EvaluateResponse{
		Terms:  toTermResponses(terms),
		Result: h.presenter.Result(terms, seq.Result()),
	})
}

// slides returns GET /api/v1/slides.
func (h *Handler) slides(w http.ResponseWriter, r *http.Request) {
	if h.deck == nil {
		jsonErr(w, http.StatusNotFound, "no slide deck loaded")
		return
	}
	jsonResp(w, http.StatusOK, h.deck)
}

// --- helpers ----------------------------------------------------------------

// decodeBody decodes a JSON body, or a form body when the request says so.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("parse form: %w", err)
		}
		if err := h.decoder.Decode(dst, r.PostForm); err != nil {
			return fmt.Errorf("decode form: %w", err)
		}
		return nil
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// session renders snap for a response and counts the result served.
func (h *Handler) session(snap store.Snapshot) SessionResponse {
	h.metrics.ResultsComputed.Inc()
	return h.presenter.Session(snap)
}

// fail maps err to a status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	jsonErr(w, code, err.Error())
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, propagation.ErrTermNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, propagation.ErrTooManyTerms):
		return http.StatusConflict
	case errors.Is(err, propagation.ErrInvalidTerm),
		errors.Is(err, propagation.ErrInvalidOperation),
		errors.Is(err, propagation.ErrNegativeError),
		errors.Is(err, propagation.ErrMixedUnits):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: strings.TrimSpace(msg)})
}
