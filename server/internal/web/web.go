package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"github.com/errprop/errprop/pkg/propagation"
	"github.com/errprop/errprop/pkg/slides"
	"github.com/errprop/errprop/server/internal/api"
	"github.com/errprop/errprop/server/internal/metrics"
	"github.com/errprop/errprop/server/internal/store"
)

// Options wires the web UI to its collaborators. Store and Presenter are
// required.
type Options struct {
	Store       *store.Store
	Presenter   *api.Presenter
	Metrics     *metrics.Registry
	Notifier    api.Notifier
	Deck        *slides.Deck
	DefaultUnit string
}

// Handler renders the calculator pages.
type Handler struct {
	store     *store.Store
	presenter *api.Presenter
	metrics   *metrics.Registry
	notifier  api.Notifier
	deck      *slides.Deck
	decoder   *schema.Decoder
	tmpl      *template.Template
	router    chi.Router

	mu          sync.RWMutex
	defaultUnit string
}

// Form holds the add-term fields as typed.
type Form struct {
	Value     string
	Error     string
	Unit      string
	Operation string
}

// Row is one entry of the term list.
type Row struct {
	api.TermResponse
	First bool
}

// Page is the data for session.html.
type Page struct {
	Session    api.SessionResponse
	Terms      []Row
	CanRemove  bool
	Form       Form
	Error      string
	Example    *slides.Slide
	Operations []string
}

// New parses the embedded templates and registers the routes.
func New(opts Options) (*Handler, error) {
	tmpl, err := template.ParseFS(Templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	h := &Handler{
		store:       opts.Store,
		presenter:   opts.Presenter,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		deck:        opts.Deck,
		decoder:     api.NewFormDecoder(),
		tmpl:        tmpl,
		defaultUnit: opts.DefaultUnit,
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.notifier == nil {
		h.notifier = nopNotifier{}
	}

	r := chi.NewRouter()
	r.Get("/", h.newSession)
	r.Get("/slides", h.slides)
	r.Route("/s/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Post("/terms", h.appendTerm)
		r.Post("/terms/{termID}/remove", h.removeTerm)
		r.Post("/terms/{termID}/operation", h.updateOperation)
	})
	h.router = r
	return h, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// SetDefaultUnit changes the unit pre-filled in the add form.
func (h *Handler) SetDefaultUnit(unit string) {
	h.mu.Lock()
	h.defaultUnit = unit
	h.mu.Unlock()
}

func (h *Handler) blankForm() Form {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Form{Unit: h.defaultUnit, Operation: string(propagation.OpAdd)}
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) newSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Create()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.SessionsCreated.Inc()
	http.Redirect(w, r, sessionPath(snap.ID), http.StatusSeeOther)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.store.Touch(id)
	snap, ok := h.store.Get(id)
	if !ok {
		h.notFound(w, "This session does not exist or has expired.")
		return
	}
	h.renderSession(w, http.StatusOK, snap, h.blankForm(), "")
}

func (h *Handler) appendTerm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req api.TermRequest
	if err := h.decodeForm(r, &req); err != nil {
		h.rerender(w, r, id, Form{}, err)
		return
	}

	if _, err := api.AppendTerm(h.store, h.metrics, id, req); err != nil {
		h.rerender(w, r, id, Form{
			Value:     string(req.Value),
			Error:     string(req.Error),
			Unit:      req.Unit,
			Operation: req.Operation,
		}, err)
		return
	}
	h.notifier.Notify(id)
	http.Redirect(w, r, sessionPath(id), http.StatusSeeOther)
}

func (h *Handler) removeTerm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, removed, err := api.RemoveTerm(h.store, h.metrics, id, chi.URLParam(r, "termID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if removed {
		h.notifier.Notify(id)
	}
	http.Redirect(w, r, sessionPath(id), http.StatusSeeOther)
}

func (h *Handler) updateOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req api.OperationRequest
	if err := h.decodeForm(r, &req); err != nil {
		h.rerender(w, r, id, h.blankForm(), err)
		return
	}

	_, err := api.UpdateOperation(h.store, h.metrics, id, chi.URLParam(r, "termID"), req.Operation)
	if err != nil {
		h.rerender(w, r, id, h.blankForm(), err)
		return
	}
	h.notifier.Notify(id)
	http.Redirect(w, r, sessionPath(id), http.StatusSeeOther)
}

func (h *Handler) slides(w http.ResponseWriter, r *http.Request) {
	if h.deck == nil {
		http.NotFound(w, r)
		return
	}
	h.render(w, http.StatusOK, "slides.html", h.deck)
}

// --- helpers ----------------------------------------------------------------

func sessionPath(id string) string {
	return "/s/" + id
}

func (h *Handler) decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: %v", propagation.ErrInvalidTerm, err)
	}
	if err := h.decoder.Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("%w: %v", propagation.ErrInvalidTerm, err)
	}
	return nil
}

// rerender shows the session again with cause as the message. Validation
// failures keep form; anything else goes through fail.
func (h *Handler) rerender(w http.ResponseWriter, r *http.Request, id string, form Form, cause error) {
	code := api.StatusFor(cause)
	if code != http.StatusUnprocessableEntity && code != http.StatusConflict {
		h.fail(w, r, cause)
		return
	}
	snap, ok := h.store.Get(id)
	if !ok {
		h.notFound(w, "This session does not exist or has expired.")
		return
	}
	h.renderSession(w, code, snap, form, cause.Error())
}

func (h *Handler) renderSession(w http.ResponseWriter, code int, snap store.Snapshot, form Form, msg string) {
	resp := h.presenter.Session(snap)
	h.metrics.ResultsComputed.Inc()
	page := Page{
		Session:    resp,
		Terms:      make([]Row, 0, len(resp.Terms)),
		CanRemove:  len(resp.Terms) > 1,
		Form:       form,
		Error:      msg,
		Operations: []string{string(propagation.OpAdd), string(propagation.OpSub)},
	}
	for i, t := range resp.Terms {
		page.Terms = append(page.Terms, Row{TermResponse: t, First: i == 0})
	}
	if h.deck != nil {
		if ex, ok := h.deck.Find("example"); ok {
			page.Example = &ex
		}
	}
	h.render(w, code, "session.html", page)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := api.StatusFor(err)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.notFound(w, "This session does not exist or has expired.")
	case code >= http.StatusInternalServerError:
		slog.Error("web: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, http.StatusText(code), code)
	default:
		http.Error(w, err.Error(), code)
	}
}

func (h *Handler) notFound(w http.ResponseWriter, msg string) {
	h.render(w, http.StatusNotFound, "notfound.html", msg)
}

// render executes name into a buffer so that a template error never leaves
// a half-written page.
func (h *Handler) render(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("web: render template", "template", name, "err", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf.Bytes()) //nolint:errcheck
}
