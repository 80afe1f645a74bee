package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/applet"
	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
)

// API serves /api/v1.
type API struct {
	hub         *Hub
	resolver    ld.DocumentResolver
	catalogPath string
	concurrency int
	validator   *requestValidator
}

// NewAPI creates the API. catalogPath may be empty, in which case the
// activities endpoint answers CATALOG-001.
func NewAPI(ctx context.Context, hub *Hub, resolver ld.DocumentResolver, catalogPath string) (*API, error) {
	v, err := newRequestValidator(ctx)
	if err != nil {
		return nil, err
	}
	return &API{
		hub:         hub,
		resolver:    resolver,
		catalogPath: catalogPath,
		concurrency: applet.DefaultConcurrency,
		validator:   v,
	}, nil
}

// Routes returns the /api/v1 router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(a.validator.middleware)

	r.Get("/openapi.yaml", a.handleOpenAPI)
	r.Get("/activities", a.handleListActivities)
	r.Post("/sessions", a.handleCreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", a.handleGetSession)
		r.Delete("/", a.handleDeleteSession)
		r.Post("/next", a.navigate(func(c *activity.Controller) error { return c.GoNext() }))
		r.Post("/back", a.navigate(func(c *activity.Controller) error { return c.GoBack() }))
		r.Put("/response", a.handleSaveResponse)
		r.Post("/reload", a.handleReload)
	})
	return r
}

func (a *API) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPISpec)
}

type catalogView struct {
	Name       string           `json:"name"`
	Activities []applet.Summary `json:"activities"`
}

func (a *API) handleListActivities(w http.ResponseWriter, r *http.Request) {
	if a.catalogPath == "" {
		writeError(w, r, aferrors.NewCatalogNotFoundError("(not configured)"))
		return
	}

	catalog, err := applet.LoadCatalog(a.catalogPath)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summaries, err := applet.Summarize(r.Context(), a.resolver, catalog.Activities, a.concurrency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalogView{Name: catalog.Name, Activities: summaries})
}

type createSessionRequest struct {
	ActivityRef string `json:"activity_ref"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, aferrors.NewInvalidRequestError(err))
		return
	}

	l, err := a.hub.Create(r.Context(), req.ActivityRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.respond(w, r, l, http.StatusCreated)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	l, err := a.hub.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.respond(w, r, l, http.StatusOK)
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.hub.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) navigate(move func(*activity.Controller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := a.hub.Do(r.Context(), chi.URLParam(r, "id"), move)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a.respond(w, r, l, http.StatusOK)
	}
}

type saveResponseRequest struct {
	Value any `json:"value"`
}

func (a *API) handleSaveResponse(w http.ResponseWriter, r *http.Request) {
	var req saveResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, aferrors.NewInvalidRequestError(err))
		return
	}

	l, err := a.hub.Do(r.Context(), chi.URLParam(r, "id"), func(c *activity.Controller) error {
		return c.SaveResponse(req.Value)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.respond(w, r, l, http.StatusOK)
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	l, err := a.hub.Reload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.respond(w, r, l, http.StatusOK)
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, l *Live, status int) {
	l.mu.Lock()
	view, err := buildView(r.Context(), l)
	l.mu.Unlock()

	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
