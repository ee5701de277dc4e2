package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/dashboard"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

const maxRequestBodySize = 1 << 20

// Dashboard is the session service exposed over HTTP and MCP.
type Dashboard interface {
	Pull(ctx context.Context, kind *resource.Kind) ([]dashboard.Entity, error)
	List(kind *resource.Kind) ([]dashboard.Entity, error)
	Get(kind *resource.Kind, id string) (dashboard.Entity, error)
	Edit(kind *resource.Kind, id string, fn func(rec tracker.Record) error) (dashboard.Entity, error)
	Changes(kind *resource.Kind, id string) (tracker.Delta, error)
	Save(ctx context.Context, kind *resource.Kind, id string) (dashboard.Entity, error)
	Discard(kind *resource.Kind, id string) (dashboard.Entity, error)
}

type SessionDeps struct {
	Dashboard Dashboard
	Token     string
}

// EntityView is the JSON shape of a session.
type EntityView struct {
	Kind    string         `json:"kind"`
	ID      string         `json:"id"`
	Current tracker.Record `json:"current"`
	Changed []string       `json:"changed"`
	Saving  bool           `json:"saving"`
}

func viewOf(e dashboard.Entity) EntityView {
	changed := e.Delta().Fields(e.Kind.Fields)
	if changed == nil {
		changed = []string{}
	}
	return EntityView{Kind: e.Kind.Name, ID: e.ID, Current: e.Current, Changed: changed, Saving: e.Saving}
}

// NewHandler returns the local API: /health is open, everything under
// /sessions requires the bearer token.
func NewHandler(deps SessionDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Route("/sessions/{kind}", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(withKind)

		r.Get("/", handleListSessions(deps))
		r.Post("/pull", handlePull(deps))
		r.Get("/{id}", handleGetSession(deps))
		r.Patch("/{id}", handlePatchSession(deps))
		r.Get("/{id}/changes", handleChanges(deps))
		r.Delete("/{id}/changes", handleDiscard(deps))
		r.Post("/{id}/save", handleSave(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type kindKey struct{}

func withKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := resource.Lookup(chi.URLParam(r, "kind"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), kindKey{}, kind)))
	})
}

func kindFrom(r *http.Request) *resource.Kind {
	return r.Context().Value(kindKey{}).(*resource.Kind)
}

func handleListSessions(deps SessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities, err := deps.Dashboard.List(kindFrom(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		views := make([]EntityView, len(entities))
		for i, e := range entities {
			views[i] = viewOf(e)
		}
		writeJSON(w, views)
	}
}

func handlePull(deps SessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities, err := deps.Dashboard.Pull(r.Context(), kindFrom(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]any{"status": "pulled", "count": len(entities)})
	}
}

func handleGetSession(deps SessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := deps.Dashboard.Get(kindFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, viewOf(e))
	}
}

// handlePatchSession replaces whole field values. Images may only reference
// durable URLs here; files are attached through the CLI.
func handlePatchSession(deps SessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := kindFrom(r)
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no fields to set")
			return
		}

		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		parsed := make(map[string]any, len(fields))
		for _, name := range names {
			v, err := kind.ParseValue(name, fields[name])
			if err != nil {
				writeDomainError(w, err)
				return
			}
			parsed[name] = v
		}
		if err := tracker.EnsureResolved(parsed); err != nil {
			writeDomainError(w, err)
			return
		}

		e, err := deps.Dashboard.Edit(kind, chi.URLParam(r, "id"), func(rec tracker.Record) error {
			for name, v := range parsed {
				rec[name] = v
			}
			return nil
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, viewOf(e))
	}
}

func handleChanges(deps SessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		delta, err := deps.Dashboard.Changes(kindFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if delta == nil {
			delta = tracker.Delta{}
		}
		writeJSON(w, delta)
	}
}

func handleDiscard(deps SessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := deps.Dashboard.Discard(kindFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, viewOf(e))
	}
}

func handleSave(deps SessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := deps.Dashboard.Save(r.Context(), kindFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, viewOf(e))
	}
}
