package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

func createResourceHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateResourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		kind, err := registry.ParseKind(req.Kind)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "invalid_name", "name is required")
			return
		}

		res, err := store.CreateResource(r.Context(), kind, req.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toResourceResponse(res))
	}
}

func listResourcesHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var kind *registry.ResourceKind
		if k := r.URL.Query().Get("kind"); k != "" {
			parsed, err := registry.ParseKind(k)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			kind = &parsed
		}

		resources, err := store.ListResources(r.Context(), kind)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]ResourceResponse, 0, len(resources))
		for i := range resources {
			out = append(out, toResourceResponse(&resources[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func retireResourceHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
			return
		}

		if err := store.RetireResource(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
