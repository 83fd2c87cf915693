package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
)

func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	items, err := a.History.Items(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.HistoryItem{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) HistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Clear(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
