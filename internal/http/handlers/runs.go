package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *App) RunStatus(w http.ResponseWriter, r *http.Request) {
	run, err := a.Runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, run)
}
