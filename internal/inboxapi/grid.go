package inboxapi

import (
	"net/http"
)

func (a *API) handleGrid(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	g, err := a.svc.GetGrid(r.Context(), owner)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.writeJSON(r.Context(), w, http.StatusOK, g)
}
