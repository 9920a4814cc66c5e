package transport

import (
	"net/http"

	"github.com/pitabwire/repairdesk/internal/metadata"
)

func handleNavigation(menu *metadata.MenuProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := requestScope(w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, menu.GetMenu(sc.caps))
	}
}
