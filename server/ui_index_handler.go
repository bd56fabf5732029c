package server

import (
	"net/http"
)

// IndexHandler sends the home page to the dashboard; the route guard there decides
// whether the visitor signs in first
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
	}
}
