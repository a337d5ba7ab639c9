package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	// The Pocket redirect arrives from the user's browser without a token;
	// the nonce check in the session guards it.
	if h.pocket != nil {
		r.Get("/pocket/callback", h.PocketCallback)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// DataObjs.
		r.Get("/dataobjs", h.ListDataObjs)
		r.Get("/dataobjs/{id}", h.GetDataObj)
		r.Patch("/dataobjs/{id}", h.UpdateDataObj)
		r.Delete("/dataobjs/{id}", h.DeleteDataObj)
		r.Post("/notes", h.CreateNote)
		if h.bookmarks != nil {
			r.Post("/bookmarks", h.CreateBookmark)
		}

		// Folders.
		r.Get("/folders", h.ListFolders)
		r.Post("/folders", h.CreateFolder)
		r.Delete("/folders/*", h.DeleteFolder)

		// Search and maintenance.
		r.Get("/search", h.Search)
		r.Post("/reindex", h.Reindex)

		if h.pocket != nil {
			r.Get("/pocket", h.PocketStatus)
			r.Post("/pocket/settings", h.PocketSettings)
			if h.syncer != nil {
				r.Post("/pocket/sync", h.PocketSync)
			}
		}

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
