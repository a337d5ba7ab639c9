package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/dataobj"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/ingest"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/pocket"
	"github.com/starford/quire/internal/search"
)

// Handler holds API route handlers.
type Handler struct {
	svc       *dataobj.Service
	bookmarks *ingest.Pipeline
	pocket    *pocket.Session
	syncer    *ingest.Syncer
}

// NewHandler creates a new Handler. bookmarks, session and syncer may be nil,
// in which case the matching routes are not mounted.
func NewHandler(svc *dataobj.Service, bookmarks *ingest.Pipeline, session *pocket.Session, syncer *ingest.Syncer) *Handler {
	return &Handler{svc: svc, bookmarks: bookmarks, pocket: session, syncer: syncer}
}

// wildcardPath extracts the wildcard suffix of the route.
// Supports encoded slashes from OpenAPI clients (e.g. reading%2Fgo).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func idParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id must be a positive integer")
	}
	return id, nil
}

type listQuery struct {
	Types  []models.Type
	Sort   string
	Limit  int
	Offset int
}

func (q listQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Types, validation.Each(validation.In(models.TypeNote, models.TypeBookmark, models.TypeExternalBookmark))),
		validation.Field(&q.Sort, validation.In(index.SortDateDesc, index.SortDateAsc, index.SortTitle, index.SortID)),
		validation.Field(&q.Limit, validation.Min(0), validation.Max(1000)),
		validation.Field(&q.Offset, validation.Min(0)),
	)
}

func parseFilter(q url.Values) (index.Filter, error) {
	lq := listQuery{Sort: q.Get("sort")}
	for _, raw := range q["type"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				lq.Types = append(lq.Types, models.Type(t))
			}
		}
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if lq.Limit, err = strconv.Atoi(v); err != nil {
			return index.Filter{}, apperr.Validation("limit must be an integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if lq.Offset, err = strconv.Atoi(v); err != nil {
			return index.Filter{}, apperr.Validation("offset must be an integer")
		}
	}
	if err := lq.Validate(); err != nil {
		return index.Filter{}, apperr.Validation("%v", err)
	}

	f := index.Filter{Types: lq.Types, Sort: lq.Sort, Limit: lq.Limit, Offset: lq.Offset}
	if q.Has("path") {
		p := models.NormalizePath(q.Get("path"))
		f.Path = &p
	}
	if q.Has("tag") {
		tag := q.Get("tag")
		f.Tag = &tag
	}
	return f, nil
}

// ListDataObjs handles GET /dataobjs.
//
//	@Summary		List data objects with optional filtering
//	@Tags			dataobjs
//	@Produce		json
//	@Param			type	query		string	false	"Comma separated variants"
//	@Param			path	query		string	false	"Exact folder; empty for the root folder"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			sort	query		string	false	"Sort order"	Enums(date_desc, date_asc, title, id)
//	@Success		200		{object}	DataObjListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataobjs [get]
func (h *Handler) ListDataObjs(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, "list dataobjs", err)
		return
	}
	items, total, err := h.svc.GetAll(r.Context(), f)
	if err != nil {
		writeError(w, "list dataobjs", err)
		return
	}
	if items == nil {
		items = []models.Summary{}
	}
	writeJSON(w, http.StatusOK, DataObjListResponse{DataObjs: items, Total: total})
}

// GetDataObj handles GET /dataobjs/{id}. With raw=1 the stored document is
// returned as markdown with front-matter.
//
//	@Summary		Get a single data object
//	@Tags			dataobjs
//	@Produce		json
//	@Param			id	path		int		true	"DataObj id"
//	@Param			raw	query		bool	false	"Return the stored document"
//	@Success		200	{object}	models.DataObj
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataobjs/{id} [get]
func (h *Handler) GetDataObj(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, "get dataobj", err)
		return
	}
	obj, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get dataobj", err)
		return
	}
	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		data, err := parser.Encode(obj)
		if err != nil {
			writeError(w, "get dataobj", err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// UpdateDataObj handles PATCH /dataobjs/{id}.
//
//	@Summary		Update the mutable fields of a data object
//	@Tags			dataobjs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int						true	"DataObj id"
//	@Param			body	body		UpdateDataObjRequest	true	"Fields to change"
//	@Success		200		{object}	models.DataObj
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataobjs/{id} [patch]
func (h *Handler) UpdateDataObj(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, "update dataobj", err)
		return
	}
	var req UpdateDataObjRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	obj, err := h.svc.Update(r.Context(), id, req)
	if err != nil && obj == nil {
		writeError(w, "update dataobj", err)
		return
	}
	if warn := warningOf(err); warn != "" {
		w.Header().Set("Warning", `199 quire "`+warn+`"`)
	}
	writeJSON(w, http.StatusOK, obj)
}

// DeleteDataObj handles DELETE /dataobjs/{id}.
//
//	@Summary		Delete a data object
//	@Tags			dataobjs
//	@Param			id	path	int	true	"DataObj id"
//	@Success		204	"Deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataobjs/{id} [delete]
func (h *Handler) DeleteDataObj(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, "delete dataobj", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete dataobj", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNote handles POST /notes.
//
//	@Summary		Create a new note
//	@Tags			dataobjs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	CreatedResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	obj := &models.DataObj{
		Type:    models.TypeNote,
		Title:   req.Title,
		Tags:    req.Tags,
		Path:    req.Path,
		Content: req.Content,
	}
	id, err := h.svc.Insert(r.Context(), obj)
	if err != nil && !errors.Is(err, apperr.ErrIndexInconsistency) {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id, DataObj: obj, Warning: warningOf(err)})
}

// CreateBookmark handles POST /bookmarks. The page is fetched and its readable
// content stored alongside the bookmark.
//
//	@Summary		Bookmark a URL
//	@Tags			dataobjs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ingest.BookmarkRequest	true	"Bookmark to add"
//	@Success		201		{object}	CreatedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bookmarks [post]
func (h *Handler) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req ingest.BookmarkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	obj, err := h.bookmarks.Add(r.Context(), req)
	if obj == nil {
		writeError(w, "create bookmark", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: obj.ID, DataObj: obj, Warning: warningOf(err)})
}

// ListFolders handles GET /folders.
//
//	@Summary		List folders, root first
//	@Tags			folders
//	@Produce		json
//	@Success		200	{object}	FolderListResponse
//	@Security		BearerAuth
//	@Router			/folders [get]
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	dirs, err := h.svc.ListDirs(r.Context())
	if err != nil {
		writeError(w, "list folders", err)
		return
	}
	writeJSON(w, http.StatusOK, FolderListResponse{Folders: dirs})
}

// CreateFolder handles POST /folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFolderRequest	true	"Folder name"
//	@Success		201		{object}	CreateFolderResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name, err := h.svc.CreateDir(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateFolderResponse{Name: name})
}

// DeleteFolder handles DELETE /folders/*. Documents inside move to the root folder.
//
//	@Summary		Delete a folder
//	@Tags			folders
//	@Param			name	path	string	true	"Folder name"
//	@Success		204		"Deleted"
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{name} [delete]
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	name := wildcardPath(r)
	if name == "" {
		writeError(w, "delete folder", apperr.Validation("folder name is required"))
		return
	}
	if err := h.svc.DeleteDir(r.Context(), name); err != nil {
		writeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /search. An empty query yields no results.
//
//	@Summary		Full-text search across data objects
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []search.Hit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Reindex handles POST /reindex. With full=1 every document is re-projected.
//
//	@Summary		Rebuild the indexes from the document store
//	@Tags			admin
//	@Produce		json
//	@Param			full	query		bool	false	"Ignore checksums"
//	@Success		200		{object}	dataobj.RebuildReport
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	rep, err := h.svc.Rebuild(r.Context(), full)
	if err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// PocketStatus handles GET /pocket.
//
//	@Summary		Show the Pocket connection state
//	@Tags			pocket
//	@Produce		json
//	@Success		200	{object}	PocketStatusResponse
//	@Security		BearerAuth
//	@Router			/pocket [get]
func (h *Handler) PocketStatus(w http.ResponseWriter, r *http.Request) {
	creds, err := h.pocket.Status()
	if err != nil {
		writeError(w, "pocket status", err)
		return
	}
	writeJSON(w, http.StatusOK, PocketStatusResponse{State: string(creds.State), Username: creds.Username})
}

// PocketSettings handles POST /pocket/settings and starts the OAuth handshake.
//
//	@Summary		Connect a Pocket account
//	@Tags			pocket
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PocketSettingsRequest	true	"Consumer key"
//	@Success		200		{object}	PocketAuthorizeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pocket/settings [post]
func (h *Handler) PocketSettings(w http.ResponseWriter, r *http.Request) {
	var req PocketSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	authURL, err := h.pocket.Begin(r.Context(), req.ConsumerKey)
	if err != nil {
		writeError(w, "pocket settings", err)
		return
	}
	writeJSON(w, http.StatusOK, PocketAuthorizeResponse{AuthorizeURL: authURL})
}

// PocketCallback handles GET /pocket/callback, the redirect target after the
// user approved access.
//
//	@Summary		Finish the Pocket handshake
//	@Tags			pocket
//	@Produce		json
//	@Param			state	query		string	true	"Nonce echoed by Pocket"
//	@Success		200		{object}	PocketStatusResponse
//	@Failure		403		{object}	errResponse
//	@Router			/pocket/callback [get]
func (h *Handler) PocketCallback(w http.ResponseWriter, r *http.Request) {
	creds, err := h.pocket.Complete(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, "pocket callback", err)
		return
	}
	writeJSON(w, http.StatusOK, PocketStatusResponse{State: string(creds.State), Username: creds.Username})
}

// PocketSync handles POST /pocket/sync.
//
//	@Summary		Import new Pocket items
//	@Tags			pocket
//	@Produce		json
//	@Success		200	{object}	ingest.SyncReport
//	@Failure		403	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pocket/sync [post]
func (h *Handler) PocketSync(w http.ResponseWriter, r *http.Request) {
	rep, err := h.syncer.Run(r.Context())
	if err != nil {
		writeError(w, "pocket sync", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
