package api

import (
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string   `json:"title" example:"Groceries" validate:"required"`
	Content string   `json:"content" example:"- milk\n- eggs"`
	Tags    []string `json:"tags,omitempty" example:"home,todo"`
	Path    string   `json:"path,omitempty" example:"chores"`
}

// CreatedResponse is returned after a DataObj was stored.
type CreatedResponse struct {
	ID      int             `json:"id" example:"1" validate:"required"`
	DataObj *models.DataObj `json:"dataobj,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

// DataObjListResponse wraps paginated listings.
type DataObjListResponse struct {
	DataObjs []models.Summary `json:"dataobjs" validate:"required"`
	Total    int              `json:"total" example:"42" validate:"required"`
}

// UpdateDataObjRequest carries the mutable fields of a DataObj.
type UpdateDataObjRequest = models.DataObjUpdate

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []search.Hit `json:"results" validate:"required"`
}

// FolderListResponse lists every folder, root first.
type FolderListResponse struct {
	Folders []string `json:"folders" validate:"required"`
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Name string `json:"name" example:"Reading List" validate:"required"`
}

// CreateFolderResponse returns the sanitized folder name.
type CreateFolderResponse struct {
	Name string `json:"name" example:"Reading_List" validate:"required"`
}

// PocketSettingsRequest starts the Pocket authorization flow.
type PocketSettingsRequest struct {
	ConsumerKey string `json:"consumer_key" validate:"required"`
}

// PocketAuthorizeResponse carries the URL the user must visit.
type PocketAuthorizeResponse struct {
	AuthorizeURL string `json:"authorize_url" validate:"required"`
}

// PocketStatusResponse describes the stored Pocket connection.
type PocketStatusResponse struct {
	State    string `json:"state" example:"authorized" validate:"required"`
	Username string `json:"username,omitempty"`
}
