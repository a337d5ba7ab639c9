// Package models defines the domain types for quire.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/apperr"
)

// Type is the variant tag of a DataObj.
type Type string

// DataObj variants.
const (
	TypeNote             Type = "note"
	TypeBookmark         Type = "bookmark"
	TypeExternalBookmark Type = "external_bookmark"
)

// RootFolder is the display name of the unnamed root folder.
const RootFolder = "not classified"

// Types lists every known variant.
var Types = []Type{TypeNote, TypeBookmark, TypeExternalBookmark}

// IsBookmark reports whether the variant carries a source URL.
func (t Type) IsBookmark() bool {
	return t == TypeBookmark || t == TypeExternalBookmark
}

// Valid reports whether t is a known variant.
func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

// DataObj is a knowledge item: a note or a bookmark.
// Every field except Content is persisted in the document front-matter.
type DataObj struct {
	ID         int       `yaml:"id" json:"id"`
	Type       Type      `yaml:"type" json:"type"`
	Title      string    `yaml:"title" json:"title"`
	Tags       []string  `yaml:"tags" json:"tags"`
	Path       string    `yaml:"path" json:"path"`
	Date       time.Time `yaml:"date" json:"date"`
	URL        string    `yaml:"url,omitempty" json:"url,omitempty"`
	Desc       string    `yaml:"desc,omitempty" json:"desc,omitempty"`
	ExternalID string    `yaml:"external_id,omitempty" json:"external_id,omitempty"`
	Content    string    `yaml:"-" json:"content"`
}

// Summary is the metadata of a DataObj as mirrored by the metadata index.
type Summary struct {
	ID         int       `json:"id"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Tags       []string  `json:"tags"`
	Path       string    `json:"path"`
	Date       time.Time `json:"date"`
	URL        string    `json:"url,omitempty"`
	Desc       string    `json:"desc,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
}

// Summary returns the metadata portion of d.
func (d *DataObj) Summary() Summary {
	return Summary{
		ID:         d.ID,
		Type:       d.Type,
		Title:      d.Title,
		Tags:       d.Tags,
		Path:       d.Path,
		Date:       d.Date,
		URL:        d.URL,
		Desc:       d.Desc,
		ExternalID: d.ExternalID,
	}
}

// Normalize canonicalises tags and path in place.
func (d *DataObj) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.URL = strings.TrimSpace(d.URL)
	d.Tags = NormalizeTags(d.Tags)
	d.Path = NormalizePath(d.Path)
	if !d.Date.IsZero() {
		d.Date = d.Date.UTC().Truncate(time.Second)
	}
}

// Validate checks the variant rules of d. The returned error wraps apperr.ErrValidation.
func (d *DataObj) Validate() error {
	err := validation.ValidateStruct(d,
		validation.Field(&d.Type, validation.Required, validation.In(TypeNote, TypeBookmark, TypeExternalBookmark)),
		validation.Field(&d.Title, validation.When(d.Type == TypeNote, validation.Required)),
		validation.Field(&d.URL,
			validation.When(d.Type.IsBookmark(), validation.Required, validation.By(httpURL)).
				Else(validation.Empty)),
		validation.Field(&d.Path, validation.By(folderPath)),
		validation.Field(&d.Tags, validation.Each(validation.Length(1, 64))),
	)
	if err != nil {
		return apperr.Validation("%v", err)
	}
	return nil
}

func httpURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

func folderPath(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "/") || strings.Contains(s, "\\") {
		return errors.New("must be relative and slash separated")
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid component %q", part)
		}
	}
	return nil
}

// NormalizeTags trims, drops empty entries, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NormalizePath maps the root folder label to "" and cleans slash separated paths.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == RootFolder {
		return ""
	}
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// DataObjUpdate holds the mutable fields of a DataObj. Nil fields are left untouched.
type DataObjUpdate struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Desc    *string   `json:"desc,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

// Apply copies the set fields of u onto d.
func (u DataObjUpdate) Apply(d *DataObj) {
	if u.Title != nil {
		d.Title = *u.Title
	}
	if u.Content != nil {
		d.Content = *u.Content
	}
	if u.Desc != nil {
		d.Desc = *u.Desc
	}
	if u.Tags != nil {
		d.Tags = *u.Tags
	}
}

// ExternalItem is a bookmark pulled from a third-party bookmarking service.
type ExternalItem struct {
	ID        string
	URL       string
	Title     string
	Excerpt   string
	IsArticle bool
	Archived  bool
	AddedAt   time.Time
}
