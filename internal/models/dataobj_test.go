package models

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/starford/quire/internal/apperr"
)

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" home", "work", "", "home", "  "})
	want := []string{"home", "work"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags = %v, want %v", got, want)
	}
	if got := NormalizeTags(nil); got == nil || len(got) != 0 {
		t.Errorf("NormalizeTags(nil) = %#v, want empty non-nil", got)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":               "",
		RootFolder:       "",
		"/a/b/":          "a/b",
		`a\b`:            "a/b",
		"a//b":           "a/b",
		"Projects":       "Projects",
		"  Projects/x  ": "Projects/x",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate_Note(t *testing.T) {
	d := &DataObj{Type: TypeNote, Title: "Groceries"}
	if err := d.Validate(); err != nil {
		t.Fatalf("valid note: %v", err)
	}

	d.Title = ""
	if err := d.Validate(); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing title: err = %v", err)
	}

	d = &DataObj{Type: TypeNote, Title: "x", URL: "http://example.com"}
	if err := d.Validate(); err == nil {
		t.Error("note with url should fail")
	}
}

func TestValidate_Bookmark(t *testing.T) {
	d := &DataObj{Type: TypeBookmark, URL: "http://example.com/article"}
	if err := d.Validate(); err != nil {
		t.Fatalf("valid bookmark: %v", err)
	}
	for _, u := range []string{"", "example.com", "ftp://example.com/x", "http://"} {
		d.URL = u
		if err := d.Validate(); err == nil {
			t.Errorf("url %q should fail", u)
		}
	}
}

func TestValidate_TypeAndPath(t *testing.T) {
	d := &DataObj{Type: "video", Title: "x"}
	if err := d.Validate(); err == nil {
		t.Error("unknown type should fail")
	}
	for _, p := range []string{"../etc", "/abs", "a/../b"} {
		d := &DataObj{Type: TypeNote, Title: "x", Path: p}
		if err := d.Validate(); err == nil {
			t.Errorf("path %q should fail", p)
		}
	}
}

func TestNormalizeTruncatesDate(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	d := &DataObj{Date: time.Date(2024, 1, 2, 3, 4, 5, 999, loc), Path: RootFolder}
	d.Normalize()
	if d.Date.Location() != time.UTC || d.Date.Nanosecond() != 0 {
		t.Errorf("date = %v", d.Date)
	}
	if d.Path != "" {
		t.Errorf("path = %q", d.Path)
	}
}

func TestUpdateApply(t *testing.T) {
	d := &DataObj{Title: "old", Content: "body", Tags: []string{"a"}}
	title := "new"
	tags := []string{"b"}
	DataObjUpdate{Title: &title, Tags: &tags}.Apply(d)
	if d.Title != "new" || d.Content != "body" || d.Tags[0] != "b" {
		t.Errorf("apply = %+v", d)
	}
}
