package mcpserver

// DataObjFormatContract describes how quire stores a data object on disk.
// LLM consumers read it before creating notes or bookmarks.
const DataObjFormatContract = `# quire Data Object Format

Every data object is one Markdown file named ` + "`" + `<id>-<yyyymmdd>-<title-slug>.md` + "`" + `
inside its folder.
The file starts with a YAML front-matter block followed by the body.

## Structure

` + "```" + `markdown
---
id: 12                               # assigned by quire, never reused
type: note                           # note | bookmark | external_bookmark
title: Human-readable title          # required for notes
tags:                                # deduplicated, sorted
  - reading
path: reading_list                   # folder; empty for the root folder
date: 2025-01-20T09:30:00Z           # creation time, UTC
url: https://example.com/post        # bookmarks only
desc: One line summary               # bookmarks only, optional
external_id: "229279689"             # imported bookmarks only
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **Do not pick ids.** Use the ` + "`" + `create_note` + "`" + ` or ` + "`" + `add_bookmark` + "`" + ` tools; quire assigns
   the id and the date.
2. **Notes need a title.** Bookmarks need an absolute http(s) URL and may omit the title,
   in which case it is taken from the page.
3. **Folders must exist.** Call ` + "`" + `list_folders` + "`" + ` first. Folder names are ASCII letters,
   digits, ` + "`" + `_` + "`" + `, ` + "`" + `.` + "`" + ` and ` + "`" + `-` + "`" + `; nested folders use forward slashes.
4. **Tags** are plain words; quire trims, deduplicates and sorts them.
5. **Bookmarked pages** are stored as Markdown converted from the page's readable content.
   If the page cannot be fetched the bookmark is rejected.
6. **Encoding** is UTF-8. Titles, tags and body may use any language.

## Example

` + "```" + `markdown
---
id: 3
type: bookmark
title: Go Maps in Action
tags:
  - go
path: reading_list
date: 2025-01-20T09:30:00Z
url: https://go.dev/blog/maps
desc: How maps work in Go
---

Maps are a built-in hash table type...
` + "```" + `
`
