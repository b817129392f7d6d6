// Package models defines the domain types shared across ogfetch packages.
package models

import "time"

// DocumentMeta is a lightweight listing entry for a Markdown file in the vault.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileInfo describes a document that references a URL in its frontmatter.
type FileInfo struct {
	Path          string     `json:"path"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	HasMetadata   bool       `json:"has_metadata"`
	MissingFields []string   `json:"missing_fields"`
	HasError      bool       `json:"has_error"`
	LastFetch     *time.Time `json:"last_fetch,omitempty"`
}
