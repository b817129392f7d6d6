package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/models"
	"github.com/starford/ogfetch/internal/ogservice"
	"github.com/starford/ogfetch/internal/planner"
)

// FetchRequest is the request body for fetching one document.
type FetchRequest struct {
	Path      string            `json:"path" example:"links/article.md" validate:"required"`
	Force     bool              `json:"force"`
	Overrides planner.Overrides `json:"overrides"`
}

// Validate validates the request.
func (r *FetchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required),
	)
}

// CreateDocumentRequest is the request body for creating a document from a URL.
type CreateDocumentRequest struct {
	Folder    string            `json:"folder" example:"links"`
	URL       string            `json:"url" example:"https://example.com/post" validate:"required"`
	Overrides planner.Overrides `json:"overrides"`
}

// Validate validates the request.
func (r *CreateDocumentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.URL, validation.Required),
	)
}

// BatchRequest is the request body for starting a batch. Paths, when given,
// are processed as-is; otherwise Dir is scanned for eligible documents.
type BatchRequest struct {
	Dir       string            `json:"dir" example:"links"`
	Paths     []string          `json:"paths"`
	DelayMS   *int              `json:"delay_ms,omitempty" example:"1000"`
	Force     bool              `json:"force"`
	Overrides planner.Overrides `json:"overrides"`
}

// Validate validates the request.
func (r *BatchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Paths, validation.Each(validation.Required)),
		validation.Field(&r.DelayMS, validation.Min(0)),
	)
}

// DocumentListResponse wraps scanned documents.
type DocumentListResponse struct {
	Documents []models.FileInfo `json:"documents" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// FrontmatterResponse is the parsed frontmatter of one document.
type FrontmatterResponse struct {
	Path        string         `json:"path" example:"links/article.md" validate:"required"`
	Frontmatter map[string]any `json:"frontmatter" validate:"required"`
}

// BatchStartedResponse is returned when a batch was accepted.
type BatchStartedResponse struct {
	RunID string `json:"run_id" example:"5f0c..." validate:"required"`
	Total int    `json:"total" example:"12" validate:"required"`
	Delay string `json:"delay" example:"1s"`
}

// BatchStatusResponse reports the running batch or the last finished one.
type BatchStatusResponse struct {
	Running  bool                `json:"running"`
	Progress *ogservice.Progress `json:"progress,omitempty"`
	Summary  *ogservice.Summary  `json:"summary,omitempty"`
}

// HistoryResponse wraps paginated fetch history rows.
type HistoryResponse struct {
	Entries []index.FetchRow `json:"entries" validate:"required"`
	Total   int              `json:"total" example:"42" validate:"required"`
}

// HistorySearchResponse wraps history search hits.
type HistorySearchResponse struct {
	Results []index.FetchRow `json:"results" validate:"required"`
}

// BatchDefaults carries the configured batch pacing and selection settings.
type BatchDefaults struct {
	Delay        time.Duration
	RefreshAfter time.Duration
}
