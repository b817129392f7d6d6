// Package planner decides which frontmatter fields a fetch result may write.
package planner

import (
	"fmt"
	"time"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/frontmatter"
	"github.com/starford/ogfetch/internal/metadata"
)

// Keys written on a failed fetch and cleared on the next success.
const (
	ErrorKey          = "og_error"
	ErrorTimestampKey = "og_error_timestamp"
	ErrorCodeKey      = "og_error_code"
)

// TimeLayout is the ISO-8601 form used for fetch dates and error timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Field is a logical field managed in frontmatter.
type Field int

const (
	FieldTitle Field = iota
	FieldDescription
	FieldImage
	FieldFavicon
	FieldFetchDate
	FieldURL
)

func (f Field) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldDescription:
		return "description"
	case FieldImage:
		return "image"
	case FieldFavicon:
		return "favicon"
	case FieldFetchDate:
		return "fetchDate"
	case FieldURL:
		return "url"
	default:
		return "unknown"
	}
}

// contentFields are the fields whose absence makes a document incomplete.
var contentFields = []Field{FieldTitle, FieldDescription, FieldImage}

// writableFields are written from a record under the create/overwrite rule.
var writableFields = []Field{FieldTitle, FieldDescription, FieldImage, FieldFavicon, FieldURL}

// FieldNames maps logical fields to frontmatter keys.
type FieldNames struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
	Favicon     string `yaml:"favicon"`
	FetchDate   string `yaml:"fetch_date"`
	URL         string `yaml:"url"`
}

// DefaultFieldNames returns the stock key names.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		Title:       "og_title",
		Description: "og_description",
		Image:       "og_image",
		Favicon:     "og_favicon",
		FetchDate:   "og_last_fetch",
		URL:         "url",
	}
}

// Table is a resolved logical field → key lookup.
type Table [FieldURL + 1]string

// Table resolves n, substituting defaults for blank names.
func (n FieldNames) Table() Table {
	d := DefaultFieldNames()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Table{
		FieldTitle:       pick(n.Title, d.Title),
		FieldDescription: pick(n.Description, d.Description),
		FieldImage:       pick(n.Image, d.Image),
		FieldFavicon:     pick(n.Favicon, d.Favicon),
		FieldFetchDate:   pick(n.FetchDate, d.FetchDate),
		FieldURL:         pick(n.URL, d.URL),
	}
}

// Key returns the frontmatter key for f.
func (t Table) Key(f Field) string { return t[f] }

// Policy holds the write rules for one run.
type Policy struct {
	CreateNewProperties bool `yaml:"create_new_properties" json:"create_new_properties"`
	OverwriteExisting   bool `yaml:"overwrite_existing" json:"overwrite_existing"`
	WriteErrors         bool `yaml:"write_errors" json:"write_errors"`
	UpdateFetchDate     bool `yaml:"update_fetch_date" json:"update_fetch_date"`
	SkipExistingData    bool `yaml:"skip_existing_data" json:"skip_existing_data"`
}

// DefaultPolicy mirrors the stock options: fill gaps, keep existing values.
func DefaultPolicy() Policy {
	return Policy{
		CreateNewProperties: true,
		WriteErrors:         true,
		UpdateFetchDate:     true,
		SkipExistingData:    true,
	}
}

// Validate rejects a policy that could never write a field.
func (p Policy) Validate() error {
	if !p.CreateNewProperties && !p.OverwriteExisting {
		return fmt.Errorf("%w: at least one of create_new_properties or overwrite_existing must be enabled", apperr.ErrConfiguration)
	}
	return nil
}

// Overrides carries optional per-run changes to a Policy.
type Overrides struct {
	CreateNewProperties *bool `json:"create_new_properties,omitempty"`
	OverwriteExisting   *bool `json:"overwrite_existing,omitempty"`
	WriteErrors         *bool `json:"write_errors,omitempty"`
	UpdateFetchDate     *bool `json:"update_fetch_date,omitempty"`
	SkipExistingData    *bool `json:"skip_existing_data,omitempty"`
}

// Apply returns a copy of p with o's set fields applied.
func (p Policy) Apply(o Overrides) Policy {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.CreateNewProperties, o.CreateNewProperties)
	set(&p.OverwriteExisting, o.OverwriteExisting)
	set(&p.WriteErrors, o.WriteErrors)
	set(&p.UpdateFetchDate, o.UpdateFetchDate)
	set(&p.SkipExistingData, o.SkipExistingData)
	return p
}

func recordValue(rec metadata.Record, f Field) string {
	switch f {
	case FieldTitle:
		return rec.Title
	case FieldDescription:
		return rec.Description
	case FieldImage:
		return rec.Image
	case FieldFavicon:
		return rec.Favicon
	case FieldURL:
		return rec.URL
	default:
		return ""
	}
}

// Plan returns a copy of b updated with rec. A field is written when the
// record has a value for it and either it is empty and creation is allowed,
// or it is populated and overwriting is allowed. Error keys from an earlier
// failure are removed.
func Plan(b *frontmatter.Block, rec metadata.Record, t Table, p Policy) (*frontmatter.Block, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := frontmatter.NewBlock()
	if b != nil {
		out = b.Clone()
	}

	for _, f := range writableFields {
		v := recordValue(rec, f)
		if v == "" {
			continue
		}
		key := t.Key(f)
		populated := out.Populated(key)
		if (p.CreateNewProperties && !populated) || (p.OverwriteExisting && populated) {
			out.Set(key, frontmatter.String(v))
		}
	}

	if p.UpdateFetchDate {
		at := rec.FetchedAt
		if at.IsZero() {
			at = time.Now()
		}
		out.Set(t.Key(FieldFetchDate), frontmatter.String(FormatTime(at)))
	}

	out.Delete(ErrorKey)
	out.Delete(ErrorTimestampKey)
	out.Delete(ErrorCodeKey)
	return out, nil
}

// PlanFailure returns a copy of b recording cause, or b unchanged when error
// writing is disabled. Managed metadata fields are never touched.
func PlanFailure(b *frontmatter.Block, cause error, p Policy, at time.Time) *frontmatter.Block {
	out := frontmatter.NewBlock()
	if b != nil {
		out = b.Clone()
	}
	if !p.WriteErrors || cause == nil {
		return out
	}
	out.Set(ErrorKey, frontmatter.String(cause.Error()))
	out.Set(ErrorTimestampKey, frontmatter.String(FormatTime(at)))
	if code := apperr.Code(cause); code != "" {
		out.Set(ErrorCodeKey, frontmatter.String(code))
	} else {
		out.Delete(ErrorCodeKey)
	}
	return out
}

// Missing lists the content fields (title, description, image) that are
// absent or empty in b.
func Missing(b *frontmatter.Block, t Table) []string {
	var out []string
	for _, f := range contentFields {
		if b == nil || !b.Populated(t.Key(f)) {
			out = append(out, f.String())
		}
	}
	return out
}

// FormatTime renders at in UTC with millisecond precision.
func FormatTime(at time.Time) string {
	return at.UTC().Format(TimeLayout)
}
