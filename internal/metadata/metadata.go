// Package metadata turns provider responses into a canonical OpenGraph record.
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/starford/ogfetch/internal/apperr"
)

// Record is the canonical metadata for one URL. Image and Favicon are empty
// when the provider had none.
type Record struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image,omitempty"`
	Favicon     string    `json:"favicon,omitempty"`
	URL         string    `json:"url"`
	Type        string    `json:"type"`
	SiteName    string    `json:"site_name"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ProviderResponse holds the three alternative views a provider may return,
// ordered by trust: HybridGraph, then OpenGraph, then HTMLInferred.
type ProviderResponse struct {
	HybridGraph  *Source `json:"hybridGraph,omitempty"`
	OpenGraph    *Source `json:"openGraph,omitempty"`
	HTMLInferred *Source `json:"htmlInferred,omitempty"`
}

// Source is one provider view. Every field is optional.
type Source struct {
	Title       Text  `json:"title"`
	Description Text  `json:"description"`
	Image       Image `json:"image"`
	Favicon     Text  `json:"favicon"`
	URL         Text  `json:"url"`
	Type        Text  `json:"type"`
	SiteName    Text  `json:"site_name"`
}

// Text decodes any JSON scalar into a string with each whitespace run,
// line breaks included, collapsed to one space. Objects, arrays and null
// decode to the empty string.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.(type) {
	case map[string]any, []any, nil:
		*t = ""
		return nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		*t = ""
		return nil
	}
	*t = Text(strings.Join(strings.Fields(s), " "))
	return nil
}

// Image accepts either a bare URL string or an object with a "url" field.
type Image string

func (i *Image) UnmarshalJSON(data []byte) error {
	var obj struct {
		URL Text `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*i = Image(obj.URL)
		return nil
	}
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*i = Image(t)
	return nil
}

// sources returns the views present in r, highest precedence first.
func (r *ProviderResponse) sources() []*Source {
	var out []*Source
	for _, s := range []*Source{r.HybridGraph, r.OpenGraph, r.HTMLInferred} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Decode parses a raw provider payload.
func Decode(data []byte) (*ProviderResponse, error) {
	var resp ProviderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidResponse, err)
	}
	return &resp, nil
}

// Normalize picks, per field, the first non-empty value across the views in
// precedence order. It fails with ErrInvalidResponse only when no view is
// present at all.
func Normalize(resp *ProviderResponse, requestedURL string, at time.Time) (Record, error) {
	if resp == nil {
		return Record{}, fmt.Errorf("%w: empty payload", apperr.ErrInvalidResponse)
	}
	srcs := resp.sources()
	if len(srcs) == 0 {
		return Record{}, fmt.Errorf("%w: no hybridGraph, openGraph or htmlInferred data", apperr.ErrInvalidResponse)
	}

	first := func(pick func(*Source) string) string {
		for _, s := range srcs {
			if v := pick(s); v != "" {
				return v
			}
		}
		return ""
	}

	rec := Record{
		Title:       first(func(s *Source) string { return string(s.Title) }),
		Description: first(func(s *Source) string { return string(s.Description) }),
		Image:       first(func(s *Source) string { return string(s.Image) }),
		Favicon:     first(func(s *Source) string { return string(s.Favicon) }),
		URL:         first(func(s *Source) string { return string(s.URL) }),
		Type:        first(func(s *Source) string { return string(s.Type) }),
		SiteName:    first(func(s *Source) string { return string(s.SiteName) }),
		FetchedAt:   at,
	}
	if rec.URL == "" {
		rec.URL = requestedURL
	}
	return rec, nil
}

// NormalizeJSON decodes data and normalizes it in one step.
func NormalizeJSON(data []byte, requestedURL string, at time.Time) (Record, error) {
	resp, err := Decode(data)
	if err != nil {
		return Record{}, err
	}
	return Normalize(resp, requestedURL, at)
}
