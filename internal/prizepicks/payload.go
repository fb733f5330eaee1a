package prizepicks

import (
	"encoding/json"
	"fmt"
)

// Document is a JSON:API style response body
type Document struct {
	Data     []Resource `json:"data"`
	Included []Resource `json:"included"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
	Meta struct {
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_pages"`
	} `json:"meta"`
}

// Resource is a single JSON:API record
type Resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships"`
}

// Relationship points at another resource by type and id
type Relationship struct {
	Data *ResourceRef `json:"data"`
}

// ResourceRef identifies a related resource
type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// RelatedID returns the id of the named relationship, or "".
func (r Resource) RelatedID(name string) string {
	rel, ok := r.Relationships[name]
	if !ok || rel.Data == nil {
		return ""
	}
	return rel.Data.ID
}

func (d Document) hasMore(page, perPage int) bool {
	if d.Links.Next != "" {
		return true
	}
	if d.Meta.TotalPages > 0 {
		return page < d.Meta.TotalPages
	}
	return len(d.Data) >= perPage
}

func decodeDocument(body []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// ProjectionAttributes are the attributes of a "projection" resource. The
// API is inconsistent about quoting numbers, so decoding is lenient.
type ProjectionAttributes struct {
	LineScore      float64 `json:"line_score"`
	StatType       string  `json:"stat_type"`
	StartTime      string  `json:"start_time"`
	Status         string  `json:"status"`
	Description    string  `json:"description"`
	Rank           int     `json:"rank"`
	IsPromo        bool    `json:"is_promo"`
	UpdatedAt      string  `json:"updated_at"`
	OddsType       string  `json:"odds_type"`
	ProjectionType string  `json:"projection_type"`
}

func (a *ProjectionAttributes) UnmarshalJSON(data []byte) error {
	type alias ProjectionAttributes
	return flexUnmarshal(data, (*alias)(a))
}

// PlayerAttributes are the attributes of a "new_player" resource
type PlayerAttributes struct {
	Name     string `json:"name"`
	TeamName string `json:"team_name"`
	Team     string `json:"team"`
	Position string `json:"position"`
	League   string `json:"league"`
}

func (a *PlayerAttributes) UnmarshalJSON(data []byte) error {
	type alias PlayerAttributes
	return flexUnmarshal(data, (*alias)(a))
}

// LeagueAttributes are the attributes of a "league" resource
type LeagueAttributes struct {
	Name   string `json:"name"`
	Sport  string `json:"sport"`
	Active bool   `json:"active"`
}

func (a *LeagueAttributes) UnmarshalJSON(data []byte) error {
	type alias LeagueAttributes
	return flexUnmarshal(data, (*alias)(a))
}

// StatTypeAttributes are the attributes of a "stat_type" resource
type StatTypeAttributes struct {
	Name string `json:"name"`
}
