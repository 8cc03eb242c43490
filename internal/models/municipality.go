package models

import (
	"time"

	"github.com/lib/pq"
)

// Municipality is an administrative jurisdiction owning reports and staff.
type Municipality struct {
	ID                 string         `db:"id" json:"id"`
	Name               string         `db:"name" json:"name"`
	AcceptedCategories pq.StringArray `db:"accepted_categories" json:"acceptedCategories"`
	BoundaryMinLat     *float64       `db:"boundary_min_lat" json:"boundaryMinLat,omitempty"`
	BoundaryMaxLat     *float64       `db:"boundary_max_lat" json:"boundaryMaxLat,omitempty"`
	BoundaryMinLng     *float64       `db:"boundary_min_lng" json:"boundaryMinLng,omitempty"`
	BoundaryMaxLng     *float64       `db:"boundary_max_lng" json:"boundaryMaxLng,omitempty"`
	Active             bool           `db:"active" json:"active"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
}

// AcceptsCategory applies the allow-list; an empty list accepts everything.
func (m *Municipality) AcceptsCategory(category ReportCategory) bool {
	if m == nil || len(m.AcceptedCategories) == 0 {
		return true
	}
	for _, accepted := range m.AcceptedCategories {
		if accepted == string(category) {
			return true
		}
	}
	return false
}

// MunicipalitySummary is the populated view embedded in report responses.
type MunicipalitySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summary projects the municipality into its public summary.
func (m *Municipality) Summary() *MunicipalitySummary {
	if m == nil {
		return nil
	}
	return &MunicipalitySummary{ID: m.ID, Name: m.Name}
}
