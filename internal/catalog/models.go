// Package catalog holds the metadata catalog data model and its error taxonomy
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Author roles stored in person_roles and used on entries_persons links
const (
	RoleAuthor   = "author"
	RoleCoAuthor = "coAuthor"
)

// LiteralKey wraps scalar detail values so the stored representation is always an object
const LiteralKey = "__literal__"

// Entry is a cataloged dataset's metadata record
type Entry struct {
	ID              int64       `json:"id"`
	UUID            uuid.UUID   `json:"uuid"`
	Title           string      `json:"title"`
	Abstract        string      `json:"abstract"`
	ExternalID      string      `json:"external_id,omitempty"`
	Location        *Point      `json:"location,omitempty"`
	Version         int         `json:"version"`
	LatestVersionID *int64      `json:"latest_version_id,omitempty"`
	IsPartial       bool        `json:"is_partial"`
	Comment         string      `json:"comment,omitempty"`
	Citation        string      `json:"citation,omitempty"`
	Embargo         bool        `json:"embargo"`
	EmbargoEnd      *time.Time  `json:"embargo_end,omitempty"`
	Publication     *time.Time  `json:"publication,omitempty"`
	LastUpdate      *time.Time  `json:"lastUpdate,omitempty"`
	License         *License    `json:"license,omitempty"`
	Variable        Variable    `json:"variable"`
	Author          *Author     `json:"author"`
	CoAuthors       []Author    `json:"coAuthors"`
	Details         []Detail    `json:"details"`
	Datasource      *Datasource `json:"datasource,omitempty"`
}

// Author is a person or an organisation that authored one or more entries
type Author struct {
	ID                 int64     `json:"id"`
	UUID               uuid.UUID `json:"uuid"`
	IsOrganisation     bool      `json:"is_organisation"`
	FirstName          string    `json:"first_name,omitempty"`
	LastName           string    `json:"last_name,omitempty"`
	OrganisationName   string    `json:"organisation_name,omitempty"`
	OrganisationAbbrev string    `json:"organisation_abbrev,omitempty"`
	Affiliation        string    `json:"affiliation,omitempty"`
	Attribution        string    `json:"attribution,omitempty"`
	ORCID              string    `json:"orcid,omitempty"`
}

// DisplayName returns the organisation name for organisations and "First Last" otherwise
func (a Author) DisplayName() string {
	if a.IsOrganisation {
		return a.OrganisationName
	}
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// AuthorLink is one row of the entries_persons join
type AuthorLink struct {
	EntryID  int64
	PersonID int64
	Role     string
	Order    int
}

// License is reference data describing the terms an entry is published under
type License struct {
	ID            int64  `json:"id"`
	ShortTitle    string `json:"short_title"`
	Title         string `json:"title"`
	Summary       string `json:"summary,omitempty"`
	FullText      string `json:"full_text,omitempty"`
	Link          string `json:"link,omitempty"`
	ByAttribution bool   `json:"by_attribution"`
	ShareAlike    bool   `json:"share_alike"`
	CommercialUse bool   `json:"commercial_use"`
}

// Unit is the physical unit of a variable
type Unit struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	SI     string `json:"si,omitempty"`
}

// Variable is the observed quantity of an entry
type Variable struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	ColumnNames []string `json:"column_names"`
	Unit        Unit     `json:"unit"`
}

// Detail is an arbitrary key/value annotation attached to an entry.
// RawValue is the stored (always structured) form, Value the unwrapped view.
type Detail struct {
	ID          int64          `json:"id"`
	Key         string         `json:"key"`
	Stem        string         `json:"stem,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	RawValue    map[string]any `json:"raw_value"`
	Value       any            `json:"value"`
}

// DatasourceType is one of the fixed kinds of datasource
type DatasourceType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// TemporalScale describes the temporal resolution and extent of a datasource
type TemporalScale struct {
	Resolution       string    `json:"resolution"`
	ObservationStart time.Time `json:"observation_start"`
	ObservationEnd   time.Time `json:"observation_end"`
	Support          float64   `json:"support"`
	DimensionNames   []string  `json:"dimension_names"`
}

// SpatialScale describes the spatial resolution and extent of a datasource
type SpatialScale struct {
	Resolution     int      `json:"resolution"`
	Extent         *Polygon `json:"extent,omitempty"`
	Support        float64  `json:"support"`
	DimensionNames []string `json:"dimension_names"`
}

// Datasource points to where an entry's actual data lives
type Datasource struct {
	ID            int64          `json:"id"`
	Type          DatasourceType `json:"type"`
	Path          string         `json:"path"`
	Encoding      string         `json:"encoding"`
	VariableNames []string       `json:"variable_names"`
	Args          map[string]any `json:"args,omitempty"`
	TemporalScale *TemporalScale `json:"temporal_scale,omitempty"`
	SpatialScale  *SpatialScale  `json:"spatial_scale,omitempty"`
}

// SearchResult is a ranked full-text match. It is never persisted.
type SearchResult struct {
	ID      int64    `json:"id"`
	Matches []string `json:"matches"`
	Weight  int      `json:"weight"`
}

// EntryCreate is the payload for creating an entry together with its authors and details
type EntryCreate struct {
	UUID        *uuid.UUID        `json:"uuid,omitempty"`
	Title       string            `json:"title"`
	Abstract    string            `json:"abstract"`
	ExternalID  string            `json:"external_id,omitempty"`
	Location    *Point            `json:"location,omitempty"`
	Version     int               `json:"version"`
	IsPartial   bool              `json:"is_partial"`
	Comment     string            `json:"comment,omitempty"`
	Citation    string            `json:"citation,omitempty"`
	Embargo     bool              `json:"embargo"`
	EmbargoEnd  *time.Time        `json:"embargo_end,omitempty"`
	Publication *time.Time        `json:"publication,omitempty"`
	LastUpdate  *time.Time        `json:"lastUpdate,omitempty"`
	LicenseID   *int64            `json:"license_id,omitempty"`
	License     *LicenseCreate    `json:"license,omitempty"`
	VariableID  int64             `json:"variable_id"`
	Author      *AuthorCreate     `json:"author"`
	CoAuthors   []AuthorCreate    `json:"coAuthors,omitempty"`
	Details     []DetailCreate    `json:"details,omitempty"`
	Datasource  *DatasourceCreate `json:"datasource,omitempty"`
}

// AuthorCreate describes a new author, or references an existing one when ID is set
type AuthorCreate struct {
	ID                 *int64     `json:"id,omitempty"`
	UUID               *uuid.UUID `json:"uuid,omitempty"`
	IsOrganisation     bool       `json:"is_organisation"`
	FirstName          string     `json:"first_name,omitempty"`
	LastName           string     `json:"last_name,omitempty"`
	OrganisationName   string     `json:"organisation_name,omitempty"`
	OrganisationAbbrev string     `json:"organisation_abbrev,omitempty"`
	Affiliation        string     `json:"affiliation,omitempty"`
	Attribution        string     `json:"attribution,omitempty"`
	ORCID              string     `json:"orcid,omitempty"`
}

// IsOrganisationLike reports whether the author should be matched by organisation name.
// An author without person names but with an organisation name counts as one.
func (a AuthorCreate) IsOrganisationLike() bool {
	if a.IsOrganisation {
		return true
	}
	return a.FirstName == "" && a.LastName == "" && a.OrganisationName != ""
}

// LicenseCreate is an inline license submitted with an entry
type LicenseCreate struct {
	ShortTitle    string `json:"short_title"`
	Title         string `json:"title"`
	Summary       string `json:"summary,omitempty"`
	FullText      string `json:"full_text,omitempty"`
	Link          string `json:"link,omitempty"`
	ByAttribution bool   `json:"by_attribution"`
	ShareAlike    bool   `json:"share_alike"`
	CommercialUse bool   `json:"commercial_use"`
}

// DetailCreate is a detail submitted with an entry. Value may be a scalar or a map.
type DetailCreate struct {
	Key         string `json:"key"`
	Stem        string `json:"stem,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Value       any    `json:"value"`
}

// DatasourceCreate is the payload for attaching a datasource to an entry.
// The type is resolved by TypeID if set, by TypeName otherwise.
type DatasourceCreate struct {
	TypeID        *int64               `json:"type_id,omitempty"`
	TypeName      string               `json:"type,omitempty"`
	Path          string               `json:"path"`
	Encoding      string               `json:"encoding,omitempty"`
	VariableNames []string             `json:"variable_names,omitempty"`
	Args          map[string]any       `json:"args,omitempty"`
	TemporalScale *TemporalScaleCreate `json:"temporal_scale,omitempty"`
	SpatialScale  *SpatialScaleCreate  `json:"spatial_scale,omitempty"`
}

// TemporalScaleCreate is the temporal scale submitted with a datasource
type TemporalScaleCreate struct {
	Resolution       string    `json:"resolution"`
	ObservationStart time.Time `json:"observation_start"`
	ObservationEnd   time.Time `json:"observation_end"`
	Support          float64   `json:"support"`
	DimensionNames   []string  `json:"dimension_names"`
}

// SpatialScaleCreate is the spatial scale submitted with a datasource
type SpatialScaleCreate struct {
	Resolution     int      `json:"resolution"`
	Extent         *Polygon `json:"extent,omitempty"`
	Support        float64  `json:"support"`
	DimensionNames []string `json:"dimension_names"`
}
