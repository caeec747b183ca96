package payload

import (
	"strconv"
	"strings"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
)

// DefaultEmbargoPeriod is added to the submission time to compute embargo_end
const DefaultEmbargoPeriod = 2 * 365 * 24 * time.Hour

// FromForm reshapes a flat form submission and converts it into an EntryCreate
func FromForm(flat map[string]string, now time.Time) (catalog.EntryCreate, error) {
	nested, err := Reshape(flat)
	if err != nil {
		return catalog.EntryCreate{}, err
	}
	return ToEntryCreate(nested, now)
}

// ToEntryCreate converts a reshaped form payload into an EntryCreate.
// The first element of "authors" is the primary author, the rest are co-authors.
func ToEntryCreate(nested map[string]any, now time.Time) (catalog.EntryCreate, error) {
	verr := &catalog.ValidationError{}

	embargoEnd := now.Add(DefaultEmbargoPeriod)
	publication := now
	lastUpdate := now

	payload := catalog.EntryCreate{
		Title:       str(nested, "title"),
		Abstract:    str(nested, "abstract"),
		ExternalID:  str(nested, "external_id"),
		Comment:     str(nested, "comment"),
		Citation:    str(nested, "citation"),
		Version:     1,
		IsPartial:   false,
		Embargo:     false,
		EmbargoEnd:  &embargoEnd,
		Publication: &publication,
		LastUpdate:  &lastUpdate,
	}

	if payload.Title == "" {
		verr.Add("title", "is required")
	}
	if payload.Abstract == "" {
		verr.Add("abstract", "is required")
	}

	// license_id wins over license.id, as in the submission form
	licenseRaw := str(nested, "license_id")
	if licenseRaw == "" {
		licenseRaw = str(object(nested, "license"), "id")
	}
	if licenseRaw == "" {
		verr.Add("license_id", "is required")
	} else if id, err := strconv.ParseInt(licenseRaw, 10, 64); err != nil {
		verr.Add("license_id", "must be an integer, got %q", licenseRaw)
	} else {
		payload.LicenseID = &id
	}

	variableRaw := str(nested, "variable_id")
	if variableRaw == "" {
		variableRaw = str(object(nested, "variable"), "id")
	}
	if variableRaw == "" {
		verr.Add("variable_id", "is required")
	} else if id, err := strconv.ParseInt(variableRaw, 10, 64); err != nil {
		verr.Add("variable_id", "must be an integer, got %q", variableRaw)
	} else {
		payload.VariableID = id
	}

	if loc := str(nested, "location"); loc != "" {
		point, err := catalog.ParseWKTPoint(loc)
		if err != nil {
			verr.Add("location", "%v", err)
		} else {
			payload.Location = point
		}
	}

	authors := list(nested, "authors")
	if len(authors) == 0 {
		verr.Add("authors", "at least one author is required")
	}
	for i, raw := range authors {
		a, ok := raw.(map[string]any)
		if !ok || len(a) == 0 {
			verr.Add("authors."+strconv.Itoa(i+1), "is empty")
			continue
		}
		author := toAuthor(a)
		if i == 0 {
			payload.Author = &author
		} else {
			payload.CoAuthors = append(payload.CoAuthors, author)
		}
	}

	for i, raw := range list(nested, "details") {
		d, ok := raw.(map[string]any)
		if !ok || len(d) == 0 {
			// backfilled gap
			continue
		}
		detail := catalog.DetailCreate{
			Key:         str(d, "key"),
			Stem:        str(d, "stem"),
			Title:       str(d, "title"),
			Description: str(d, "description"),
			Value:       d["value"],
		}
		if detail.Key == "" {
			verr.Add("details."+strconv.Itoa(i+1)+".key", "is required")
			continue
		}
		if detail.Stem == "" {
			detail.Stem = detail.Key
		}
		payload.Details = append(payload.Details, detail)
	}

	if err := verr.OrNil(); err != nil {
		return catalog.EntryCreate{}, err
	}
	return payload, nil
}

func toAuthor(a map[string]any) catalog.AuthorCreate {
	author := catalog.AuthorCreate{
		FirstName:          str(a, "first_name"),
		LastName:           str(a, "last_name"),
		OrganisationName:   str(a, "organisation_name"),
		OrganisationAbbrev: str(a, "organisation_abbrev"),
		Affiliation:        str(a, "affiliation"),
		Attribution:        str(a, "attribution"),
		ORCID:              str(a, "orcid"),
	}
	if b, err := strconv.ParseBool(str(a, "is_organisation")); err == nil {
		author.IsOrganisation = b
	}
	return author
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func object(m map[string]any, key string) map[string]any {
	o, _ := m[key].(map[string]any)
	return o
}

func list(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}
