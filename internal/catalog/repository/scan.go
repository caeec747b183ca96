package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/lib/pq"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const (
	entryColumns = `e.id, e.uuid, e.title, e.abstract, e.external_id, ST_X(e.location), ST_Y(e.location), ` +
		`e.version, e.latest_version_id, e.is_partial, e.comment, e.citation, e.embargo, e.embargo_end, ` +
		`e.publication, e."lastUpdate", e.datasource_id`
	licenseColumns  = `l.id, l.short_title, l.title, l.summary, l.full_text, l.link, l.by_attribution, l.share_alike, l.commercial_use`
	variableColumns = `v.id, v.name, v.symbol, v.column_names, u.name, u.symbol, u.si`
	personColumns   = `p.id, p.uuid, p.is_organisation, p.first_name, p.last_name, p.organisation_name, ` +
		`p.organisation_abbrev, p.affiliation, p.attribution, p.orcid`
	datatypeColumns   = `t.id, t.name, t.title, t.description`
	detailColumns     = `d.entry_id, d.id, d.key, d.stem, d.title, d.description, d.raw_value`
	datasourceColumns = `ds.id, t.id, t.name, t.title, t.description, ds.path, ds.encoding, ds.variable_names, ds.args, ` +
		`ts.id, ts.resolution, ts.observation_start, ts.observation_end, ts.support, ts.dimension_names, ` +
		`ss.id, ss.resolution, ST_AsGeoJSON(ss.extent), ss.support, ss.dimension_names`
)

// entryRow is a scanned entry before its authors, details and datasource are attached
type entryRow struct {
	entry        catalog.Entry
	datasourceID int64
}

func shapeError(resource string, err error) error {
	return catalog.NewValidationError(resource, "unexpected row shape: %v", err)
}

// scanEntry maps one row of entryColumns, licenseColumns and variableColumns
func scanEntry(row rowScanner) (entryRow, error) {
	var (
		e                                   catalog.Entry
		externalID, comment, citation       sql.NullString
		lon, lat                            sql.NullFloat64
		latestVersion, datasourceID         sql.NullInt64
		embargoEnd, publication, lastUpdate sql.NullTime
		licenseID                           sql.NullInt64
		license                             catalog.License
		summary, fullText, link             sql.NullString
		shortTitle, licenseTitle            sql.NullString
		byAttribution, shareAlike, commUse  sql.NullBool
		unitSI                              sql.NullString
	)

	dest := []any{
		&e.ID, &e.UUID, &e.Title, &e.Abstract, &externalID, &lon, &lat,
		&e.Version, &latestVersion, &e.IsPartial, &comment, &citation, &e.Embargo, &embargoEnd,
		&publication, &lastUpdate, &datasourceID,
		&licenseID, &shortTitle, &licenseTitle, &summary, &fullText, &link, &byAttribution, &shareAlike, &commUse,
		&e.Variable.ID, &e.Variable.Name, &e.Variable.Symbol, pq.Array(&e.Variable.ColumnNames),
		&e.Variable.Unit.Name, &e.Variable.Unit.Symbol, &unitSI,
	}
	if err := row.Scan(dest...); err != nil {
		return entryRow{}, shapeError("entry", err)
	}
	if e.ID == 0 {
		return entryRow{}, catalog.NewValidationError("entry", "row without id")
	}

	e.ExternalID = externalID.String
	e.Comment = comment.String
	e.Citation = citation.String
	if lon.Valid && lat.Valid {
		e.Location = catalog.NewPoint(lon.Float64, lat.Float64)
	}
	if latestVersion.Valid {
		e.LatestVersionID = &latestVersion.Int64
	}
	e.EmbargoEnd = timePtr(embargoEnd)
	e.Publication = timePtr(publication)
	e.LastUpdate = timePtr(lastUpdate)

	if licenseID.Valid {
		license.ID = licenseID.Int64
		license.ShortTitle = shortTitle.String
		license.Title = licenseTitle.String
		license.Summary = summary.String
		license.FullText = fullText.String
		license.Link = link.String
		license.ByAttribution = byAttribution.Bool
		license.ShareAlike = shareAlike.Bool
		license.CommercialUse = commUse.Bool
		e.License = &license
	}

	e.Variable.Unit.SI = unitSI.String
	if e.Variable.ColumnNames == nil {
		e.Variable.ColumnNames = []string{}
	}
	e.CoAuthors = []catalog.Author{}
	e.Details = []catalog.Detail{}

	return entryRow{entry: e, datasourceID: datasourceID.Int64}, nil
}

// scanAuthor maps personColumns. Leading extra destinations are scanned first.
func scanAuthor(row rowScanner, extra ...any) (catalog.Author, error) {
	var (
		a                                   catalog.Author
		firstName, lastName, orgName        sql.NullString
		orgAbbrev, affiliation, attribution sql.NullString
		orcid                               sql.NullString
	)

	dest := append(extra,
		&a.ID, &a.UUID, &a.IsOrganisation, &firstName, &lastName, &orgName,
		&orgAbbrev, &affiliation, &attribution, &orcid,
	)
	if err := row.Scan(dest...); err != nil {
		return catalog.Author{}, shapeError("author", err)
	}

	a.FirstName = firstName.String
	a.LastName = lastName.String
	a.OrganisationName = orgName.String
	a.OrganisationAbbrev = orgAbbrev.String
	a.Affiliation = affiliation.String
	a.Attribution = attribution.String
	a.ORCID = orcid.String
	return a, nil
}

func scanLicense(row rowScanner) (catalog.License, error) {
	var (
		l                       catalog.License
		summary, fullText, link sql.NullString
	)
	err := row.Scan(&l.ID, &l.ShortTitle, &l.Title, &summary, &fullText, &link,
		&l.ByAttribution, &l.ShareAlike, &l.CommercialUse)
	if err != nil {
		return catalog.License{}, shapeError("license", err)
	}
	l.Summary = summary.String
	l.FullText = fullText.String
	l.Link = link.String
	return l, nil
}

func scanVariable(row rowScanner) (catalog.Variable, error) {
	var (
		v  catalog.Variable
		si sql.NullString
	)
	err := row.Scan(&v.ID, &v.Name, &v.Symbol, pq.Array(&v.ColumnNames), &v.Unit.Name, &v.Unit.Symbol, &si)
	if err != nil {
		return catalog.Variable{}, shapeError("variable", err)
	}
	v.Unit.SI = si.String
	if v.ColumnNames == nil {
		v.ColumnNames = []string{}
	}
	return v, nil
}

func scanDatatype(row rowScanner) (catalog.DatasourceType, error) {
	var (
		t           catalog.DatasourceType
		description sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Title, &description); err != nil {
		return catalog.DatasourceType{}, shapeError("datasource type", err)
	}
	t.Description = description.String
	return t, nil
}

// scanDetail maps detailColumns and returns the owning entry id
func scanDetail(row rowScanner) (int64, catalog.Detail, error) {
	var (
		entryID, id        int64
		key, stem          string
		title, description sql.NullString
		rawValue           []byte
	)
	if err := row.Scan(&entryID, &id, &key, &stem, &title, &description, &rawValue); err != nil {
		return 0, catalog.Detail{}, shapeError("detail", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(rawValue, &raw); err != nil {
		return 0, catalog.Detail{}, catalog.NewValidationError("detail.raw_value", "not a JSON object: %v", err)
	}
	return entryID, catalog.NewDetail(id, key, stem, title.String, description.String, raw), nil
}

func scanDatasource(row rowScanner) (catalog.Datasource, error) {
	var (
		ds             catalog.Datasource
		typeDesc       sql.NullString
		args           []byte
		tsID           sql.NullInt64
		tsResolution   sql.NullString
		tsStart, tsEnd sql.NullTime
		tsSupport      sql.NullFloat64
		tsDims         []string
		ssID           sql.NullInt64
		ssResolution   sql.NullInt64
		ssExtent       sql.NullString
		ssSupport      sql.NullFloat64
		ssDims         []string
	)

	err := row.Scan(&ds.ID, &ds.Type.ID, &ds.Type.Name, &ds.Type.Title, &typeDesc,
		&ds.Path, &ds.Encoding, pq.Array(&ds.VariableNames), &args,
		&tsID, &tsResolution, &tsStart, &tsEnd, &tsSupport, pq.Array(&tsDims),
		&ssID, &ssResolution, &ssExtent, &ssSupport, pq.Array(&ssDims))
	if err != nil {
		return catalog.Datasource{}, shapeError("datasource", err)
	}

	ds.Type.Description = typeDesc.String
	if ds.VariableNames == nil {
		ds.VariableNames = []string{}
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &ds.Args); err != nil {
			return catalog.Datasource{}, catalog.NewValidationError("datasource.args", "not a JSON object: %v", err)
		}
	}

	if tsID.Valid {
		ds.TemporalScale = &catalog.TemporalScale{
			Resolution:       tsResolution.String,
			ObservationStart: tsStart.Time,
			ObservationEnd:   tsEnd.Time,
			Support:          tsSupport.Float64,
			DimensionNames:   nonNil(tsDims),
		}
	}

	if ssID.Valid {
		ss := &catalog.SpatialScale{
			Resolution:     int(ssResolution.Int64),
			Support:        ssSupport.Float64,
			DimensionNames: nonNil(ssDims),
		}
		if ssExtent.Valid {
			var extent catalog.Polygon
			if err := json.Unmarshal([]byte(ssExtent.String), &extent); err != nil {
				return catalog.Datasource{}, catalog.NewValidationError("datasource.spatial_scale.extent", "invalid GeoJSON: %v", err)
			}
			ss.Extent = &extent
		}
		ds.SpatialScale = ss
	}

	return ds, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
