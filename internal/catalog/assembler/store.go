package assembler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// resolveLicense returns the referenced license id, or reuses or inserts an inline license
func (a *Assembler) resolveLicense(ctx context.Context, tx *sql.Tx, in catalog.EntryCreate) (int64, error) {
	licenses := a.schema.Table("licenses")

	if in.LicenseID != nil {
		var id int64
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1`, licenses), *in.LicenseID).Scan(&id)
		if err == sql.ErrNoRows {
			return 0, catalog.NewValidationError("license_id", "license %d does not exist", *in.LicenseID)
		}
		if err != nil {
			return 0, catalog.ConvertDBError("resolve license", err)
		}
		return id, nil
	}

	l := in.License
	var id int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE short_title = $1 AND title = $2 ORDER BY id LIMIT 1`, licenses),
		l.ShortTitle, l.Title,
	).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case err != sql.ErrNoRows:
		return 0, catalog.ConvertDBError("resolve license", err)
	}

	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (short_title, title, summary, full_text, link, by_attribution, share_alike, commercial_use) `+
			`VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`, licenses),
		l.ShortTitle, l.Title, nullIfEmpty(l.Summary), nullIfEmpty(l.FullText), nullIfEmpty(l.Link),
		l.ByAttribution, l.ShareAlike, l.CommercialUse,
	).Scan(&id)
	if err != nil {
		return 0, catalog.ConvertDBError("insert license", err)
	}
	a.logger.Info("inserted license", zap.Int64("id", id), zap.String("short_title", l.ShortTitle))
	return id, nil
}

func (a *Assembler) insertEntry(ctx context.Context, tx *sql.Tx, in catalog.EntryCreate, licenseID int64) (int64, error) {
	in = a.entryDefaults(in)

	entryUUID := a.newUUID()
	if in.UUID != nil {
		entryUUID = *in.UUID
	}

	var lon, lat interface{}
	if in.Location != nil {
		lon, lat = in.Location.Lon(), in.Location.Lat()
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (uuid, title, abstract, external_id, location, version, is_partial, comment, citation, `+
			`license_id, variable_id, embargo, embargo_end, publication, "lastUpdate") `+
			`VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326), $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) `+
			`RETURNING id`, a.schema.Table("entries")),
		entryUUID.String(), strings.TrimSpace(in.Title), strings.TrimSpace(in.Abstract), nullIfEmpty(in.ExternalID),
		lon, lat, in.Version, in.IsPartial, nullIfEmpty(in.Comment), nullIfEmpty(in.Citation),
		licenseID, in.VariableID, in.Embargo, *in.EmbargoEnd, *in.Publication, *in.LastUpdate,
	).Scan(&id)
	if err != nil {
		return 0, catalog.ConvertDBError("insert entry", err)
	}
	return id, nil
}

// resolveAuthor returns the id of the referenced author, of an existing author with the
// same identity when dedup is set, or of a newly inserted author
func (a *Assembler) resolveAuthor(ctx context.Context, tx *sql.Tx, in catalog.AuthorCreate, dedup bool) (int64, error) {
	persons := a.schema.Table("persons")
	var id int64

	if in.ID != nil {
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1`, persons), *in.ID).Scan(&id)
		if err == sql.ErrNoRows {
			return 0, catalog.NewValidationError("author.id", "author %d does not exist", *in.ID)
		}
		if err != nil {
			return 0, catalog.ConvertDBError("resolve author", err)
		}
		return id, nil
	}

	organisation := in.IsOrganisationLike()

	if dedup {
		var row *sql.Row
		if organisation {
			row = tx.QueryRowContext(ctx,
				fmt.Sprintf(`SELECT id FROM %s WHERE organisation_name = $1 AND is_organisation = $2 ORDER BY id LIMIT 1`, persons),
				strings.TrimSpace(in.OrganisationName), true)
		} else {
			row = tx.QueryRowContext(ctx,
				fmt.Sprintf(`SELECT id FROM %s WHERE coalesce(first_name, '') = $1 AND coalesce(last_name, '') = $2 `+
					`AND is_organisation = $3 ORDER BY id LIMIT 1`, persons),
				strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), false)
		}

		err := row.Scan(&id)
		if err == nil {
			a.logger.Debug("reusing author", zap.Int64("id", id))
			return id, nil
		}
		if err != sql.ErrNoRows {
			return 0, catalog.ConvertDBError("find author", err)
		}
	}

	authorUUID := a.newUUID()
	if in.UUID != nil {
		authorUUID = *in.UUID
	}

	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (uuid, is_organisation, first_name, last_name, organisation_name, organisation_abbrev, `+
			`affiliation, attribution, orcid) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`, persons),
		authorUUID.String(), organisation,
		nullIfEmpty(in.FirstName), nullIfEmpty(in.LastName), nullIfEmpty(in.OrganisationName),
		nullIfEmpty(in.OrganisationAbbrev), nullIfEmpty(in.Affiliation), nullIfEmpty(in.Attribution), nullIfEmpty(in.ORCID),
	).Scan(&id)
	if err != nil {
		return 0, catalog.ConvertDBError("insert author", err)
	}
	return id, nil
}

// linkAuthor inserts one entries_persons row. The role is resolved by name.
func (a *Assembler) linkAuthor(ctx context.Context, tx *sql.Tx, entryID, personID int64, role string, order int) error {
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (entry_id, person_id, relationship_type_id, "order") `+
			`SELECT $1::integer, $2::integer, r.id, $4::integer FROM %s r WHERE r.name = $3`,
			a.schema.Table("entries_persons"), a.schema.Table("person_roles")),
		entryID, personID, role, order,
	)
	if err != nil {
		return catalog.ConvertDBError("link author", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return catalog.ConvertDBError("link author", err)
	}
	if n != 1 {
		return &catalog.StoreError{Op: "link author", Err: fmt.Errorf("person role %q is not installed", role)}
	}
	return nil
}

func (a *Assembler) insertDetail(ctx context.Context, tx *sql.Tx, entryID int64, d catalog.DetailCreate) error {
	raw, err := json.Marshal(catalog.WrapDetailValue(d.Value))
	if err != nil {
		return catalog.NewValidationError("details."+d.Key, "value is not serializable: %v", err)
	}

	key := strings.TrimSpace(d.Key)
	stem := strings.TrimSpace(d.Stem)
	if stem == "" {
		stem = key
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (entry_id, key, stem, title, description, raw_value) VALUES ($1, $2, $3, $4, $5, $6)`,
			a.schema.Table("details")),
		entryID, key, stem, nullIfEmpty(d.Title), nullIfEmpty(d.Description), string(raw),
	)
	if err != nil {
		return catalog.ConvertDBError("insert detail", err)
	}
	return nil
}

// insertDatasource inserts a datasource with its scales and points the entry at it
func (a *Assembler) insertDatasource(ctx context.Context, tx *sql.Tx, entryID int64, in catalog.DatasourceCreate) (int64, error) {
	typeID, err := a.resolveDatasourceType(ctx, tx, in)
	if err != nil {
		return 0, err
	}

	var temporalID, spatialID interface{}
	if ts := in.TemporalScale; ts != nil {
		var id int64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (resolution, observation_start, observation_end, support, dimension_names) `+
				`VALUES ($1, $2, $3, $4, $5) RETURNING id`, a.schema.Table("temporal_scales")),
			ts.Resolution, ts.ObservationStart, ts.ObservationEnd, ts.Support, pq.Array(nonNil(ts.DimensionNames)),
		).Scan(&id)
		if err != nil {
			return 0, catalog.ConvertDBError("insert temporal scale", err)
		}
		temporalID = id
	}

	if ss := in.SpatialScale; ss != nil {
		var extent interface{}
		if ss.Extent != nil {
			geojson, err := json.Marshal(ss.Extent)
			if err != nil {
				return 0, catalog.NewValidationError("datasource.spatial_scale.extent", "invalid polygon: %v", err)
			}
			extent = string(geojson)
		}

		var id int64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (resolution, extent, support, dimension_names) `+
				`VALUES ($1, ST_SetSRID(ST_GeomFromGeoJSON($2::text), 4326), $3, $4) RETURNING id`, a.schema.Table("spatial_scales")),
			ss.Resolution, extent, ss.Support, pq.Array(nonNil(ss.DimensionNames)),
		).Scan(&id)
		if err != nil {
			return 0, catalog.ConvertDBError("insert spatial scale", err)
		}
		spatialID = id
	}

	args := in.Args
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return 0, catalog.NewValidationError("datasource.args", "not serializable: %v", err)
	}

	encoding := in.Encoding
	if encoding == "" {
		encoding = "utf-8"
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (type_id, path, encoding, variable_names, args, temporal_scale_id, spatial_scale_id) `+
			`VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, a.schema.Table("datasources")),
		typeID, strings.TrimSpace(in.Path), encoding, pq.Array(nonNil(in.VariableNames)), string(argsJSON), temporalID, spatialID,
	).Scan(&id)
	if err != nil {
		return 0, catalog.ConvertDBError("insert datasource", err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET datasource_id = $1, "lastUpdate" = $2 WHERE id = $3`, a.schema.Table("entries")),
		id, a.now().UTC(), entryID,
	)
	if err != nil {
		return 0, catalog.ConvertDBError("link datasource", err)
	}
	return id, nil
}

// deleteDatasource removes a datasource row together with its temporal and spatial scales
func (a *Assembler) deleteDatasource(ctx context.Context, tx *sql.Tx, id int64) error {
	var temporalID, spatialID sql.NullInt64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING temporal_scale_id, spatial_scale_id`, a.schema.Table("datasources")),
		id,
	).Scan(&temporalID, &spatialID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return catalog.ConvertDBError("delete datasource", err)
	}

	if temporalID.Valid {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, a.schema.Table("temporal_scales")), temporalID.Int64); err != nil {
			return catalog.ConvertDBError("delete temporal scale", err)
		}
	}
	if spatialID.Valid {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, a.schema.Table("spatial_scales")), spatialID.Int64); err != nil {
			return catalog.ConvertDBError("delete spatial scale", err)
		}
	}
	return nil
}

func (a *Assembler) resolveDatasourceType(ctx context.Context, tx *sql.Tx, in catalog.DatasourceCreate) (int64, error) {
	types := a.schema.Table("datasource_types")

	var (
		row *sql.Row
		ref interface{}
	)
	if in.TypeID != nil {
		ref = *in.TypeID
		row = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1`, types), *in.TypeID)
	} else {
		ref = in.TypeName
		row = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE name = $1`, types), strings.TrimSpace(in.TypeName))
	}

	var id int64
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return 0, catalog.NewValidationError("datasource.type", "unknown datasource type %v", ref)
	}
	if err != nil {
		return 0, catalog.ConvertDBError("resolve datasource type", err)
	}
	return id, nil
}

func nullIfEmpty(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
