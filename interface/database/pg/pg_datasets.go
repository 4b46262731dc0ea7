package pg

import (
	"context"
	"fmt"

	"github.com/airbusgeo/dcquery/interface/database"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/lib/pq"
)

// IndexDatasets implements Index
func (b Backend) IndexDatasets(ctx context.Context, datasets []*datacube.Dataset) error {
	if len(datasets) == 0 {
		return nil
	}
	dsData := make([][]interface{}, 0, len(datasets))
	var bandsData [][]interface{}
	for _, d := range datasets {
		footprint, err := d.Footprint.Value()
		if err != nil {
			return fmt.Errorf("IndexDatasets[%s]: %w", d.ID, err)
		}
		dsData = append(dsData, []interface{}{d.ID, d.Product, d.Time, footprint, d.CRS, d.Metadata})
		for measurement, loc := range d.Bands {
			bandsData = append(bandsData, []interface{}{d.ID, measurement, loc.URI, loc.Band})
		}
	}

	if err := b.copyIn(ctx, "datasets", []string{"id", "product", "datetime", "footprint", "crs", "metadata"}, dsData); err != nil {
		switch pqErrorCode(err) {
		case uniqueViolation:
			_, id := extractKeyValueFromDetail(err)
			return datacube.NewEntityAlreadyExists("Dataset", "id", id)
		case foreignKeyViolation:
			_, product := extractKeyValueFromDetail(err)
			return datacube.NewEntityNotFound("Product", "name", product, "")
		}
		return pqErrorFormat("IndexDatasets: %w", err)
	}
	if err := b.copyIn(ctx, "dataset_bands", []string{"dataset_id", "measurement", "uri", "band"}, bandsData); err != nil {
		return pqErrorFormat("IndexDatasets.bands: %w", err)
	}
	return nil
}

// IndexDatasets implements Index in a transaction
func (bdb BackendDB) IndexDatasets(ctx context.Context, datasets []*datacube.Dataset) error {
	return bdb.inTransaction(ctx, func(b Backend) error {
		return b.IndexDatasets(ctx, datasets)
	})
}

func datasetFilterClause(filter database.DatasetFilter) joinClause {
	wc := joinClause{}
	wc.append("d.product = $%d", filter.Product)
	wc.append("NOT d.archived")
	if filter.Time != nil {
		wc.append("d.datetime >= $%d", filter.Time.Start)
		wc.append("d.datetime < $%d", filter.Time.End)
	}
	if b := filter.LonLatBounds; b != nil {
		wc.append("ST_Intersects(d.footprint, ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326))", b[0], b[1], b[2], b[3])
	}
	if len(filter.Measurements) > 0 {
		wc.append("(SELECT count(DISTINCT b.measurement) FROM datacube.dataset_bands b WHERE b.dataset_id = d.id AND b.measurement = ANY($%d)) = $%d",
			pq.Array(filter.Measurements), len(filter.Measurements))
	}
	return wc
}

// CountDatasets implements Index
func (b Backend) CountDatasets(ctx context.Context, filter database.DatasetFilter) (int, error) {
	wc := datasetFilterClause(filter)
	var count int
	if err := b.pg.QueryRowContext(ctx, "SELECT count(*) FROM datacube.datasets d"+wc.WhereClause(), wc.Parameters...).Scan(&count); err != nil {
		return 0, pqErrorFormat("CountDatasets: %w", err)
	}
	return count, nil
}

// FindDatasets implements Index
func (b Backend) FindDatasets(ctx context.Context, filter database.DatasetFilter, limit int) (datasets []*datacube.Dataset, err error) {
	wc := datasetFilterClause(filter)
	query := "SELECT d.id, d.product, d.datetime, ST_AsHEXEWKB(ST_Multi(d.footprint)), d.crs, d.metadata FROM datacube.datasets d" +
		wc.WhereClause() + " ORDER BY d.datetime, d.id" + limitOffsetClause(0, limit)

	rows, err := b.pg.QueryContext(ctx, query, wc.Parameters...)
	if err != nil {
		return nil, pqErrorFormat("FindDatasets: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil && err == nil {
			err = e
		}
	}()

	idx := map[string]*datacube.Dataset{}
	var ids []string
	for rows.Next() {
		d := datacube.Dataset{Bands: map[string]datacube.BandLocation{}}
		if err := rows.Scan(&d.ID, &d.Product, &d.Time, &d.Footprint, &d.CRS, &d.Metadata); err != nil {
			return nil, fmt.Errorf("FindDatasets.scan: %w", err)
		}
		datasets = append(datasets, &d)
		idx[d.ID] = &d
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, pqErrorFormat("FindDatasets.rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := b.loadBands(ctx, ids, idx); err != nil {
		return nil, fmt.Errorf("FindDatasets.%w", err)
	}
	return datasets, nil
}

func (b Backend) loadBands(ctx context.Context, ids []string, idx map[string]*datacube.Dataset) (err error) {
	rows, err := b.pg.QueryContext(ctx, "SELECT dataset_id, measurement, uri, band FROM datacube.dataset_bands WHERE dataset_id = ANY($1)", pq.Array(ids))
	if err != nil {
		return pqErrorFormat("loadBands: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil && err == nil {
			err = e
		}
	}()
	for rows.Next() {
		var id, measurement string
		var loc datacube.BandLocation
		if err := rows.Scan(&id, &measurement, &loc.URI, &loc.Band); err != nil {
			return fmt.Errorf("loadBands.scan: %w", err)
		}
		if d, ok := idx[id]; ok {
			d.Bands[measurement] = loc
		}
	}
	return rows.Err()
}
