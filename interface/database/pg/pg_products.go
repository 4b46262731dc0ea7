package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/lib/pq"
)

const schema = "datacube"

// CreateProduct implements Index
func (b Backend) CreateProduct(ctx context.Context, product *datacube.Product) error {
	_, err := b.pg.ExecContext(ctx,
		"INSERT INTO datacube.products (name, product_type, description, crs, res_x, res_y, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		product.Name, product.Type, product.Description, product.CRS, product.Resolution[1], product.Resolution[0], product.Metadata)
	switch pqErrorCode(err) {
	case noError:
	case uniqueViolation:
		return datacube.NewEntityAlreadyExists("Product", "name", product.Name)
	default:
		return pqErrorFormat("CreateProduct: %w", err)
	}

	data := make([][]interface{}, len(product.Measurements))
	for i, m := range product.Measurements {
		var nodata sql.NullFloat64
		if m.NoData != nil {
			nodata = sql.NullFloat64{Float64: *m.NoData, Valid: true}
		}
		data[i] = []interface{}{product.Name, m.Name, i, pq.Array(m.Aliases), m.DType, nodata, m.Units}
	}
	if err := b.copyIn(ctx, "measurements", []string{"product", "name", "idx", "aliases", "dtype", "nodata", "units"}, data); err != nil {
		if pqErrorCode(err) == uniqueViolation {
			_, value := extractKeyValueFromDetail(err)
			return datacube.NewValidationError("Product %s: measurement defined twice (%s)", product.Name, value)
		}
		return pqErrorFormat("CreateProduct.measurements: %w", err)
	}
	return nil
}

// CreateProduct implements Index in a transaction
func (bdb BackendDB) CreateProduct(ctx context.Context, product *datacube.Product) error {
	return bdb.inTransaction(ctx, func(b Backend) error {
		return b.CreateProduct(ctx, product)
	})
}

// ReadProduct implements Index
func (b Backend) ReadProduct(ctx context.Context, name string) (*datacube.Product, error) {
	products, err := b.findProducts(ctx, "=", name)
	if err != nil {
		return nil, fmt.Errorf("ReadProduct.%w", err)
	}
	if len(products) == 0 {
		return nil, datacube.NewEntityNotFound("Product", "name", name, "")
	}
	return products[0], nil
}

// ListProducts implements Index
func (b Backend) ListProducts(ctx context.Context, namelike string) ([]*datacube.Product, error) {
	operator := ""
	if namelike != "" {
		namelike, operator = parseLike(namelike)
	}
	products, err := b.findProducts(ctx, operator, namelike)
	if err != nil {
		return nil, fmt.Errorf("ListProducts.%w", err)
	}
	return products, nil
}

func (b Backend) findProducts(ctx context.Context, operator, name string) (products []*datacube.Product, err error) {
	query := "SELECT p.name, p.product_type, p.description, p.crs, p.res_x, p.res_y, p.metadata," +
		" m.name, m.aliases, m.dtype, m.nodata, m.units" +
		" FROM datacube.products p LEFT JOIN datacube.measurements m ON m.product = p.name"
	wc := joinClause{}
	if operator != "" {
		wc.append("p.name "+operator+" $%d", name)
	}
	query += wc.WhereClause() + " ORDER BY p.name, m.idx"

	rows, err := b.pg.QueryContext(ctx, query, wc.Parameters...)
	if err != nil {
		return nil, pqErrorFormat("findProducts: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil && err == nil {
			err = e
		}
	}()

	var product *datacube.Product
	for rows.Next() {
		var p datacube.Product
		var resX, resY float64
		var mName, mUnits sql.NullString
		var mDType datacube.DType
		var mNoData sql.NullFloat64
		var aliases []string
		if err := rows.Scan(&p.Name, &p.Type, &p.Description, &p.CRS, &resX, &resY, &p.Metadata,
			&mName, pq.Array(&aliases), &mDType, &mNoData, &mUnits); err != nil {
			return nil, fmt.Errorf("findProducts.scan: %w", err)
		}
		if product == nil || product.Name != p.Name {
			p.Resolution = [2]float64{resY, resX}
			product = &p
			products = append(products, product)
		}
		if !mName.Valid {
			continue
		}
		m := datacube.Measurement{
			Name:    mName.String,
			Aliases: aliases,
			DType:   mDType,
			Units:   mUnits.String,
		}
		if mNoData.Valid {
			nodata := mNoData.Float64
			m.NoData = &nodata
		}
		product.Measurements = append(product.Measurements, m)
	}
	return products, rows.Err()
}
