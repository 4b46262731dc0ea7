package datacube

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/lib/pq/hstore"
)

// Metadata adds free-form information to a product or a dataset
type Metadata map[string]string

// Scan implements the sql.Scanner interface.
func (m *Metadata) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []uint8:
		h := hstore.Hstore{}
		if err := h.Scan(src); err != nil {
			return err
		}
		*m = make(Metadata, len(h.Map))
		for key, value := range h.Map {
			if value.Valid {
				(*m)[key] = value.String
			}
		}
		return nil
	}
	return fmt.Errorf("cannot convert %T to Metadata", src)
}

// Value implements the driver.Valuer interface.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "", nil
	}
	data := hstore.Hstore{Map: make(map[string]sql.NullString, len(m))}
	for key, value := range m {
		data.Map[key] = sql.NullString{String: value, Valid: true}
	}
	v, err := data.Value()
	if v == nil {
		return nil, err
	}
	return string(v.([]byte)), nil
}
