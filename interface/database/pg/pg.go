package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Backend implements database.Index
type Backend struct {
	pg pgInterface
}

// BackendDB is a Backend on a sql.DB
type BackendDB struct {
	*sql.DB
	Backend
}

// inTransaction runs f in a transaction, rollbacked if f fails
func (bdb BackendDB) inTransaction(ctx context.Context, f func(b Backend) error) error {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return pqErrorFormat("BeginTx: %w", err)
	}
	if err := f(Backend{pg: tx}); err != nil {
		if e := tx.Rollback(); e != nil && e != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, e)
		}
		return err
	}
	return pqErrorFormat("Commit: %w", tx.Commit())
}

// ConnStringFromId returns a postgres connection string
func ConnStringFromId(dbName, dbUser, dbHost, dbPassword string) (string, error) {
	if dbName == "" {
		return "", fmt.Errorf("missing dbName flag")
	}
	if dbUser == "" {
		return "", fmt.Errorf("missing dbUser flag")
	}
	if dbHost == "" {
		return "", fmt.Errorf("missing dbHost flag")
	}
	if dbPassword == "" {
		return "", fmt.Errorf("missing dbPassword flag")
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?binary_parameters=yes", dbUser, dbPassword, dbHost, dbName), nil
}

// New opens a connection to the database and checks it is alive
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	db.SetMaxOpenConns(5)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pqErrorFormat("failed to ping database: %w", err)
	}

	return &BackendDB{db, Backend{pg: db}}, nil
}

func (b Backend) copyIn(ctx context.Context, table string, columns []string, data [][]interface{}) (err error) {
	stmt, err := b.pg.PrepareContext(ctx, pq.CopyInSchema(schema, table, columns...))
	if err != nil {
		return pqErrorFormat("copyIn."+table+".prepare: %w", err)
	}
	defer func() {
		if e := stmt.Close(); e != nil && err == nil {
			err = e
		}
	}()

	for _, d := range data {
		if _, err := stmt.ExecContext(ctx, d...); err != nil {
			return err
		}
	}

	_, err = stmt.ExecContext(ctx)
	return err
}

func limitOffsetClause(page, limit int) string {
	if limit != 0 {
		if page != 0 {
			return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, page*limit)
		}
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

// parseString to be used by LIKE
// * will be replace by %, "?" by "_", "_" by "\\_"
// Return false if the string does not have ? or *
func parseString(s string) (string, bool) {
	s = strings.ReplaceAll(s, "_", "\\_")
	news := strings.ReplaceAll(strings.ReplaceAll(s, "*", "%"), "?", "_")
	return news, s != news
}

// parse value to be used by LIKE
// * will be replace by %, "?" by "_" and (?i) suffix for case-insensitivity
// Return operator =, LIKE or ILIKE
func parseLike(value string) (string, string) {
	if strings.HasSuffix(value, "(?i)") {
		s, _ := parseString(value[0 : len(value)-4])
		return s, "ILIKE"
	}
	if newv, parsed := parseString(value); parsed {
		return newv, "LIKE"
	}
	return value, "="
}

type joinClause struct {
	Parameters []interface{}
	clause     []string
}

// append a clause with $%d placeholders for each parameter
func (wc *joinClause) append(clause string, parameters ...interface{}) {
	positions := make([]interface{}, len(parameters))
	for i := range parameters {
		positions[i] = len(wc.Parameters) + i + 1
	}
	wc.Parameters = append(wc.Parameters, parameters...)
	wc.clause = append(wc.clause, fmt.Sprintf(clause, positions...))
}

func (wc joinClause) WhereClause() string {
	return wc.Clause(" WHERE ", " AND ", "")
}

func (wc joinClause) Clause(prefix, sep, suffix string) string {
	if len(wc.clause) > 0 {
		return prefix + strings.Join(wc.clause, sep) + suffix
	}
	return ""
}
