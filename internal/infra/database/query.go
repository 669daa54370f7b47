package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"service_entry_reporter/internal/domain/report"

	"github.com/sirupsen/logrus"
)

// ErrQuery signals a query execution failure. It aborts the failing
// category's processing; artifacts already produced in the same run are
// retained.
var ErrQuery = errors.New("report query failed")

// SQLReportQuerier runs the report SQL against the database for a given
// date window. The connection is opened lazily on first fetch, so a run
// that exits early (lock held, nothing due) never dials the database.
type SQLReportQuerier struct {
	dsn     string
	sqlText string
	logger  *logrus.Logger
	db      *sql.DB
}

// NewSQLReportQuerier reads the report SQL from sqlPath. The query must
// take the window bounds as positional parameters: $1 = start, $2 = end.
func NewSQLReportQuerier(dsn, sqlPath string, logger *logrus.Logger) (*SQLReportQuerier, error) {
	text, err := os.ReadFile(sqlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read report SQL %s: %w", sqlPath, err)
	}
	return &SQLReportQuerier{dsn: dsn, sqlText: string(text), logger: logger}, nil
}

func (q *SQLReportQuerier) connect() (*sql.DB, error) {
	if q.db != nil {
		return q.db, nil
	}
	db, err := NewPostgresConnection(q.dsn)
	if err != nil {
		return nil, err
	}
	q.logger.Info("DB connection successful")
	q.db = db
	return db, nil
}

// Close releases the connection pool if one was opened.
func (q *SQLReportQuerier) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

// FetchWindow executes the report query with the window bounds as
// parameters and materializes the full result in column order.
func (q *SQLReportQuerier) FetchWindow(ctx context.Context, w report.DateWindow) (*report.ResultSet, error) {
	db, err := q.connect()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, q.sqlText, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: reading columns: %v", ErrQuery, err)
	}

	rs := &report.ResultSet{Columns: cols}
	values := make([]sql.NullString, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrQuery, err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrQuery, err)
	}

	q.logger.Infof("Query returned %d rows and %d columns", rs.RowCount(), len(cols))
	return rs, nil
}
