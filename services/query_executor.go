package services

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"gorm.io/gorm"
)

// Row maps column name to value. Values are nil, int64, float64, string or
// bool; TEXT and BLOB values both arrive as string.
type Row map[string]interface{}

// QueryResult is the outcome of one executed statement
type QueryResult struct {
	SQL          string        `json:"sql"`
	Verb         string        `json:"verb"`
	Mutation     bool          `json:"mutation"`
	Columns      []string      `json:"columns"`
	Rows         []Row         `json:"rows"`
	RowsAffected int64         `json:"rows_affected"`
	LastInsertID int64         `json:"last_insert_id,omitempty"`
	Truncated    bool          `json:"truncated"`
	Duration     time.Duration `json:"duration_ns"`

	// Records holds the row values in column order, keeping columns that
	// share a name apart.
	Records [][]interface{} `json:"-"`
}

// RowCount is the number of rows returned, or affected for a mutation
// without RETURNING
func (r *QueryResult) RowCount() int64 {
	if r.Mutation && len(r.Columns) == 0 {
		return r.RowsAffected
	}
	return int64(len(r.Rows))
}

// QueryExecutor runs untrusted SQL against the Northwind store
type QueryExecutor interface {
	Execute(ctx context.Context, statement string) (*QueryResult, error)
}

// ExecutorOptions bounds statement execution
type ExecutorOptions struct {
	Timeout  time.Duration
	MaxRows  int
	ReadOnly bool
}

// ExecutorOptionsFromConfig reads the QUERY_* settings
func ExecutorOptionsFromConfig(cfg *config.Config) ExecutorOptions {
	return ExecutorOptions{
		Timeout:  cfg.QueryTimeout,
		MaxRows:  cfg.QueryMaxRows,
		ReadOnly: cfg.QueryReadOnly,
	}
}

// Executor is the sqlite-backed QueryExecutor
type Executor struct {
	db     *sql.DB
	guard  *SQLGuard
	opts   ExecutorOptions
	logger *logrus.Logger
}

// NewExecutor creates an executor over the store behind db
func NewExecutor(db *gorm.DB, catalog *models.Catalog, opts ExecutorOptions) (*Executor, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 10000
	}
	return &Executor{
		db:     sqlDB,
		guard:  NewSQLGuard(catalog),
		opts:   opts,
		logger: config.GetLogger(),
	}, nil
}

var executorInstance QueryExecutor

// InitExecutor sets the global executor to one over the config database
func InitExecutor(cfg *config.Config) (QueryExecutor, error) {
	catalog, err := models.GetCatalog()
	if err != nil {
		return nil, err
	}
	executor, err := NewExecutor(config.GetDB(), catalog, ExecutorOptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	executorInstance = executor
	return executorInstance, nil
}

// GetExecutor returns the global executor
func GetExecutor() QueryExecutor {
	return executorInstance
}

// SetExecutor sets the global executor (primarily for testing)
func SetExecutor(e QueryExecutor) {
	executorInstance = e
}

// Execute validates and runs exactly one statement. The statement text is
// passed to the store unchanged. Errors are *QueryError values.
func (e *Executor) Execute(ctx context.Context, statement string) (*QueryResult, error) {
	stmt, err := e.guard.Inspect(statement)
	if err != nil {
		e.logRejected(err)
		return nil, err
	}
	if stmt.Mutation && e.opts.ReadOnly {
		err := newQueryError(KindStatementNotAllowed, stmt.Verb+" statements are disabled on this server", nil)
		e.logRejected(err)
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	result := &QueryResult{SQL: statement, Verb: stmt.Verb, Mutation: stmt.Mutation}

	if stmt.Mutation && !returnsRows(statement) {
		err = e.exec(runCtx, stmt, result)
	} else {
		err = e.query(runCtx, result)
	}
	result.Duration = time.Since(start)

	if err != nil {
		qe := classifyStoreError(runCtx, err)
		fields := logrus.Fields{
			"kind":     qe.Kind,
			"verb":     stmt.Verb,
			"duration": result.Duration.String(),
		}
		if qe.Fatal() {
			config.LogError(e.logger, "services", "Execute", "statement failed", fields, err)
		} else {
			e.logger.WithFields(fields).WithError(err).Info("Statement failed")
		}
		return nil, qe
	}

	e.logger.WithFields(logrus.Fields{
		"verb":      stmt.Verb,
		"tables":    stmt.Tables,
		"rows":      result.RowCount(),
		"truncated": result.Truncated,
		"duration":  result.Duration.String(),
	}).Info("Statement executed")
	return result, nil
}

func (e *Executor) exec(ctx context.Context, stmt *Statement, result *QueryResult) error {
	res, err := e.db.ExecContext(ctx, result.SQL)
	if err != nil {
		return err
	}
	if result.RowsAffected, err = res.RowsAffected(); err != nil {
		return err
	}
	// the connection's last rowid is stale after UPDATE and DELETE
	if (stmt.Action == "INSERT" || stmt.Action == "REPLACE") && result.RowsAffected > 0 {
		if id, err := res.LastInsertId(); err == nil {
			result.LastInsertID = id
		}
	}
	return nil
}

func (e *Executor) query(ctx context.Context, result *QueryResult) error {
	rows, err := e.db.QueryContext(ctx, result.SQL)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	result.Columns = columns
	result.Rows = []Row{}

	for rows.Next() {
		if len(result.Rows) >= e.opts.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}

		row := make(Row, len(columns))
		for i, v := range values {
			values[i] = normalizeValue(v)
			row[columns[i]] = values[i]
		}
		result.Rows = append(result.Rows, row)
		result.Records = append(result.Records, values)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !result.Truncated {
		return err
	}
	if result.Mutation {
		result.RowsAffected = int64(len(result.Rows))
	}
	return nil
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	}
	return v
}

// WithFiniteValues returns result with every infinite or NaN REAL replaced
// by its text form ("+Inf", "-Inf", "NaN"), which JSON cannot carry as a
// number. result itself is returned when it holds no such value.
func (r *QueryResult) WithFiniteValues() *QueryResult {
	if r == nil || !hasNonFinite(r.Records) {
		return r
	}

	out := *r
	out.Rows = make([]Row, len(r.Rows))
	for i, row := range r.Rows {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = finiteValue(v)
		}
		out.Rows[i] = copied
	}
	out.Records = make([][]interface{}, len(r.Records))
	for i, rec := range r.Records {
		copied := make([]interface{}, len(rec))
		for j, v := range rec {
			copied[j] = finiteValue(v)
		}
		out.Records[i] = copied
	}
	return &out
}

func hasNonFinite(records [][]interface{}) bool {
	for _, rec := range records {
		for _, v := range rec {
			if f, ok := v.(float64); ok && !isFinite(f) {
				return true
			}
		}
	}
	return false
}

func finiteValue(v interface{}) interface{} {
	if f, ok := v.(float64); ok && !isFinite(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v
}

func returnsRows(statement string) bool {
	tokens, err := tokenize(statement)
	if err != nil {
		return false
	}
	for _, tok := range tokens {
		if tok.isWord("RETURNING") {
			return true
		}
	}
	return false
}

func (e *Executor) logRejected(err error) {
	var qe *QueryError
	if errors.As(err, &qe) {
		e.logger.WithFields(logrus.Fields{
			"kind":   qe.Kind,
			"reason": qe.Message,
		}).Info("Statement rejected")
	}
}
