package rankport

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"
	proxy "github.com/shogo82148/go-sql-proxy"
)

// initializeSQLLogger optionally wraps the SQLite driver with a query
// tracer. When the trace file is configured it returns the traced driver
// name; otherwise the plain one. The returned closer owns the trace file.
func initializeSQLLogger(traceFilePath string) (string, io.Closer, error) {
	if traceFilePath == "" {
		return "sqlite3", io.NopCloser(nil), nil
	}

	traceLogFile, err := os.OpenFile(traceFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return "", nil, fmt.Errorf("cannot open sqlite trace file: %w", err)
	}

	sql.Register("sqlite3-with-trace", proxy.NewProxyContext(&sqlite3.SQLiteDriver{}, &proxy.HooksContext{
		PreExec: func(_ context.Context, _ *proxy.Stmt, _ []driver.NamedValue) (interface{}, error) {
			return time.Now(), nil
		},
		PostExec: func(_ context.Context, ctx interface{}, stmt *proxy.Stmt, args []driver.NamedValue, result driver.Result, _ error) error {
			enc := json.NewEncoder(traceLogFile)
			enc.SetEscapeHTML(false)
			starts := ctx.(time.Time)
			queryTime := time.Since(starts)

			argsValues := make([]any, 0, len(args))
			for _, arg := range args {
				argsValues = append(argsValues, arg.Value)
			}
			var affected int64
			if result != nil {
				var err error
				affected, err = result.RowsAffected()
				if err != nil {
					return fmt.Errorf("error driver.Result.RowsAffected at PostExec: %w", err)
				}
			}

			sqlLog := struct {
				Time         string        `json:"time"`
				Statement    string        `json:"statement"`
				Args         []interface{} `json:"args"`
				QueryTime    float64       `json:"query_time"`
				AffectedRows int64         `json:"affected_rows"`
			}{
				Time:         starts.Format(time.RFC3339),
				Statement:    stmt.QueryString,
				Args:         argsValues,
				QueryTime:    queryTime.Seconds(),
				AffectedRows: affected,
			}
			if err := enc.Encode(sqlLog); err != nil {
				return fmt.Errorf("error enc.Encode at PostExec: %w", err)
			}
			return nil
		},
	}))
	return "sqlite3-with-trace", traceLogFile, nil
}
