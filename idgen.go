package rankport

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// idDispenseAttempts bounds the retry loop around shared-store write
// contention. Exhausting it is an internal error.
const idDispenseAttempts = 100

// errIDContention marks a transient advance failure (lock-wait/deadlock
// class). The generator retries these; everything else escalates.
var errIDContention = errors.New("id_generator contention")

// IDSource atomically advances the global counter and returns its new value.
type IDSource interface {
	Advance(ctx context.Context) (int64, error)
}

// mysqlIDSource advances a single counter row in the shared store.
// REPLACE + LastInsertId relies on the AUTO_INCREMENT column.
type mysqlIDSource struct {
	db *sqlx.DB
}

func (s *mysqlIDSource) Advance(ctx context.Context) (int64, error) {
	ret, err := s.db.ExecContext(ctx, "REPLACE INTO id_generator (stub) VALUES (?);", "a")
	if err != nil {
		var merr *mysql.MySQLError
		if errors.As(err, &merr) && merr.Number == 1213 { // deadlock
			return 0, fmt.Errorf("error REPLACE INTO id_generator: %s: %w", err, errIDContention)
		}
		return 0, fmt.Errorf("error REPLACE INTO id_generator: %w", err)
	}
	id, err := ret.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error ret.LastInsertId: %w", err)
	}
	return id, nil
}

// IDGenerator dispenses IDs unique across every tenant in the system.
type IDGenerator struct {
	source IDSource
}

func NewIDGenerator(adminDB *sqlx.DB) *IDGenerator {
	return &IDGenerator{source: &mysqlIDSource{db: adminDB}}
}

// システム全体で一意なIDを生成する
func (g *IDGenerator) Dispense(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < idDispenseAttempts; i++ {
		id, err := g.source.Advance(ctx)
		if err != nil {
			if errors.Is(err, errIDContention) {
				lastErr = err
				continue
			}
			return "", err
		}
		return fmt.Sprintf("%x", id), nil
	}
	return "", fmt.Errorf("error dispense id, retries exhausted: %w", lastErr)
}
