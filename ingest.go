package rankport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// ErrCompetitionFinished rejects score uploads against a closed
// competition. A normal rejected request, not a bug.
var ErrCompetitionFinished = errors.New("competition is finished")

type scoreUploadRow struct {
	playerID string
	score    int64
}

// parseScoreCSV reads the upload: a player_id,score header then one row per
// score. Shape and parse failures are 400-class.
func parseScoreCSV(src io.Reader) ([]scoreUploadRow, error) {
	r := csv.NewReader(src)
	headers, err := r.Read()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("error read CSV header: %s", err))
	}
	if !reflect.DeepEqual(headers, []string{"player_id", "score"}) {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid CSV headers")
	}

	var rows []scoreUploadRow
	for {
		row, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("error read CSV row: %s", err))
		}
		if len(row) != 2 {
			return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("row must have two columns: %#v", row))
		}
		playerID, scoreStr := row[0], row[1]
		score, err := strconv.ParseInt(scoreStr, 10, 64)
		if err != nil {
			return nil, echo.NewHTTPError(
				http.StatusBadRequest,
				fmt.Sprintf("error strconv.ParseInt: scoreStr=%s, %s", scoreStr, err),
			)
		}
		rows = append(rows, scoreUploadRow{playerID: playerID, score: score})
	}
	return rows, nil
}

// ingestScores replaces the whole score set of one competition. Under the
// tenant lock so readers never observe the window between DELETE and the
// inserts; in one SQLite transaction so a mid-loop failure commits nothing.
func (s *Server) ingestScores(
	ctx context.Context,
	tenantDB *sqlx.DB,
	v *Viewer,
	comp *CompetitionRow,
	rows []scoreUploadRow,
) (int64, error) {
	if comp.FinishedAt.Valid {
		return 0, ErrCompetitionFinished
	}

	fl, err := s.locker.LockTenant(ctx, v.tenantID)
	if err != nil {
		return 0, fmt.Errorf("error LockTenant: %w", err)
	}
	defer fl.Close()

	if err := verifyPlayersExist(ctx, tenantDB, rows); err != nil {
		return 0, err
	}

	playerScoreRows := make([]PlayerScoreRow, 0, len(rows))
	for i, row := range rows {
		id, err := s.ids.Dispense(ctx)
		if err != nil {
			return 0, fmt.Errorf("error Dispense: %w", err)
		}
		now := time.Now().Unix()
		playerScoreRows = append(playerScoreRows, PlayerScoreRow{
			ID:            id,
			TenantID:      v.tenantID,
			PlayerID:      row.playerID,
			CompetitionID: comp.ID,
			Score:         row.score,
			RowNum:        int64(i),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	tx, err := tenantDB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error BeginTxx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(
		ctx,
		"DELETE FROM player_score WHERE tenant_id = ? AND competition_id = ?",
		v.tenantID,
		comp.ID,
	); err != nil {
		return 0, fmt.Errorf("error Delete player_score: tenantID=%d, competitionID=%s, %w", v.tenantID, comp.ID, err)
	}
	for _, ps := range playerScoreRows {
		if _, err := tx.NamedExecContext(
			ctx,
			"INSERT INTO player_score (id, tenant_id, player_id, competition_id, score, row_num, created_at, updated_at) VALUES (:id, :tenant_id, :player_id, :competition_id, :score, :row_num, :created_at, :updated_at)",
			ps,
		); err != nil {
			return 0, fmt.Errorf(
				"error Insert player_score: id=%s, playerID=%s, competitionID=%s, rowNum=%d, %w",
				ps.ID, ps.PlayerID, ps.CompetitionID, ps.RowNum, err,
			)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error tx.Commit: %w", err)
	}

	return int64(len(playerScoreRows)), nil
}

// 全プレイヤーがテナントに存在するかチェックする
func verifyPlayersExist(ctx context.Context, tenantDB *sqlx.DB, rows []scoreUploadRow) error {
	if len(rows) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	playerIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.playerID]; ok {
			continue
		}
		seen[row.playerID] = struct{}{}
		playerIDs = append(playerIDs, row.playerID)
	}

	query, params, err := sqlx.In("SELECT id FROM player WHERE id IN (?)", playerIDs)
	if err != nil {
		return fmt.Errorf("error sqlx.In: %w", err)
	}
	var found []string
	if err := tenantDB.SelectContext(ctx, &found, query, params...); err != nil {
		return fmt.Errorf("error Select player ids: %w", err)
	}
	foundSet := make(map[string]struct{}, len(found))
	for _, id := range found {
		foundSet[id] = struct{}{}
	}
	for _, id := range playerIDs {
		if _, ok := foundSet[id]; !ok {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("player not found: %s", id))
		}
	}
	return nil
}
