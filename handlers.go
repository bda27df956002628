package rankport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

const tenantsBillingPageSize = 10

type TenantsAddHandlerResult struct {
	Tenant TenantWithBilling `json:"tenant"`
}

// SaaS管理者用API
// テナントを追加する
// POST /api/admin/tenants/add
func (s *Server) tenantsAddHandler(c echo.Context) error {
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	}
	if v.tenantName != adminTenantName {
		// admin: SaaS管理者用の特別なテナント名
		return echo.NewHTTPError(
			http.StatusNotFound,
			fmt.Sprintf("%s has not this API", v.tenantName),
		)
	}
	if v.role != RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}

	displayName := c.FormValue("display_name")
	name := c.FormValue("name")
	if err := validateTenantName(name); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	now := time.Now().Unix()
	insertRes, err := s.adminDB.ExecContext(
		ctx,
		"INSERT INTO tenant (name, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, displayName, now, now,
	)
	if err != nil {
		var merr *mysql.MySQLError
		if errors.As(err, &merr) && merr.Number == 1062 { // duplicate entry
			return echo.NewHTTPError(http.StatusBadRequest, "duplicate tenant")
		}
		return fmt.Errorf(
			"error Insert tenant: name=%s, displayName=%s, createdAt=%d, updatedAt=%d, %w",
			name, displayName, now, now, err,
		)
	}
	id, err := insertRes.LastInsertId()
	if err != nil {
		return fmt.Errorf("error get LastInsertId: %w", err)
	}

	// テナント行が先、ストア作成が後。この間でクラッシュするとストアのない
	// テナント行が残るが、それは検出可能な不整合として扱い黙って直さない
	if err := s.stores.Provision(id); err != nil {
		return fmt.Errorf("error Provision tenant store: id=%d, name=%s, %w", id, name, err)
	}

	res := TenantsAddHandlerResult{
		Tenant: TenantWithBilling{
			ID:          strconv.FormatInt(id, 10),
			Name:        name,
			DisplayName: displayName,
			BillingYen:  0,
		},
	}
	return c.JSON(http.StatusOK, SuccessResult{Status: true, Data: res})
}

type TenantsBillingHandlerResult struct {
	Tenants []TenantWithBilling `json:"tenants"`
}

// SaaS管理者用API
// テナントごとの課金レポートを最大10件、テナントのid降順で取得する
// GET /api/admin/tenants/billing
// URL引数beforeを指定した場合、指定した値よりもidが小さいテナントの課金レポートを取得する
func (s *Server) tenantsBillingHandler(c echo.Context) error {
	if host := c.Request().Host; host != s.cfg.AdminHostname {
		return echo.NewHTTPError(
			http.StatusNotFound,
			fmt.Sprintf("invalid hostname %s", host),
		)
	}

	ctx := c.Request().Context()
	if v, err := s.parseViewer(c); err != nil {
		return err
	} else if v.role != RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}

	before := c.QueryParam("before")
	var beforeID int64
	if before != "" {
		var err error
		beforeID, err = strconv.ParseInt(before, 10, 64)
		if err != nil {
			return echo.NewHTTPError(
				http.StatusBadRequest,
				fmt.Sprintf("failed to parse query parameter 'before': %s", err.Error()),
			)
		}
	}
	// テナントごとに
	//   大会ごとに
	//     scoreが登録されているplayer * 100
	//     scoreが登録されていないplayerでアクセスした人 * 10
	//   を合計したものを
	// テナントの課金とする
	ts := []TenantRow{}
	if err := s.adminDB.SelectContext(ctx, &ts, "SELECT * FROM tenant ORDER BY id DESC"); err != nil {
		return fmt.Errorf("error Select tenant: %w", err)
	}
	tenantBillings := make([]TenantWithBilling, 0, len(ts))
	for _, t := range ts {
		if beforeID != 0 && beforeID <= t.ID {
			continue
		}
		err := func(t TenantRow) error {
			tenantDB, err := s.stores.Resolve(t.ID)
			if err != nil {
				return fmt.Errorf("error Resolve tenant store: %w", err)
			}
			defer tenantDB.Close()
			total, err := s.billingReportByTenant(ctx, tenantDB, t.ID)
			if err != nil {
				return fmt.Errorf("error billingReportByTenant: %w", err)
			}
			tenantBillings = append(tenantBillings, TenantWithBilling{
				ID:          strconv.FormatInt(t.ID, 10),
				Name:        t.Name,
				DisplayName: t.DisplayName,
				BillingYen:  total,
			})
			return nil
		}(t)
		if err != nil {
			return err
		}
		if len(tenantBillings) >= tenantsBillingPageSize {
			break
		}
	}
	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data: TenantsBillingHandlerResult{
			Tenants: tenantBillings,
		},
	})
}

type PlayerDetail struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	IsDisqualified bool   `json:"is_disqualified"`
}

type PlayersListHandlerResult struct {
	Players []PlayerDetail `json:"players"`
}

// テナント管理者向けAPI
// GET /api/organizer/players
// 参加者一覧を返す
func (s *Server) playersListHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	} else if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	var pls []PlayerRow
	if err := tenantDB.SelectContext(
		ctx,
		&pls,
		"SELECT * FROM player WHERE tenant_id=? ORDER BY created_at DESC",
		v.tenantID,
	); err != nil {
		return fmt.Errorf("error Select player: %w", err)
	}
	pds := make([]PlayerDetail, 0, len(pls))
	for _, p := range pls {
		pds = append(pds, PlayerDetail{
			ID:             p.ID,
			DisplayName:    p.DisplayName,
			IsDisqualified: p.IsDisqualified,
		})
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data:   PlayersListHandlerResult{Players: pds},
	})
}

type PlayersAddHandlerResult struct {
	Players []PlayerDetail `json:"players"`
}

// テナント管理者向けAPI
// POST /api/organizer/players/add
// テナントに参加者を追加する
func (s *Server) playersAddHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	} else if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	params, err := c.FormParams()
	if err != nil {
		return fmt.Errorf("error c.FormParams: %w", err)
	}
	displayNames := params["display_name[]"]

	pds := make([]PlayerDetail, 0, len(displayNames))
	for _, displayName := range displayNames {
		id, err := s.ids.Dispense(ctx)
		if err != nil {
			return fmt.Errorf("error Dispense: %w", err)
		}

		now := time.Now().Unix()
		if _, err := tenantDB.ExecContext(
			ctx,
			"INSERT INTO player (id, tenant_id, display_name, is_disqualified, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			id, v.tenantID, displayName, false, now, now,
		); err != nil {
			return fmt.Errorf(
				"error Insert player at tenantDB: id=%s, displayName=%s, isDisqualified=%t, createdAt=%d, updatedAt=%d, %w",
				id, displayName, false, now, now, err,
			)
		}
		pds = append(pds, PlayerDetail{
			ID:             id,
			DisplayName:    displayName,
			IsDisqualified: false,
		})
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data:   PlayersAddHandlerResult{Players: pds},
	})
}

type PlayerDisqualifiedHandlerResult struct {
	Player PlayerDetail `json:"player"`
}

// テナント管理者向けAPI
// POST /api/organizer/player/:player_id/disqualified
// 参加者を失格にする(一方向の遷移で、再度資格を得る操作はない)
func (s *Server) playerDisqualifiedHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	} else if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	playerID := c.Param("player_id")

	now := time.Now().Unix()
	if _, err := tenantDB.ExecContext(
		ctx,
		"UPDATE player SET is_disqualified = ?, updated_at = ? WHERE id = ?",
		true, now, playerID,
	); err != nil {
		return fmt.Errorf(
			"error Update player: isDisqualified=%t, updatedAt=%d, id=%s, %w",
			true, now, playerID, err,
		)
	}
	p, err := retrievePlayer(ctx, tenantDB, playerID)
	if err != nil {
		// 存在しないプレイヤー
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "player not found")
		}
		return fmt.Errorf("error retrievePlayer: %w", err)
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data: PlayerDisqualifiedHandlerResult{
			Player: PlayerDetail{
				ID:             p.ID,
				DisplayName:    p.DisplayName,
				IsDisqualified: p.IsDisqualified,
			},
		},
	})
}

type CompetitionDetail struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	IsFinished bool   `json:"is_finished"`
}

type CompetitionsAddHandlerResult struct {
	Competition CompetitionDetail `json:"competition"`
}

// テナント管理者向けAPI
// POST /api/organizer/competitions/add
// 大会を追加する
func (s *Server) competitionsAddHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	} else if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	title := c.FormValue("title")

	now := time.Now().Unix()
	id, err := s.ids.Dispense(ctx)
	if err != nil {
		return fmt.Errorf("error Dispense: %w", err)
	}
	if _, err := tenantDB.ExecContext(
		ctx,
		"INSERT INTO competition (id, tenant_id, title, finished_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, v.tenantID, title, sql.NullInt64{}, now, now,
	); err != nil {
		return fmt.Errorf(
			"error Insert competition: id=%s, tenant_id=%d, title=%s, finishedAt=null, createdAt=%d, updatedAt=%d, %w",
			id, v.tenantID, title, now, now, err,
		)
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data: CompetitionsAddHandlerResult{
			Competition: CompetitionDetail{
				ID:         id,
				Title:      title,
				IsFinished: false,
			},
		},
	})
}

// テナント管理者向けAPI
// POST /api/organizer/competition/:competition_id/finish
// 大会を終了する(finished_atは一度だけ設定され、再開はない)
func (s *Server) competitionFinishHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	} else if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	id := c.Param("competition_id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "competition_id required")
	}
	if _, err := retrieveCompetition(ctx, tenantDB, id); err != nil {
		// 存在しない大会
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "competition not found")
		}
		return fmt.Errorf("error retrieveCompetition: %w", err)
	}

	now := time.Now().Unix()
	if _, err := tenantDB.ExecContext(
		ctx,
		"UPDATE competition SET finished_at = ?, updated_at = ? WHERE id = ? AND finished_at IS NULL",
		now, now, id,
	); err != nil {
		return fmt.Errorf(
			"error Update competition: finishedAt=%d, updatedAt=%d, id=%s, %w",
			now, now, id, err,
		)
	}
	return c.JSON(http.StatusOK, SuccessResult{Status: true})
}

type ScoreHandlerResult struct {
	Rows int64 `json:"rows"`
}

// テナント管理者向けAPI
// POST /api/organizer/competition/:competition_id/score
// 大会のスコアをCSVでアップロードする(全置換)
func (s *Server) competitionScoreHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	}
	if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	competitionID := c.Param("competition_id")
	if competitionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "competition_id required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	comp, err := retrieveCompetition(ctx, tenantDB, competitionID)
	if err != nil {
		// 存在しない大会
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "competition not found")
		}
		return fmt.Errorf("error retrieveCompetition: %w", err)
	}

	fh, err := c.FormFile("scores")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "scores file required")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("error fh.Open FormFile(scores): %w", err)
	}
	defer f.Close()

	rows, err := parseScoreCSV(f)
	if err != nil {
		return err
	}

	n, err := s.ingestScores(ctx, tenantDB, v, comp, rows)
	if err != nil {
		if errors.Is(err, ErrCompetitionFinished) {
			return c.JSON(http.StatusBadRequest, FailureResult{
				Status:  false,
				Message: "competition is finished",
			})
		}
		return err
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data:   ScoreHandlerResult{Rows: n},
	})
}

type BillingHandlerResult struct {
	Reports []BillingReport `json:"reports"`
}

// テナント管理者向けAPI
// GET /api/organizer/billing
// テナント内の課金レポートを取得する
func (s *Server) billingHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	}
	if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	cs := []CompetitionRow{}
	if err := tenantDB.SelectContext(
		ctx,
		&cs,
		"SELECT * FROM competition WHERE tenant_id=? ORDER BY created_at DESC",
		v.tenantID,
	); err != nil {
		return fmt.Errorf("error Select competition: %w", err)
	}
	tbrs := make([]BillingReport, 0, len(cs))
	for _, comp := range cs {
		report, err := s.billingReportByCompetition(ctx, tenantDB, v.tenantID, comp.ID)
		if err != nil {
			return fmt.Errorf("error billingReportByCompetition: %w", err)
		}
		tbrs = append(tbrs, *report)
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data:   BillingHandlerResult{Reports: tbrs},
	})
}

type PlayerScoreDetail struct {
	CompetitionTitle string `json:"competition_title"`
	Score            int64  `json:"score"`
}

type PlayerHandlerResult struct {
	Player PlayerDetail        `json:"player"`
	Scores []PlayerScoreDetail `json:"scores"`
}

// 参加者向けAPI
// GET /api/player/player/:player_id
// 参加者の詳細情報を取得する
func (s *Server) playerHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	}
	if v.role != RolePlayer {
		return echo.NewHTTPError(http.StatusForbidden, "role player required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	if err := authorizePlayer(ctx, tenantDB, v.playerID); err != nil {
		return err
	}

	playerID := c.Param("player_id")
	if playerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "player_id is required")
	}
	p, err := retrievePlayer(ctx, tenantDB, playerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "player not found")
		}
		return fmt.Errorf("error retrievePlayer: %w", err)
	}
	cs := []CompetitionRow{}
	if err := tenantDB.SelectContext(
		ctx,
		&cs,
		"SELECT * FROM competition WHERE tenant_id = ? ORDER BY created_at ASC",
		v.tenantID,
	); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("error Select competition: %w", err)
	}

	// player_scoreを読んでいるときに更新が走ると不整合が起こるのでロックを取得する
	fl, err := s.locker.LockTenant(ctx, v.tenantID)
	if err != nil {
		return fmt.Errorf("error LockTenant: %w", err)
	}
	defer fl.Close()
	pss := make([]PlayerScoreRow, 0, len(cs))
	for _, comp := range cs {
		ps := PlayerScoreRow{}
		if err := tenantDB.GetContext(
			ctx,
			&ps,
			// 最後にCSVに登場したスコアを採用する = row_numが一番大きいもの
			"SELECT * FROM player_score WHERE tenant_id = ? AND competition_id = ? AND player_id = ? ORDER BY row_num DESC LIMIT 1",
			v.tenantID,
			comp.ID,
			p.ID,
		); err != nil {
			// 行がない = スコアが記録されてない
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return fmt.Errorf("error Select player_score: tenantID=%d, competitionID=%s, playerID=%s, %w", v.tenantID, comp.ID, p.ID, err)
		}
		pss = append(pss, ps)
	}

	psds := make([]PlayerScoreDetail, 0, len(pss))
	for _, ps := range pss {
		comp, err := retrieveCompetition(ctx, tenantDB, ps.CompetitionID)
		if err != nil {
			return fmt.Errorf("error retrieveCompetition: %w", err)
		}
		psds = append(psds, PlayerScoreDetail{
			CompetitionTitle: comp.Title,
			Score:            ps.Score,
		})
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data: PlayerHandlerResult{
			Player: PlayerDetail{
				ID:             p.ID,
				DisplayName:    p.DisplayName,
				IsDisqualified: p.IsDisqualified,
			},
			Scores: psds,
		},
	})
}

type CompetitionRankingHandlerResult struct {
	Competition CompetitionDetail `json:"competition"`
	Ranks       []CompetitionRank `json:"ranks"`
}

// 参加者向けAPI
// GET /api/player/competition/:competition_id/ranking
// 大会ごとのランキングを取得する
func (s *Server) competitionRankingHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	}
	if v.role != RolePlayer {
		return echo.NewHTTPError(http.StatusForbidden, "role player required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	if err := authorizePlayer(ctx, tenantDB, v.playerID); err != nil {
		return err
	}

	competitionID := c.Param("competition_id")
	if competitionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "competition_id is required")
	}

	// 大会の存在確認
	competition, err := retrieveCompetition(ctx, tenantDB, competitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "competition not found")
		}
		return fmt.Errorf("error retrieveCompetition: %w", err)
	}

	// 閲覧1回ごとに必ず1行記録する。課金側が終了後の訪問を落とすので
	// ここでは大会の状態を見ない
	now := time.Now().Unix()
	if _, err := s.adminDB.ExecContext(
		ctx,
		"INSERT INTO visit_history (player_id, tenant_id, competition_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		v.playerID, v.tenantID, competitionID, now, now,
	); err != nil {
		return fmt.Errorf(
			"error Insert visit_history: playerID=%s, tenantID=%d, competitionID=%s, createdAt=%d, %w",
			v.playerID, v.tenantID, competitionID, now, err,
		)
	}

	var rankAfter int64
	if rankAfterStr := c.QueryParam("rank_after"); rankAfterStr != "" {
		if rankAfter, err = strconv.ParseInt(rankAfterStr, 10, 64); err != nil {
			return echo.NewHTTPError(
				http.StatusBadRequest,
				fmt.Sprintf("failed to parse query parameter 'rank_after': %s", err.Error()),
			)
		}
	}

	// player_scoreを読んでいるときに更新が走ると不整合が起こるのでロックを取得する
	fl, err := s.locker.LockTenant(ctx, v.tenantID)
	if err != nil {
		return fmt.Errorf("error LockTenant: %w", err)
	}
	defer fl.Close()
	pss := []PlayerScoreRow{}
	if err := tenantDB.SelectContext(
		ctx,
		&pss,
		"SELECT * FROM player_score WHERE tenant_id = ? AND competition_id = ? ORDER BY row_num DESC",
		v.tenantID,
		competitionID,
	); err != nil {
		return fmt.Errorf("error Select player_score: tenantID=%d, competitionID=%s, %w", v.tenantID, competitionID, err)
	}

	displayNames, err := retrieveDisplayNames(ctx, tenantDB, pss)
	if err != nil {
		return err
	}
	ranks := buildCompetitionRanks(pss, displayNames)

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data: CompetitionRankingHandlerResult{
			Competition: CompetitionDetail{
				ID:         competition.ID,
				Title:      competition.Title,
				IsFinished: competition.FinishedAt.Valid,
			},
			Ranks: pageRanks(ranks, rankAfter),
		},
	})
}

// スコアが登録されている参加者の表示名をまとめて取得する
func retrieveDisplayNames(ctx context.Context, tenantDB dbOrTx, pss []PlayerScoreRow) (map[string]string, error) {
	if len(pss) == 0 {
		return map[string]string{}, nil
	}
	seen := map[string]struct{}{}
	playerIDs := make([]string, 0, len(pss))
	for _, ps := range pss {
		if _, ok := seen[ps.PlayerID]; ok {
			continue
		}
		seen[ps.PlayerID] = struct{}{}
		playerIDs = append(playerIDs, ps.PlayerID)
	}

	query, params, err := sqlx.In("SELECT id, display_name FROM player WHERE id IN (?)", playerIDs)
	if err != nil {
		return nil, fmt.Errorf("error sqlx.In: %w", err)
	}
	rows := []struct {
		ID          string `db:"id"`
		DisplayName string `db:"display_name"`
	}{}
	if err := tenantDB.SelectContext(ctx, &rows, query, params...); err != nil {
		return nil, fmt.Errorf("error Select player display names: %w", err)
	}
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.DisplayName
	}
	return names, nil
}

type CompetitionsHandlerResult struct {
	Competitions []CompetitionDetail `json:"competitions"`
}

// 参加者向けAPI
// GET /api/player/competitions
// 大会の一覧を取得する
func (s *Server) playerCompetitionsHandler(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	}
	if v.role != RolePlayer {
		return echo.NewHTTPError(http.StatusForbidden, "role player required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	if err := authorizePlayer(ctx, tenantDB, v.playerID); err != nil {
		return err
	}
	return s.competitionsHandler(c, v, tenantDB)
}

// テナント管理者向けAPI
// GET /api/organizer/competitions
// 大会の一覧を取得する
func (s *Server) organizerCompetitionsHandler(c echo.Context) error {
	v, err := s.parseViewer(c)
	if err != nil {
		return err
	}
	if v.role != RoleOrganizer {
		return echo.NewHTTPError(http.StatusForbidden, "role organizer required")
	}

	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	return s.competitionsHandler(c, v, tenantDB)
}

func (s *Server) competitionsHandler(c echo.Context, v *Viewer, tenantDB dbOrTx) error {
	ctx := c.Request().Context()

	cs := []CompetitionRow{}
	if err := tenantDB.SelectContext(
		ctx,
		&cs,
		"SELECT * FROM competition WHERE tenant_id=? ORDER BY created_at DESC",
		v.tenantID,
	); err != nil {
		return fmt.Errorf("error Select competition: %w", err)
	}
	cds := make([]CompetitionDetail, 0, len(cs))
	for _, comp := range cs {
		cds = append(cds, CompetitionDetail{
			ID:         comp.ID,
			Title:      comp.Title,
			IsFinished: comp.FinishedAt.Valid,
		})
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data:   CompetitionsHandlerResult{Competitions: cds},
	})
}

type TenantDetail struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type MeHandlerResult struct {
	Tenant   *TenantDetail `json:"tenant"`
	Me       *PlayerDetail `json:"me"`
	Role     string        `json:"role"`
	LoggedIn bool          `json:"logged_in"`
}

// 共通API
// GET /api/me
// JWTで認証した結果、テナントやユーザ情報を返す
func (s *Server) meHandler(c echo.Context) error {
	tenant, err := s.retrieveTenantRowFromHeader(c)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusUnauthorized, "tenant not found")
		}
		return fmt.Errorf("error retrieveTenantRowFromHeader: %w", err)
	}
	td := &TenantDetail{
		Name:        tenant.Name,
		DisplayName: tenant.DisplayName,
	}
	v, err := s.parseViewer(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusUnauthorized {
			return c.JSON(http.StatusOK, SuccessResult{
				Status: true,
				Data: MeHandlerResult{
					Tenant:   td,
					Me:       nil,
					Role:     RoleNone.String(),
					LoggedIn: false,
				},
			})
		}
		return fmt.Errorf("error parseViewer: %w", err)
	}
	if v.role == RoleAdmin || v.role == RoleOrganizer {
		return c.JSON(http.StatusOK, SuccessResult{
			Status: true,
			Data: MeHandlerResult{
				Tenant:   td,
				Me:       nil,
				Role:     v.role.String(),
				LoggedIn: true,
			},
		})
	}

	ctx := c.Request().Context()
	tenantDB, err := s.stores.Resolve(v.tenantID)
	if err != nil {
		return fmt.Errorf("error Resolve tenant store: %w", err)
	}
	defer tenantDB.Close()

	p, err := retrievePlayer(ctx, tenantDB, v.playerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusOK, SuccessResult{
				Status: true,
				Data: MeHandlerResult{
					Tenant:   td,
					Me:       nil,
					Role:     RoleNone.String(),
					LoggedIn: false,
				},
			})
		}
		return fmt.Errorf("error retrievePlayer: %w", err)
	}

	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data: MeHandlerResult{
			Tenant: td,
			Me: &PlayerDetail{
				ID:             p.ID,
				DisplayName:    p.DisplayName,
				IsDisqualified: p.IsDisqualified,
			},
			Role:     v.role.String(),
			LoggedIn: true,
		},
	})
}

type InitializeHandlerResult struct {
	Lang string `json:"lang"`
}

// ベンチマーカー向けAPI
// POST /initialize
// ベンチマーカーが起動したときに最初に呼ぶ
func (s *Server) initializeHandler(c echo.Context) error {
	out, err := exec.Command(s.cfg.InitializeScript).CombinedOutput()
	if err != nil {
		return fmt.Errorf("error exec.Command: %s %w", string(out), err)
	}
	return c.JSON(http.StatusOK, SuccessResult{
		Status: true,
		Data:   InitializeHandlerResult{Lang: "go"},
	})
}
