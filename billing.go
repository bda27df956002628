package rankport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	billingPlayerYen  = 100 // スコアを登録した参加者
	billingVisitorYen = 10  // ランキングを閲覧だけした(スコアを登録していない)参加者
)

type BillingReport struct {
	CompetitionID     string `json:"competition_id"`
	CompetitionTitle  string `json:"competition_title"`
	PlayerCount       int64  `json:"player_count"`        // スコアを登録した参加者数
	VisitorCount      int64  `json:"visitor_count"`       // ランキングを閲覧だけした(スコアを登録していない)参加者数
	BillingPlayerYen  int64  `json:"billing_player_yen"`  // 請求金額 スコアを登録した参加者分
	BillingVisitorYen int64  `json:"billing_visitor_yen"` // 請求金額 ランキングを閲覧だけした(スコアを登録していない)参加者分
	BillingYen        int64  `json:"billing_yen"`         // 合計請求金額
}

type TenantWithBilling struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	BillingYen  int64  `json:"billing"`
}

// classifyBilling buckets participants: a scored player is "player" even if
// they also visited; a first visit after finished_at does not count at all.
// Counts stay zero while the competition is still running because billing
// is not realized until it closes.
func classifyBilling(
	visits []VisitHistorySummaryRow,
	scoredPlayerIDs []string,
	finishedAt sql.NullInt64,
) (playerCount, visitorCount int64) {
	billingMap := map[string]string{}
	for _, vh := range visits {
		// competition.finished_atよりもあとの場合は、終了後に訪問したとみなして大会開催内アクセス済みとみなさない
		if finishedAt.Valid && finishedAt.Int64 < vh.MinCreatedAt {
			continue
		}
		billingMap[vh.PlayerID] = "visitor"
	}
	for _, pid := range scoredPlayerIDs {
		// スコアが登録されている参加者
		billingMap[pid] = "player"
	}

	// 大会が終了している場合のみ請求金額が確定するので計算する
	if !finishedAt.Valid {
		return 0, 0
	}
	for _, category := range billingMap {
		switch category {
		case "player":
			playerCount++
		case "visitor":
			visitorCount++
		}
	}
	return playerCount, visitorCount
}

// 大会ごとの課金レポートを計算する
//
// The visit read (shared store) and the score read (tenant store) are not
// one snapshot; a write landing between them may or may not show up. Once a
// competition is finished its score set is frozen, so the reports that are
// actually billed are stable.
func (s *Server) billingReportByCompetition(
	ctx context.Context,
	tenantDB dbOrTx,
	tenantID int64,
	competitionID string,
) (*BillingReport, error) {
	comp, err := retrieveCompetition(ctx, tenantDB, competitionID)
	if err != nil {
		return nil, fmt.Errorf("error retrieveCompetition: %w", err)
	}

	// ランキングにアクセスした参加者ごとに最初の訪問時刻を取得する
	vhs := []VisitHistorySummaryRow{}
	if err := s.adminDB.SelectContext(
		ctx,
		&vhs,
		"SELECT player_id, MIN(created_at) AS min_created_at FROM visit_history WHERE tenant_id = ? AND competition_id = ? GROUP BY player_id",
		tenantID,
		comp.ID,
	); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error Select visit_history: tenantID=%d, competitionID=%s, %w", tenantID, comp.ID, err)
	}

	// player_scoreを読んでいるときに更新が走ると不整合が起こるのでロックを取得する
	fl, err := s.locker.LockTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("error LockTenant: %w", err)
	}
	defer fl.Close()
	scoredPlayerIDs := []string{}
	if err := tenantDB.SelectContext(
		ctx,
		&scoredPlayerIDs,
		"SELECT DISTINCT(player_id) FROM player_score WHERE tenant_id = ? AND competition_id = ?",
		tenantID, comp.ID,
	); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error Select player_score: tenantID=%d, competitionID=%s, %w", tenantID, competitionID, err)
	}

	playerCount, visitorCount := classifyBilling(vhs, scoredPlayerIDs, comp.FinishedAt)
	return &BillingReport{
		CompetitionID:     comp.ID,
		CompetitionTitle:  comp.Title,
		PlayerCount:       playerCount,
		VisitorCount:      visitorCount,
		BillingPlayerYen:  billingPlayerYen * playerCount,
		BillingVisitorYen: billingVisitorYen * visitorCount,
		BillingYen:        billingPlayerYen*playerCount + billingVisitorYen*visitorCount,
	}, nil
}

// テナント全体の請求額を計算する
func (s *Server) billingReportByTenant(ctx context.Context, tenantDB *sqlx.DB, tenantID int64) (int64, error) {
	cs := []CompetitionRow{}
	if err := tenantDB.SelectContext(
		ctx,
		&cs,
		"SELECT * FROM competition WHERE tenant_id=?",
		tenantID,
	); err != nil {
		return 0, fmt.Errorf("error Select competition: %w", err)
	}
	var total int64
	for _, comp := range cs {
		report, err := s.billingReportByCompetition(ctx, tenantDB, tenantID, comp.ID)
		if err != nil {
			return 0, fmt.Errorf("error billingReportByCompetition: %w", err)
		}
		total += report.BillingYen
	}
	return total, nil
}
