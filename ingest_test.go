package rankport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

func TestParseScoreCSV(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		rows, err := parseScoreCSV(strings.NewReader("player_id,score\np1,100\np2,200\np1,300\n"))
		if err != nil {
			t.Fatalf("parseScoreCSV: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("len(rows) = %d, want 3", len(rows))
		}
		if rows[2].playerID != "p1" || rows[2].score != 300 {
			t.Errorf("rows[2] = %+v, want p1/300", rows[2])
		}
	})

	t.Run("header only", func(t *testing.T) {
		rows, err := parseScoreCSV(strings.NewReader("player_id,score\n"))
		if err != nil {
			t.Fatalf("parseScoreCSV: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("len(rows) = %d, want 0", len(rows))
		}
	})

	for _, tt := range []struct {
		name string
		src  string
	}{
		{"wrong header", "score,player_id\np1,100\n"},
		{"missing header", "p1,100\n"},
		{"non-numeric score", "player_id,score\np1,abc\n"},
		{"too many columns", "player_id,score\np1,100,extra\n"},
		{"empty input", ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScoreCSV(strings.NewReader(tt.src))
			var he *echo.HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("err = %v, want *echo.HTTPError", err)
			}
			if he.Code != http.StatusBadRequest {
				t.Errorf("code = %d, want %d", he.Code, http.StatusBadRequest)
			}
		})
	}
}

// newTestServer provisions a fresh tenant store and wires a Server around
// it with in-process fakes for the shared-store pieces.
func newTestServer(t *testing.T, tenantID int64) (*Server, *sqlx.DB) {
	t.Helper()

	stores := NewTenantStoreManager(t.TempDir(), "sqlite3")
	if err := stores.Provision(tenantID); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	tenantDB, err := stores.Resolve(tenantID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	t.Cleanup(func() { tenantDB.Close() })

	s := &Server{
		cfg:    &Config{ServiceName: "rankport-test"},
		stores: stores,
		locker: NewKeyedTenantLocker(),
		ids:    &IDGenerator{source: &fakeIDSource{}},
		log:    zap.NewNop(),
	}
	return s, tenantDB
}

func insertTestPlayer(t *testing.T, tenantDB *sqlx.DB, tenantID int64, id string) {
	t.Helper()
	now := time.Now().Unix()
	if _, err := tenantDB.Exec(
		"INSERT INTO player (id, tenant_id, display_name, is_disqualified, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, tenantID, "player "+id, false, now, now,
	); err != nil {
		t.Fatalf("insert player: %v", err)
	}
}

func insertTestCompetition(t *testing.T, tenantDB *sqlx.DB, tenantID int64, id string) *CompetitionRow {
	t.Helper()
	now := time.Now().Unix()
	if _, err := tenantDB.Exec(
		"INSERT INTO competition (id, tenant_id, title, finished_at, created_at, updated_at) VALUES (?, ?, ?, NULL, ?, ?)",
		id, tenantID, "competition "+id, now, now,
	); err != nil {
		t.Fatalf("insert competition: %v", err)
	}
	comp, err := retrieveCompetition(context.Background(), tenantDB, id)
	if err != nil {
		t.Fatalf("retrieveCompetition: %v", err)
	}
	return comp
}

func TestIngestScoresFullReplace(t *testing.T) {
	const tenantID = 1
	s, tenantDB := newTestServer(t, tenantID)
	ctx := context.Background()
	v := &Viewer{role: RoleOrganizer, tenantID: tenantID}

	p1 := ulid.Make().String()
	p2 := ulid.Make().String()
	insertTestPlayer(t, tenantDB, tenantID, p1)
	insertTestPlayer(t, tenantDB, tenantID, p2)
	comp := insertTestCompetition(t, tenantDB, tenantID, "c1")

	n, err := s.ingestScores(ctx, tenantDB, v, comp, []scoreUploadRow{
		{playerID: p1, score: 100},
		{playerID: p2, score: 200},
		{playerID: p1, score: 300},
	})
	if err != nil {
		t.Fatalf("ingestScores: %v", err)
	}
	if n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}

	// 2回目のアップロードは前回の行を完全に置き換える
	n, err = s.ingestScores(ctx, tenantDB, v, comp, []scoreUploadRow{
		{playerID: p2, score: 999},
	})
	if err != nil {
		t.Fatalf("second ingestScores: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}

	var pss []PlayerScoreRow
	if err := tenantDB.SelectContext(
		ctx, &pss,
		"SELECT * FROM player_score WHERE tenant_id = ? AND competition_id = ? ORDER BY row_num",
		tenantID, comp.ID,
	); err != nil {
		t.Fatalf("select player_score: %v", err)
	}
	if len(pss) != 1 {
		t.Fatalf("len(player_score) = %d, want 1 after replace", len(pss))
	}
	if pss[0].PlayerID != p2 || pss[0].Score != 999 || pss[0].RowNum != 0 {
		t.Errorf("row = %+v, want player=%s score=999 row_num=0", pss[0], p2)
	}
}

func TestIngestScoresRowNumsAreZeroBased(t *testing.T) {
	const tenantID = 2
	s, tenantDB := newTestServer(t, tenantID)
	ctx := context.Background()
	v := &Viewer{role: RoleOrganizer, tenantID: tenantID}

	p1 := ulid.Make().String()
	insertTestPlayer(t, tenantDB, tenantID, p1)
	comp := insertTestCompetition(t, tenantDB, tenantID, "c1")

	if _, err := s.ingestScores(ctx, tenantDB, v, comp, []scoreUploadRow{
		{playerID: p1, score: 10},
		{playerID: p1, score: 20},
		{playerID: p1, score: 30},
	}); err != nil {
		t.Fatalf("ingestScores: %v", err)
	}

	var rowNums []int64
	if err := tenantDB.SelectContext(
		ctx, &rowNums,
		"SELECT row_num FROM player_score WHERE tenant_id = ? AND competition_id = ? ORDER BY row_num",
		tenantID, comp.ID,
	); err != nil {
		t.Fatalf("select row_num: %v", err)
	}
	for i, rn := range rowNums {
		if rn != int64(i) {
			t.Errorf("rowNums[%d] = %d, want %d", i, rn, i)
		}
	}
}

func TestIngestScoresFinishedCompetition(t *testing.T) {
	const tenantID = 3
	s, tenantDB := newTestServer(t, tenantID)
	ctx := context.Background()
	v := &Viewer{role: RoleOrganizer, tenantID: tenantID}

	p1 := ulid.Make().String()
	insertTestPlayer(t, tenantDB, tenantID, p1)
	comp := insertTestCompetition(t, tenantDB, tenantID, "c1")
	if _, err := tenantDB.Exec("UPDATE competition SET finished_at = ? WHERE id = ?", time.Now().Unix(), comp.ID); err != nil {
		t.Fatalf("finish competition: %v", err)
	}
	comp, err := retrieveCompetition(ctx, tenantDB, comp.ID)
	if err != nil {
		t.Fatalf("retrieveCompetition: %v", err)
	}

	if _, err := s.ingestScores(ctx, tenantDB, v, comp, []scoreUploadRow{
		{playerID: p1, score: 10},
	}); !errors.Is(err, ErrCompetitionFinished) {
		t.Errorf("err = %v, want ErrCompetitionFinished", err)
	}
}

func TestIngestScoresUnknownPlayer(t *testing.T) {
	const tenantID = 4
	s, tenantDB := newTestServer(t, tenantID)
	ctx := context.Background()
	v := &Viewer{role: RoleOrganizer, tenantID: tenantID}

	comp := insertTestCompetition(t, tenantDB, tenantID, "c1")

	_, err := s.ingestScores(ctx, tenantDB, v, comp, []scoreUploadRow{
		{playerID: "no-such-player", score: 10},
	})
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *echo.HTTPError", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want %d", he.Code, http.StatusBadRequest)
	}

	// 失敗したアップロードは何も書き込まない
	var count int
	if err := tenantDB.GetContext(ctx, &count, "SELECT COUNT(*) FROM player_score"); err != nil {
		t.Fatalf("count player_score: %v", err)
	}
	if count != 0 {
		t.Errorf("player_score count = %d, want 0", count)
	}
}
