package rankport

import (
	"fmt"
	"testing"
)

// 入力はrow_num降順で渡す前提なので、テストでもその順序で組み立てる
func scoreLog(rows ...PlayerScoreRow) []PlayerScoreRow {
	out := make([]PlayerScoreRow, len(rows))
	copy(out, rows)
	return out
}

func TestBuildCompetitionRanksTieBreak(t *testing.T) {
	// p3が最高スコア、p1とp2は同点でp1の方がCSVで先に登場している
	pss := scoreLog(
		PlayerScoreRow{PlayerID: "p2", Score: 100, RowNum: 2},
		PlayerScoreRow{PlayerID: "p1", Score: 100, RowNum: 1},
		PlayerScoreRow{PlayerID: "p3", Score: 200, RowNum: 0},
	)
	names := map[string]string{"p1": "一郎", "p2": "二郎", "p3": "三郎"}

	ranks := buildCompetitionRanks(pss, names)

	want := []struct {
		rank     int64
		playerID string
	}{
		{1, "p3"},
		{2, "p1"},
		{3, "p2"},
	}
	if len(ranks) != len(want) {
		t.Fatalf("len(ranks) = %d, want %d", len(ranks), len(want))
	}
	for i, w := range want {
		if ranks[i].Rank != w.rank || ranks[i].PlayerID != w.playerID {
			t.Errorf("ranks[%d] = {rank:%d player:%s}, want {rank:%d player:%s}",
				i, ranks[i].Rank, ranks[i].PlayerID, w.rank, w.playerID)
		}
	}
	if ranks[0].PlayerDisplayName != "三郎" {
		t.Errorf("display name = %q, want %q", ranks[0].PlayerDisplayName, "三郎")
	}
}

func TestBuildCompetitionRanksLatestScoreWins(t *testing.T) {
	// 同じ参加者が複数回登場した場合、row_numが最大の行だけが有効
	pss := scoreLog(
		PlayerScoreRow{PlayerID: "p1", Score: 10, RowNum: 5},
		PlayerScoreRow{PlayerID: "p2", Score: 50, RowNum: 3},
		PlayerScoreRow{PlayerID: "p1", Score: 99, RowNum: 0},
	)

	ranks := buildCompetitionRanks(pss, nil)
	if len(ranks) != 2 {
		t.Fatalf("len(ranks) = %d, want 2", len(ranks))
	}
	if ranks[0].PlayerID != "p2" || ranks[0].Score != 50 {
		t.Errorf("ranks[0] = {player:%s score:%d}, want {player:p2 score:50}", ranks[0].PlayerID, ranks[0].Score)
	}
	if ranks[1].PlayerID != "p1" || ranks[1].Score != 10 {
		t.Errorf("ranks[1] = {player:%s score:%d}, want {player:p1 score:10}", ranks[1].PlayerID, ranks[1].Score)
	}
}

func TestBuildCompetitionRanksEmpty(t *testing.T) {
	if got := buildCompetitionRanks(nil, nil); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestPageRanks(t *testing.T) {
	ranks := make([]CompetitionRank, 150)
	for i := range ranks {
		ranks[i] = CompetitionRank{
			Rank:     int64(i + 1),
			PlayerID: fmt.Sprintf("p%03d", i),
		}
	}

	tests := []struct {
		name      string
		rankAfter int64
		wantLen   int
		wantFirst int64
	}{
		{"first page", 0, rankingPageSize, 1},
		{"offset", 120, 30, 121},
		{"negative behaves like zero", -5, rankingPageSize, 1},
		{"past the end", 999, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pageRanks(ranks, tt.rankAfter)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0].Rank != tt.wantFirst {
				t.Errorf("first rank = %d, want %d", got[0].Rank, tt.wantFirst)
			}
		})
	}
}
