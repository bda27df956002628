package rankport

import (
	"sort"
)

// rankingPageSize caps one ranking page.
const rankingPageSize = 100

type CompetitionRank struct {
	Rank              int64  `json:"rank"`
	Score             int64  `json:"score"`
	PlayerID          string `json:"player_id"`
	PlayerDisplayName string `json:"player_display_name"`
	RowNum            int64  `json:"-"` // APIレスポンスのJSONには含まれない
}

// buildCompetitionRanks reconstructs the current ranking from the
// append-only score log. Input must be ordered by row_num descending: the
// first row seen per player carries the largest row_num and is the
// authoritative score, every later one is history.
func buildCompetitionRanks(pss []PlayerScoreRow, displayNames map[string]string) []CompetitionRank {
	ranks := make([]CompetitionRank, 0, len(pss))
	scoredPlayerSet := make(map[string]struct{}, len(pss))
	for _, ps := range pss {
		if _, ok := scoredPlayerSet[ps.PlayerID]; ok {
			continue
		}
		scoredPlayerSet[ps.PlayerID] = struct{}{}
		ranks = append(ranks, CompetitionRank{
			Score:             ps.Score,
			PlayerID:          ps.PlayerID,
			PlayerDisplayName: displayNames[ps.PlayerID],
			RowNum:            ps.RowNum,
		})
	}
	// スコア降順、同点の場合はCSVで先に登場した方が上位
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Score == ranks[j].Score {
			return ranks[i].RowNum < ranks[j].RowNum
		}
		return ranks[i].Score > ranks[j].Score
	})
	for i := range ranks {
		ranks[i].Rank = int64(i + 1)
	}
	return ranks
}

// pageRanks returns positions >= rankAfter (0-based), at most
// rankingPageSize entries. rankAfter arrives from the caller unvalidated:
// negative values behave like 0 and positions past the end yield an empty
// page.
func pageRanks(ranks []CompetitionRank, rankAfter int64) []CompetitionRank {
	paged := make([]CompetitionRank, 0, rankingPageSize)
	for i, rank := range ranks {
		if int64(i) < rankAfter {
			continue
		}
		paged = append(paged, rank)
		if len(paged) >= rankingPageSize {
			break
		}
	}
	return paged
}
