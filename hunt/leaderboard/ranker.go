// hunt/leaderboard/ranker.go
package leaderboard

import (
	"sort"
	"time"

	"github.com/cryptichunt/go-services/shared/models"
)

// Entry is one ranked line of a leaderboard snapshot.
type Entry struct {
	TeamID       string     `json:"teamId"`
	TeamName     string     `json:"teamName"`
	TotalScore   int        `json:"totalScore"`
	CurrentLevel int        `json:"currentLevel"`
	LastAnswerAt *time.Time `json:"lastAnswerAt"`
	Rank         int        `json:"rank"`
}

// Rank computes the total ordering over the given progress rows.
//
// Primary key: total score, descending. Tie-break: last correct answer,
// ascending. Among equal scores the team that got there first ranks higher,
// and teams that never answered sort after any real timestamp. Remaining ties
// keep the retrieval order (rows arrive sorted by team id), so ranks are
// deterministic and always distinct sequential 1-based positions.
func Rank(rows []models.LeaderboardRow) []Entry {
	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = Entry{
			TeamID:       row.TeamID,
			TeamName:     row.TeamName,
			TotalScore:   row.TotalScore,
			CurrentLevel: row.CurrentLevel,
			LastAnswerAt: row.LastAnswerAt,
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		switch {
		case a.LastAnswerAt == nil:
			return false
		case b.LastAnswerAt == nil:
			return true
		default:
			return a.LastAnswerAt.Before(*b.LastAnswerAt)
		}
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
