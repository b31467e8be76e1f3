package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"telegram-quiz-bot/internal/domain"
)

var medals = []string{"🥇", "🥈", "🥉"}

// sortEntries ranks by score descending. Ties break by who reached their
// score earlier, then by display name, so equal scores still produce a
// deterministic order.
func sortEntries(entries []domain.LeaderboardEntry, participants map[int64]*participant) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := participants[entries[i].UserID]
		pj := participants[entries[j].UserID]
		if pi != nil && pj != nil && !pi.lastScored.Equal(pj.lastScored) {
			return pi.lastScored.Before(pj.lastScored)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
}

// renderResults formats the final ranking. Top three get medals, everyone
// else a uniform marker. Name lookups fall back to the recorded display
// name, then to the raw user ID; a failed lookup never aborts the ranking.
func (sc *Scheduler) renderResults(ctx context.Context, lb domain.Leaderboard) string {
	if len(lb.Entries) == 0 {
		return "🏁 *The quiz is over!*\n\nNo one scored this time."
	}

	var b strings.Builder
	b.WriteString("🏁 *The quiz is over!*\n\n🏆 *Leaderboard:*\n")
	for i, entry := range lb.Entries {
		name, err := sc.messenger.ResolveDisplayName(ctx, entry.UserID)
		if err != nil || name == "" {
			if err != nil {
				sc.log.Warn("resolve display name failed", zap.Int64("user", entry.UserID), zap.Error(err))
			}
			name = entry.DisplayName
		}
		if name == "" {
			name = strconv.FormatInt(entry.UserID, 10)
		}
		marker := "🎯"
		if i < len(medals) {
			marker = medals[i]
		}
		label := "points"
		if entry.Score == 1 {
			label = "point"
		}
		fmt.Fprintf(&b, "%s %d. %s: %d %s\n", marker, i+1, name, entry.Score, label)
	}
	return b.String()
}
