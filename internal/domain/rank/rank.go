// Package rank derives a ranked leaderboard view from song aggregates.
//
// Ordering: total tokens DESC, then first-seen time ASC on ties, then
// aggregate ID ASC as a final deterministic tie-break. The view holds no
// state of its own and can be recomputed from aggregates at any time.
package rank

import (
	"sort"

	"github.com/encorefm/encore/internal/domain/model"
)

// Build sorts aggregates into leaderboard order and assigns ranks.
// Aggregates with equal token totals share a rank; ranks are dense
// (1, 1, 2 rather than 1, 1, 3). A limit <= 0 returns the full set.
func Build(aggs []model.SongAggregate, limit int) []model.Entry {
	entries := make([]model.Entry, 0, len(aggs))
	for _, agg := range aggs {
		entries = append(entries, model.Entry{
			SongID:      agg.ID,
			Title:       agg.Title,
			Artist:      agg.Artist,
			TotalTokens: agg.TotalTokens,
			BidderCount: agg.BidderCount,
			FirstSeenAt: agg.FirstSeenAt,
		})
	}
	sortEntries(entries)
	assignRanks(entries)

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

func sortEntries(entries []model.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalTokens != entries[j].TotalTokens {
			return entries[i].TotalTokens > entries[j].TotalTokens
		}
		if !entries[i].FirstSeenAt.Equal(entries[j].FirstSeenAt) {
			return entries[i].FirstSeenAt.Before(entries[j].FirstSeenAt)
		}
		return entries[i].SongID < entries[j].SongID
	})
}

// assignRanks walks the sorted slice and gives equal totals the same rank.
func assignRanks(entries []model.Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].TotalTokens != entries[i-1].TotalTokens {
			rank++
		}
		entries[i].Rank = rank
	}
}
