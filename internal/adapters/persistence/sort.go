package persistence

import (
	"sort"
	"strings"

	"github.com/okian/crosscam/internal/domain/model"
)

// SortNewestFirst orders records by LastSeenTime DESC, then TrackingID ASC.
func SortNewestFirst(recs []model.TrackingRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LastSeenTime.Equal(recs[j].LastSeenTime) {
			return recs[i].LastSeenTime.After(recs[j].LastSeenTime)
		}
		return recs[i].TrackingID < recs[j].TrackingID
	})
}

// Matches reports whether rec satisfies q using case-insensitive substring
// matching. The relational backend implements the same rule in SQL.
func Matches(rec model.TrackingRecord, q model.SearchQuery) bool {
	f := rec.LatestFeatures
	if badge := strings.ToLower(strings.TrimSpace(q.Badge)); badge != "" {
		return f.BadgeNumber != "" && strings.Contains(strings.ToLower(f.BadgeNumber), badge)
	}
	if color := strings.ToLower(strings.TrimSpace(q.ClothingColor)); color != "" {
		return strings.Contains(strings.ToLower(f.ClothingUpper), color) ||
			strings.Contains(strings.ToLower(f.ClothingLower), color)
	}
	return false
}
