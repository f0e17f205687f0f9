package scraper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ibeckermayer/tenshi/internal/types"
)

// ParseRange parses "start-end" (e.g. "1-5" or "10.5-12") into bounds.
// A single number selects just that chapter.
func ParseRange(s string) (float64, float64, error) {
	s = strings.TrimSpace(s)
	startStr, endStr, found := strings.Cut(s, "-")
	if !found {
		endStr = startStr
	}

	start, err := strconv.ParseFloat(strings.TrimSpace(startStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start chapter %q: %w", startStr, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(endStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end chapter %q: %w", endStr, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("invalid chapter range %q: end before start", s)
	}
	return start, end, nil
}

// SelectChapters keeps chapters numbered within [start, end], sorted by number.
// Duplicate URLs are dropped.
func SelectChapters(chapters []types.Chapter, start, end float64) []types.Chapter {
	seen := map[string]bool{}
	var selected []types.Chapter
	for _, ch := range chapters {
		if ch.Number < start || ch.Number > end || seen[ch.URL] {
			continue
		}
		seen[ch.URL] = true
		selected = append(selected, ch)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Number < selected[j].Number
	})
	return selected
}
