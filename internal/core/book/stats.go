package book

import (
	"sort"
	"strconv"
)

// DocumentStats はドキュメント単位のチャンク統計
type DocumentStats struct {
	Document  string
	Chunks    int
	FirstPage int
	LastPage  int
	HasPages  bool
}

// PageRange は表示用のページ範囲を返す（例: "1-240"）
func (s DocumentStats) PageRange() string {
	if !s.HasPages {
		return "-"
	}
	if s.FirstPage == s.LastPage {
		return strconv.Itoa(s.FirstPage)
	}
	return strconv.Itoa(s.FirstPage) + "-" + strconv.Itoa(s.LastPage)
}

// Summarize はチャンク列をドキュメントごとに集計し、名前順に返す
func Summarize(chunks []Chunk) []DocumentStats {
	byDoc := make(map[string]*DocumentStats)
	for _, c := range chunks {
		doc := c.Locator.Document
		if doc == "" {
			doc = DefaultDocument
		}
		s, ok := byDoc[doc]
		if !ok {
			s = &DocumentStats{Document: doc}
			byDoc[doc] = s
		}
		s.Chunks++
		if page, ok := c.Locator.Page.Get(); ok {
			if !s.HasPages || page < s.FirstPage {
				s.FirstPage = page
			}
			if !s.HasPages || page > s.LastPage {
				s.LastPage = page
			}
			s.HasPages = true
		}
	}

	stats := make([]DocumentStats, 0, len(byDoc))
	for _, s := range byDoc {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Document < stats[j].Document
	})
	return stats
}
