package core

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/drivepool/drivepool/internal/model"
)

// SortKey selects the ordering of search results.
type SortKey string

const (
	SortByName SortKey = "name"
	SortBySize SortKey = "size"
	SortByDate SortKey = "date"
	SortByType SortKey = "type"
)

// SearchFilter defines the search criteria over the file/folder index.
// The zero value matches every non-trashed item.
type SearchFilter struct {
	Query          string         `json:"query,omitempty"`
	Kind           string         `json:"kind,omitempty"` // "file", "folder", or both when empty
	Type           model.FileType `json:"type,omitempty"`
	MinSize        int64          `json:"minSize,omitempty"`
	MaxSize        int64          `json:"maxSize,omitempty"`
	CreatedAfter   time.Time      `json:"createdAfter,omitempty"`
	CreatedBefore  time.Time      `json:"createdBefore,omitempty"`
	StarredOnly    bool           `json:"starredOnly,omitempty"`
	IncludeTrashed bool           `json:"includeTrashed,omitempty"`
	SortBy         SortKey        `json:"sortBy,omitempty"`
	Descending     bool           `json:"descending,omitempty"`
	Limit          int            `json:"limit,omitempty"`
}

// cacheKey serializes the filter into the search-cache key.
func (f SearchFilter) cacheKey() string {
	b, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(b)
}

// SearchHit is a single match.
type SearchHit struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Type      model.FileType `json:"type,omitempty"`
	Size      int64          `json:"size"`
	ParentID  string         `json:"parentId"`
	AccountID string         `json:"accountId,omitempty"`
	Starred   bool           `json:"starred"`
	CreatedAt time.Time      `json:"createdAt"`
	Score     float64        `json:"score"`
}

// searchIndex scans the full index against the filter. Index-only: no
// account access, no synthetic storage access.
func searchIndex(h *HierarchyStore, f SearchFilter) []SearchHit {
	var hits []SearchHit

	if f.Kind == "" || f.Kind == "folder" {
		for _, folder := range h.Folders() {
			if folder.ID == model.RootFolderID {
				continue
			}
			if folder.Meta.Trashed && !f.IncludeTrashed {
				continue
			}
			if f.Type != "" || f.MinSize > 0 || f.MaxSize > 0 {
				continue // size/type filters are file filters
			}
			if f.StarredOnly && !folder.Meta.Starred {
				continue
			}
			if !matchesQuery(f.Query, folder.Name, nil) {
				continue
			}
			if !matchesDates(f, folder.CreatedAt) {
				continue
			}
			hits = append(hits, SearchHit{
				ID:        folder.ID,
				Name:      folder.Name,
				Kind:      "folder",
				Size:      folder.Meta.Size,
				ParentID:  folder.ParentID,
				Starred:   folder.Meta.Starred,
				CreatedAt: folder.CreatedAt,
				Score:     relevance(folder.Name, f.Query),
			})
		}
	}

	if f.Kind == "" || f.Kind == "file" {
		for _, file := range h.Files() {
			if file.Meta.Trashed && !f.IncludeTrashed {
				continue
			}
			if f.Type != "" && file.Type != f.Type {
				continue
			}
			if f.MinSize > 0 && file.Size < f.MinSize {
				continue
			}
			if f.MaxSize > 0 && file.Size > f.MaxSize {
				continue
			}
			if f.StarredOnly && !file.Meta.Starred {
				continue
			}
			if !matchesQuery(f.Query, file.Name, file.Meta.Tags) {
				continue
			}
			if !matchesDates(f, file.CreatedAt) {
				continue
			}
			hits = append(hits, SearchHit{
				ID:        file.ID,
				Name:      file.Name,
				Kind:      "file",
				Type:      file.Type,
				Size:      file.Size,
				ParentID:  file.ParentID,
				AccountID: file.AccountID,
				Starred:   file.Meta.Starred,
				CreatedAt: file.CreatedAt,
				Score:     relevance(file.Name, f.Query),
			})
		}
	}

	sortHits(hits, f.SortBy, f.Descending)

	if f.Limit > 0 && len(hits) > f.Limit {
		hits = hits[:f.Limit]
	}
	return hits
}

// matchesQuery checks the case-insensitive substring match against the
// name, falling back to an exact tag match.
func matchesQuery(query, name string, tags []string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(name), q) {
		return true
	}
	for _, tag := range tags {
		if strings.ToLower(tag) == q {
			return true
		}
	}
	return false
}

func matchesDates(f SearchFilter, created time.Time) bool {
	if !f.CreatedAfter.IsZero() && created.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && created.After(f.CreatedBefore) {
		return false
	}
	return true
}

func sortHits(hits []SearchHit, key SortKey, desc bool) {
	less := func(a, b SearchHit) bool { return a.Name < b.Name }
	switch key {
	case SortBySize:
		less = func(a, b SearchHit) bool { return a.Size < b.Size }
	case SortByDate:
		less = func(a, b SearchHit) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortByType:
		less = func(a, b SearchHit) bool {
			if a.Type != b.Type {
				return a.Type < b.Type
			}
			return a.Name < b.Name
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if desc {
			return less(hits[j], hits[i])
		}
		return less(hits[i], hits[j])
	})
}

// relevance scores how well name matches the query, for display ranking.
func relevance(name, query string) float64 {
	if query == "" {
		return 1.0
	}
	n := strings.ToLower(name)
	q := strings.ToLower(query)
	switch {
	case n == q:
		return 1.0
	case strings.HasPrefix(n, q):
		return 0.9
	case strings.Contains(n, q):
		return 0.7
	}
	return 0.5
}
