package core

import (
	"testing"
	"time"

	"github.com/drivepool/drivepool/internal/model"
)

func searchFixture(t *testing.T) *HierarchyStore {
	t.Helper()
	h := NewHierarchyStore()
	docs, err := h.CreateFolder("Documents", model.RootFolderID, FolderOptions{})
	if err != nil {
		t.Fatalf("fixture folder: %v", err)
	}

	report := testFile("report.pdf", 500, docs.ID)
	report.Meta.Tags = []string{"document", "text"}
	photo := testFile("holiday.png", 2000, model.RootFolderID)
	photo.Meta.Tags = []string{"image", "media"}
	photo.Meta.Starred = true
	song := testFile("song.mp3", 1500, model.RootFolderID)
	song.Meta.Tags = []string{"audio", "media"}

	for _, f := range []*model.File{report, photo, song} {
		if err := h.AddFile(f); err != nil {
			t.Fatalf("fixture file: %v", err)
		}
	}

	trashed := testFile("old.txt", 10, model.RootFolderID)
	h.AddFile(trashed)
	h.DeleteItems([]string{trashed.ID}, false, nil)
	return h
}

func TestSearch_QueryMatchesNameAndTags(t *testing.T) {
	h := searchFixture(t)

	hits := searchIndex(h, SearchFilter{Query: "REPORT"})
	if len(hits) != 1 || hits[0].Name != "report.pdf" {
		t.Fatalf("case-insensitive name match failed: %+v", hits)
	}

	// Tags match exactly, not by substring.
	hits = searchIndex(h, SearchFilter{Query: "media"})
	if len(hits) != 2 {
		t.Errorf("tag match should find 2 files, got %d", len(hits))
	}
	hits = searchIndex(h, SearchFilter{Query: "medi"})
	if len(hits) != 0 {
		t.Errorf("partial tag should not match, got %d", len(hits))
	}
}

func TestSearch_Filters(t *testing.T) {
	h := searchFixture(t)

	hits := searchIndex(h, SearchFilter{Type: model.FileTypeImage})
	if len(hits) != 1 || hits[0].Name != "holiday.png" {
		t.Errorf("type filter failed: %+v", hits)
	}

	hits = searchIndex(h, SearchFilter{MinSize: 1000, MaxSize: 1800})
	if len(hits) != 1 || hits[0].Name != "song.mp3" {
		t.Errorf("size range failed: %+v", hits)
	}

	hits = searchIndex(h, SearchFilter{StarredOnly: true})
	if len(hits) != 1 || hits[0].Name != "holiday.png" {
		t.Errorf("starred filter failed: %+v", hits)
	}

	// Trashed items are hidden by default, surfaced on request.
	hits = searchIndex(h, SearchFilter{Query: "old"})
	if len(hits) != 0 {
		t.Errorf("trashed file should be hidden, got %+v", hits)
	}
	hits = searchIndex(h, SearchFilter{Query: "old", IncludeTrashed: true})
	if len(hits) != 1 {
		t.Errorf("includeTrashed should surface the file, got %+v", hits)
	}

	// Kind filter: folders only.
	hits = searchIndex(h, SearchFilter{Kind: "folder"})
	if len(hits) != 1 || hits[0].Name != "Documents" {
		t.Errorf("folder kind filter failed: %+v", hits)
	}
}

func TestSearch_DateRange(t *testing.T) {
	h := NewHierarchyStore()
	old := testFile("old.txt", 10, model.RootFolderID)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	recent := testFile("recent.txt", 10, model.RootFolderID)
	h.AddFile(old)
	h.AddFile(recent)

	cutoff := time.Now().Add(-24 * time.Hour)
	hits := searchIndex(h, SearchFilter{CreatedAfter: cutoff})
	if len(hits) != 1 || hits[0].Name != "recent.txt" {
		t.Errorf("createdAfter failed: %+v", hits)
	}
	hits = searchIndex(h, SearchFilter{CreatedBefore: cutoff})
	if len(hits) != 1 || hits[0].Name != "old.txt" {
		t.Errorf("createdBefore failed: %+v", hits)
	}
}

func TestSearch_SortAndLimit(t *testing.T) {
	h := searchFixture(t)

	hits := searchIndex(h, SearchFilter{Kind: "file", SortBy: SortBySize, Descending: true})
	if len(hits) != 3 {
		t.Fatalf("expected 3 files, got %d", len(hits))
	}
	if hits[0].Name != "holiday.png" || hits[2].Name != "report.pdf" {
		t.Errorf("descending size sort failed: %s ... %s", hits[0].Name, hits[2].Name)
	}

	hits = searchIndex(h, SearchFilter{Kind: "file", SortBy: SortByName})
	if hits[0].Name != "holiday.png" || hits[1].Name != "report.pdf" || hits[2].Name != "song.mp3" {
		t.Errorf("name sort failed: %+v", hits)
	}

	hits = searchIndex(h, SearchFilter{Kind: "file", SortBy: SortBySize, Descending: true, Limit: 1})
	if len(hits) != 1 || hits[0].Name != "holiday.png" {
		t.Errorf("limit failed: %+v", hits)
	}
}

func TestSearch_Relevance(t *testing.T) {
	cases := []struct {
		name, query string
		want        float64
	}{
		{"report.pdf", "report.pdf", 1.0},
		{"report.pdf", "report", 0.9},
		{"myreport.pdf", "report", 0.7},
		{"notes.txt", "report", 0.5},
		{"anything", "", 1.0},
	}
	for _, tc := range cases {
		if got := relevance(tc.name, tc.query); got != tc.want {
			t.Errorf("relevance(%q, %q) = %v, want %v", tc.name, tc.query, got, tc.want)
		}
	}
}
