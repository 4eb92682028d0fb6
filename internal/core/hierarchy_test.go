package core

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/drivepool/drivepool/internal/model"
)

func testFile(name string, size int64, parentID string) *model.File {
	now := time.Now()
	return &model.File{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       deriveType(name),
		Size:       size,
		ParentID:   parentID,
		AccountID:  "acc-1",
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// checkAggregates verifies the Items/Size invariant for every folder.
func checkAggregates(t *testing.T, h *HierarchyStore) {
	t.Helper()
	for _, folder := range h.Folders() {
		items := 0
		var size int64
		folders, files, err := h.ListChildren(folder.ID, false, false)
		if err != nil {
			t.Fatalf("listChildren(%s) failed: %v", folder.ID, err)
		}
		items = len(folders) + len(files)
		for _, f := range files {
			size += f.Size
		}
		if folder.Meta.Items != items {
			t.Errorf("folder %s items = %d, direct children = %d", folder.Name, folder.Meta.Items, items)
		}
		if folder.Meta.Size != size {
			t.Errorf("folder %s size = %d, children sum = %d", folder.Name, folder.Meta.Size, size)
		}
	}
}

func TestHierarchy_CreateFolder(t *testing.T) {
	h := NewHierarchyStore()

	if _, err := h.CreateFolder("  ", model.RootFolderID, FolderOptions{}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("whitespace name should be invalid, got %v", err)
	}
	if _, err := h.CreateFolder("x", "missing", FolderOptions{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown parent should be NotFound, got %v", err)
	}

	folder, err := h.CreateFolder("docs", model.RootFolderID, FolderOptions{Color: "blue"})
	if err != nil {
		t.Fatalf("failed to create folder: %v", err)
	}
	if folder.Meta.Color != "blue" {
		t.Errorf("expected color blue, got %q", folder.Meta.Color)
	}
	if root := h.GetFolder(model.RootFolderID); root.Meta.Items != 1 {
		t.Errorf("root should count 1 item, got %d", root.Meta.Items)
	}
	checkAggregates(t, h)
}

func TestHierarchy_AggregatesPushUpward(t *testing.T) {
	h := NewHierarchyStore()
	docs, _ := h.CreateFolder("docs", model.RootFolderID, FolderOptions{})
	work, _ := h.CreateFolder("work", docs.ID, FolderOptions{})

	if err := h.AddFile(testFile("a.pdf", 100, work.ID)); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}
	if err := h.AddFile(testFile("b.pdf", 50, docs.ID)); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}

	if work.Meta.Items != 1 || work.Meta.Size != 100 {
		t.Errorf("work aggregates = %d/%d, want 1/100", work.Meta.Items, work.Meta.Size)
	}
	// Direct children only: docs holds work and b.pdf, size counts b.pdf alone.
	if docs.Meta.Items != 2 || docs.Meta.Size != 50 {
		t.Errorf("docs aggregates = %d/%d, want 2/50", docs.Meta.Items, docs.Meta.Size)
	}
	checkAggregates(t, h)
}

func TestHierarchy_MoveRejectsCycles(t *testing.T) {
	// Scenario: X under root, Y under X; moving X into Y must fail and
	// leave the tree unchanged.
	h := NewHierarchyStore()
	x, _ := h.CreateFolder("X", model.RootFolderID, FolderOptions{})
	y, _ := h.CreateFolder("Y", x.ID, FolderOptions{})

	moved, errs, err := h.MoveItems([]string{x.ID}, y.ID)
	if err != nil {
		t.Fatalf("moveItems failed outright: %v", err)
	}
	if moved != 0 || len(errs) != 1 {
		t.Fatalf("expected 0 moved and 1 error, got %d/%d", moved, len(errs))
	}
	if h.GetFolder(x.ID).ParentID != model.RootFolderID {
		t.Error("X should still be under root")
	}

	// Folder into itself.
	_, errs, _ = h.MoveItems([]string{x.ID}, x.ID)
	if len(errs) != 1 {
		t.Error("moving a folder into itself should fail")
	}

	// The root is unmovable.
	_, errs, _ = h.MoveItems([]string{model.RootFolderID}, x.ID)
	if len(errs) != 1 {
		t.Error("moving the root should fail")
	}
	checkAggregates(t, h)
}

func TestHierarchy_MoveBatchPartialFailure(t *testing.T) {
	h := NewHierarchyStore()
	x, _ := h.CreateFolder("X", model.RootFolderID, FolderOptions{})
	y, _ := h.CreateFolder("Y", model.RootFolderID, FolderOptions{})
	file := testFile("a.txt", 10, x.ID)
	h.AddFile(file)

	// One valid move, one unknown id: the batch continues.
	moved, errs, err := h.MoveItems([]string{file.ID, "missing"}, y.ID)
	if err != nil {
		t.Fatalf("moveItems failed: %v", err)
	}
	if moved != 1 || len(errs) != 1 {
		t.Errorf("expected 1 moved and 1 error, got %d/%d", moved, len(errs))
	}
	if file.ParentID != y.ID {
		t.Error("file should have been reparented")
	}
	if x.Meta.Items != 0 || y.Meta.Items != 1 {
		t.Errorf("aggregates not refreshed: x=%d y=%d", x.Meta.Items, y.Meta.Items)
	}

	if _, _, err := h.MoveItems([]string{file.ID}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown target should be NotFound, got %v", err)
	}
	checkAggregates(t, h)
}

func TestHierarchy_SoftDeleteKeepsRecord(t *testing.T) {
	h := NewHierarchyStore()
	file := testFile("a.txt", 10, model.RootFolderID)
	h.AddFile(file)

	released := 0
	deleted, errs := h.DeleteItems([]string{file.ID}, false, func(*model.File) { released++ })
	if deleted != 1 || len(errs) != 0 {
		t.Fatalf("expected clean soft delete, got %d/%v", deleted, errs)
	}
	if released != 0 {
		t.Error("soft delete must not release account space")
	}
	if !file.Meta.Trashed || file.Meta.TrashedAt == nil {
		t.Error("soft delete should set the trashed flag and timestamp")
	}
	if h.GetFile(file.ID) == nil {
		t.Error("soft-deleted record should remain in the index")
	}

	// Trashed items leave the default listing and the aggregates.
	if root := h.GetFolder(model.RootFolderID); root.Meta.Items != 0 || root.Meta.Size != 0 {
		t.Errorf("trashed file should not count in aggregates, got %d/%d",
			root.Meta.Items, root.Meta.Size)
	}
	_, files, _ := h.ListChildren(model.RootFolderID, false, true)
	if len(files) != 1 {
		t.Error("includeTrashed listing should still show the file")
	}

	restored, _ := h.RestoreItems([]string{file.ID})
	if restored != 1 || file.Meta.Trashed {
		t.Error("restore should clear the trashed flag")
	}
	if root := h.GetFolder(model.RootFolderID); root.Meta.Items != 1 {
		t.Error("restored file should count in aggregates again")
	}
}

func TestHierarchy_PermanentDeleteReleasesOnce(t *testing.T) {
	// Scenario: soft-delete a file, then permanently delete its parent
	// folder; the file's space must be released exactly once.
	h := NewHierarchyStore()
	folder, _ := h.CreateFolder("docs", model.RootFolderID, FolderOptions{})
	sub, _ := h.CreateFolder("sub", folder.ID, FolderOptions{})
	f1 := testFile("a.txt", 10, folder.ID)
	f2 := testFile("b.txt", 20, sub.ID)
	h.AddFile(f1)
	h.AddFile(f2)

	h.DeleteItems([]string{f1.ID}, false, nil) // trash first

	releases := map[string]int{}
	deleted, errs := h.DeleteItems([]string{folder.ID}, true, func(f *model.File) {
		releases[f.ID]++
	})
	if deleted != 1 || len(errs) != 0 {
		t.Fatalf("expected clean permanent delete, got %d/%v", deleted, errs)
	}
	if releases[f1.ID] != 1 || releases[f2.ID] != 1 {
		t.Errorf("each file must be released exactly once, got %v", releases)
	}
	if h.GetFolder(folder.ID) != nil || h.GetFolder(sub.ID) != nil {
		t.Error("folder tree should be gone")
	}
	if h.GetFile(f1.ID) != nil || h.GetFile(f2.ID) != nil {
		t.Error("files should be gone")
	}
	if root := h.GetFolder(model.RootFolderID); root.Meta.Items != 0 {
		t.Errorf("root should be empty, items = %d", root.Meta.Items)
	}

	// The root itself is undeletable.
	_, errs = h.DeleteItems([]string{model.RootFolderID}, true, nil)
	if len(errs) != 1 {
		t.Error("deleting the root should fail")
	}
}

func TestHierarchy_ToggleStar(t *testing.T) {
	h := NewHierarchyStore()
	file := testFile("a.txt", 10, model.RootFolderID)
	h.AddFile(file)

	starred, err := h.ToggleStar(file.ID)
	if err != nil || !starred {
		t.Fatalf("first toggle should star, got %v/%v", starred, err)
	}
	starred, _ = h.ToggleStar(file.ID)
	if starred {
		t.Error("second toggle should unstar")
	}
	if _, err := h.ToggleStar("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id should be NotFound, got %v", err)
	}
}

func TestHierarchy_RestoreRebuildsIndex(t *testing.T) {
	h := NewHierarchyStore()
	docs, _ := h.CreateFolder("docs", model.RootFolderID, FolderOptions{})
	file := testFile("a.txt", 42, docs.ID)
	h.AddFile(file)

	folders := make(map[string]*model.Folder)
	for _, f := range h.Folders() {
		cp := *f
		cp.Meta.Items = 99 // stale on purpose; Restore must recompute
		cp.Meta.Size = 99
		folders[f.ID] = &cp
	}
	files := make(map[string]*model.File)
	for _, f := range h.Files() {
		cp := *f
		files[f.ID] = &cp
	}
	// An orphan pointing at a folder that never existed must be dropped.
	orphan := testFile("ghost.txt", 5, "no-such-folder")
	files[orphan.ID] = orphan

	fresh := NewHierarchyStore()
	fresh.Restore(folders, files)

	if fresh.GetFile(orphan.ID) != nil {
		t.Error("orphaned file should be dropped on restore")
	}
	if got := fresh.GetFolder(docs.ID); got == nil || got.Meta.Items != 1 || got.Meta.Size != 42 {
		t.Errorf("aggregates should be recomputed on restore, got %+v", got)
	}
	checkAggregates(t, fresh)
}
