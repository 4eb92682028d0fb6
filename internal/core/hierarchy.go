package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/drivepool/drivepool/internal/model"
	"github.com/google/uuid"
)

// HierarchyStore is the in-memory tree of folders and files. It owns the
// folder/file records exclusively; account ownership is tracked by id only.
//
// Aggregate maintenance is push-based: after every structural change the
// affected folders and all of their ancestors are recomputed, so
// Folder.Meta.Items and Folder.Meta.Size are never stale across operation
// boundaries.
//
// Like AccountRegistry, the store is not internally synchronized; the
// Drive façade serializes access.
type HierarchyStore struct {
	folders map[string]*model.Folder
	files   map[string]*model.File

	// children maps a folder id to the ids of its direct children
	// (folders and files alike).
	children map[string]map[string]struct{}
}

// FolderOptions carries optional attributes for folder creation.
type FolderOptions struct {
	Color string
}

// NewHierarchyStore creates a store holding only the root folder.
func NewHierarchyStore() *HierarchyStore {
	h := &HierarchyStore{
		folders:  make(map[string]*model.Folder),
		files:    make(map[string]*model.File),
		children: make(map[string]map[string]struct{}),
	}
	now := time.Now()
	h.folders[model.RootFolderID] = &model.Folder{
		ID:         model.RootFolderID,
		Name:       "Drive",
		CreatedAt:  now,
		ModifiedAt: now,
	}
	h.children[model.RootFolderID] = make(map[string]struct{})
	return h
}

// GetFolder returns the folder or nil if unknown.
func (h *HierarchyStore) GetFolder(id string) *model.Folder {
	return h.folders[id]
}

// GetFile returns the file or nil if unknown.
func (h *HierarchyStore) GetFile(id string) *model.File {
	return h.files[id]
}

// Folders returns every folder, ordered by id for deterministic iteration.
func (h *HierarchyStore) Folders() []*model.Folder {
	out := make([]*model.Folder, 0, len(h.folders))
	for _, f := range h.folders {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Files returns every file, ordered by id for deterministic iteration.
func (h *HierarchyStore) Files() []*model.File {
	out := make([]*model.File, 0, len(h.files))
	for _, f := range h.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateFolder inserts a new folder under parentID and refreshes the
// aggregates of the parent and its ancestors.
func (h *HierarchyStore) CreateFolder(name, parentID string, opts FolderOptions) (*model.Folder, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("folder name is empty: %w", ErrInvalidOperation)
	}
	if _, ok := h.folders[parentID]; !ok {
		return nil, notFound("folder", parentID)
	}

	now := time.Now()
	folder := &model.Folder{
		ID:         uuid.New().String(),
		Name:       name,
		ParentID:   parentID,
		CreatedAt:  now,
		ModifiedAt: now,
		Meta:       model.FolderMeta{Color: opts.Color},
	}
	h.folders[folder.ID] = folder
	h.children[folder.ID] = make(map[string]struct{})
	h.children[parentID][folder.ID] = struct{}{}
	h.refreshAggregates(parentID)
	return folder, nil
}

// AddFile indexes an already-constructed file record under its parent.
func (h *HierarchyStore) AddFile(f *model.File) error {
	if _, ok := h.folders[f.ParentID]; !ok {
		return notFound("folder", f.ParentID)
	}
	h.files[f.ID] = f
	h.children[f.ParentID][f.ID] = struct{}{}
	h.refreshAggregates(f.ParentID)
	return nil
}

// ListChildren returns the direct (or, if recursive, all transitive)
// folders and files under folderID. Trashed items are excluded unless
// includeTrashed is set.
func (h *HierarchyStore) ListChildren(folderID string, recursive, includeTrashed bool) ([]*model.Folder, []*model.File, error) {
	if _, ok := h.folders[folderID]; !ok {
		return nil, nil, notFound("folder", folderID)
	}

	var folders []*model.Folder
	var files []*model.File
	queue := []string{folderID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for id := range h.children[cur] {
			if folder, ok := h.folders[id]; ok {
				if folder.Meta.Trashed && !includeTrashed {
					continue
				}
				folders = append(folders, folder)
				if recursive {
					queue = append(queue, id)
				}
				continue
			}
			if file, ok := h.files[id]; ok {
				if file.Meta.Trashed && !includeTrashed {
					continue
				}
				files = append(files, file)
			}
		}
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return folders, files, nil
}

// MoveItems reparents each id into targetID. Failures are collected per
// item; a cyclic move (folder into itself or a descendant) never mutates
// the tree.
func (h *HierarchyStore) MoveItems(ids []string, targetID string) (int, []ItemError, error) {
	if _, ok := h.folders[targetID]; !ok {
		return 0, nil, notFound("folder", targetID)
	}

	moved := 0
	var errs []ItemError
	for _, id := range ids {
		if err := h.moveItem(id, targetID); err != nil {
			errs = append(errs, itemError(id, err))
			continue
		}
		moved++
	}
	return moved, errs, nil
}

func (h *HierarchyStore) moveItem(id, targetID string) error {
	if id == targetID {
		return fmt.Errorf("cannot move a folder into itself: %w", ErrInvalidOperation)
	}

	if folder, ok := h.folders[id]; ok {
		if h.isDescendant(targetID, id) {
			return fmt.Errorf("cannot move a folder into its own descendant: %w", ErrInvalidOperation)
		}
		oldParent := folder.ParentID
		if oldParent == "" {
			return fmt.Errorf("cannot move the root folder: %w", ErrInvalidOperation)
		}
		delete(h.children[oldParent], id)
		h.children[targetID][id] = struct{}{}
		folder.ParentID = targetID
		folder.ModifiedAt = time.Now()
		h.refreshAggregates(oldParent)
		h.refreshAggregates(targetID)
		return nil
	}

	if file, ok := h.files[id]; ok {
		oldParent := file.ParentID
		delete(h.children[oldParent], id)
		h.children[targetID][id] = struct{}{}
		file.ParentID = targetID
		file.ModifiedAt = time.Now()
		h.refreshAggregates(oldParent)
		h.refreshAggregates(targetID)
		return nil
	}

	return notFound("item", id)
}

// isDescendant reports whether id lies on the parent chain from candidate
// up to the root, i.e. candidate is id itself or a descendant of id.
func (h *HierarchyStore) isDescendant(candidate, id string) bool {
	for cur := candidate; cur != ""; {
		if cur == id {
			return true
		}
		folder, ok := h.folders[cur]
		if !ok {
			return false
		}
		cur = folder.ParentID
	}
	return false
}

// DeleteItems removes the given items. Soft delete flags them as trashed
// without freeing space; permanent delete removes records recursively,
// calling release exactly once for every file taken out of the index so
// the owning account's usage can be freed.
func (h *HierarchyStore) DeleteItems(ids []string, permanent bool, release func(*model.File)) (int, []ItemError) {
	deleted := 0
	var errs []ItemError
	for _, id := range ids {
		if id == model.RootFolderID {
			errs = append(errs, itemError(id, fmt.Errorf("cannot delete the root folder: %w", ErrInvalidOperation)))
			continue
		}
		if folder, ok := h.folders[id]; ok {
			if permanent {
				h.removeFolderTree(folder, release)
			} else {
				h.trashFolder(folder)
			}
			deleted++
			continue
		}
		if file, ok := h.files[id]; ok {
			if permanent {
				h.removeFile(file, release)
			} else {
				h.trashFile(file)
			}
			deleted++
			continue
		}
		errs = append(errs, itemError(id, notFound("item", id)))
	}
	return deleted, errs
}

func (h *HierarchyStore) trashFile(file *model.File) {
	now := time.Now()
	file.Meta.Trashed = true
	file.Meta.TrashedAt = &now
	file.ModifiedAt = now
	h.refreshAggregates(file.ParentID)
}

func (h *HierarchyStore) trashFolder(folder *model.Folder) {
	now := time.Now()
	folder.Meta.Trashed = true
	folder.Meta.TrashedAt = &now
	folder.ModifiedAt = now
	h.refreshAggregates(folder.ParentID)
}

// RestoreItems clears the trashed flag on each id. Unknown ids are
// collected as errors.
func (h *HierarchyStore) RestoreItems(ids []string) (int, []ItemError) {
	restored := 0
	var errs []ItemError
	for _, id := range ids {
		if folder, ok := h.folders[id]; ok {
			folder.Meta.Trashed = false
			folder.Meta.TrashedAt = nil
			folder.ModifiedAt = time.Now()
			h.refreshAggregates(folder.ParentID)
			restored++
			continue
		}
		if file, ok := h.files[id]; ok {
			file.Meta.Trashed = false
			file.Meta.TrashedAt = nil
			file.ModifiedAt = time.Now()
			h.refreshAggregates(file.ParentID)
			restored++
			continue
		}
		errs = append(errs, itemError(id, notFound("item", id)))
	}
	return restored, errs
}

// removeFile unindexes a single file. release runs before the record is
// dropped so callers can still read its size and owner.
func (h *HierarchyStore) removeFile(file *model.File, release func(*model.File)) {
	if release != nil {
		release(file)
	}
	delete(h.children[file.ParentID], file.ID)
	delete(h.files, file.ID)
	h.refreshAggregates(file.ParentID)
}

// removeFolderTree permanently deletes a folder and every descendant,
// files first so each owning account's space is freed exactly once.
func (h *HierarchyStore) removeFolderTree(folder *model.Folder, release func(*model.File)) {
	for id := range h.children[folder.ID] {
		if child, ok := h.folders[id]; ok {
			h.removeFolderTree(child, release)
			continue
		}
		if file, ok := h.files[id]; ok {
			h.removeFile(file, release)
		}
	}
	delete(h.children[folder.ParentID], folder.ID)
	delete(h.children, folder.ID)
	delete(h.folders, folder.ID)
	h.refreshAggregates(folder.ParentID)
}

// ToggleStar flips the starred flag on a folder or file and returns the
// new value.
func (h *HierarchyStore) ToggleStar(id string) (bool, error) {
	if folder, ok := h.folders[id]; ok {
		folder.Meta.Starred = !folder.Meta.Starred
		folder.ModifiedAt = time.Now()
		return folder.Meta.Starred, nil
	}
	if file, ok := h.files[id]; ok {
		file.Meta.Starred = !file.Meta.Starred
		file.ModifiedAt = time.Now()
		return file.Meta.Starred, nil
	}
	return false, notFound("item", id)
}

// Restore rebuilds the store from deserialized records, re-deriving the
// children index and refreshing every aggregate.
func (h *HierarchyStore) Restore(folders map[string]*model.Folder, files map[string]*model.File) {
	h.folders = make(map[string]*model.Folder, len(folders)+1)
	h.files = make(map[string]*model.File, len(files))
	h.children = make(map[string]map[string]struct{})

	for id, f := range folders {
		h.folders[id] = f
		h.children[id] = make(map[string]struct{})
	}
	if _, ok := h.folders[model.RootFolderID]; !ok {
		now := time.Now()
		h.folders[model.RootFolderID] = &model.Folder{
			ID: model.RootFolderID, Name: "Drive", CreatedAt: now, ModifiedAt: now,
		}
		h.children[model.RootFolderID] = make(map[string]struct{})
	}
	for id, f := range h.folders {
		if f.ParentID == "" {
			continue
		}
		if _, ok := h.children[f.ParentID]; ok {
			h.children[f.ParentID][id] = struct{}{}
		}
	}
	for id, f := range files {
		if _, ok := h.children[f.ParentID]; !ok {
			continue // orphaned record in a stale save; drop it
		}
		h.files[id] = f
		h.children[f.ParentID][id] = struct{}{}
	}
	for id := range h.folders {
		h.recompute(id)
	}
}

// refreshAggregates recomputes the aggregates of folderID and pushes the
// recomputation up to the root.
func (h *HierarchyStore) refreshAggregates(folderID string) {
	for cur := folderID; cur != ""; {
		folder, ok := h.folders[cur]
		if !ok {
			return
		}
		h.recompute(cur)
		cur = folder.ParentID
	}
}

// recompute derives Items and Size from the folder's direct, non-trashed
// children: Items counts child folders and files, Size sums child file
// bytes.
func (h *HierarchyStore) recompute(folderID string) {
	folder, ok := h.folders[folderID]
	if !ok {
		return
	}
	items := 0
	var size int64
	for id := range h.children[folderID] {
		if child, ok := h.folders[id]; ok {
			if !child.Meta.Trashed {
				items++
			}
			continue
		}
		if file, ok := h.files[id]; ok {
			if !file.Meta.Trashed {
				items++
				size += file.Size
			}
		}
	}
	folder.Meta.Items = items
	folder.Meta.Size = size
}
