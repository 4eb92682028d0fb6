package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drivepool/drivepool/internal/model"
)

// Drive is the façade over the account registry, the hierarchy store, the
// placement policy, and the persistence slot. One Drive instance exists per
// user key; all state lives on the instance, never in package globals.
//
// Concurrency: a single coarse RWMutex guards the combined registry and
// hierarchy, since every mutating operation cross-mutates both. Reads take
// the read lock and never observe a partially-updated aggregate. Events are
// published after the lock is released so a slow subscriber cannot stall
// the drive.
type Drive struct {
	mu sync.RWMutex

	cfg      model.Config
	registry *AccountRegistry
	tree     *HierarchyStore
	policy   *PlacementPolicy
	caches   *derivedCache
	bus      *EventBus

	store    StateStore
	userKey  string
	counters model.OpCounters
}

// NewDrive creates a drive bound to store under userKey. The configured
// strategy string is parsed leniently: unknown values fall back to
// smart-balance.
func NewDrive(store StateStore, userKey string, cfg model.Config) *Drive {
	registry := NewAccountRegistry()
	d := &Drive{
		cfg:      cfg,
		registry: registry,
		tree:     NewHierarchyStore(),
		policy:   NewPlacementPolicy(ParseStrategy(cfg.Strategy), registry),
		caches:   newDerivedCache(),
		bus:      NewEventBus(),
		store:    store,
		userKey:  userKey,
	}
	d.seedAccounts()
	return d
}

// seedAccounts registers the configured default roster into a fresh
// registry. Specs that fail validation are skipped; the roster is a
// convenience, not a correctness requirement.
func (d *Drive) seedAccounts() {
	for _, spec := range d.cfg.DefaultAccounts {
		if spec.TotalSpace == 0 {
			spec.TotalSpace = d.cfg.DefaultCapacity
		}
		_, _ = d.registry.Add(spec)
	}
}

// Subscribe registers a domain-event subscriber and returns its token.
func (d *Drive) Subscribe(fn Subscriber) int {
	return d.bus.Subscribe(fn)
}

// Unsubscribe removes a subscriber by token.
func (d *Drive) Unsubscribe(token int) {
	d.bus.Unsubscribe(token)
}

// publishAfter flushes events collected during a locked section. Registered
// with defer BEFORE the unlock defer, so the LIFO order releases the lock
// first and then publishes.
func (d *Drive) publishAfter(events *[]Event) {
	for _, e := range *events {
		d.bus.Publish(e)
	}
}

// --- accounts ---

// AddAccount registers a new backing account. A zero TotalSpace takes the
// configured default capacity.
func (d *Drive) AddAccount(spec model.AccountSpec) (*model.Account, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	if spec.TotalSpace == 0 {
		spec.TotalSpace = d.cfg.DefaultCapacity
	}
	acc, err := d.registry.Add(spec)
	if err != nil {
		return nil, err
	}
	d.caches.InvalidateAll()
	events = append(events, Event{
		Type:      EventAccountChange,
		AccountID: acc.ID,
		Detail:    "added " + acc.Name,
	})
	return acc, nil
}

// RemoveAccount deletes an account. With transferFiles, every file the
// account owns is independently relocated to another active account first;
// files no other account can absorb are left in the index without an owner
// and tagged, never silently dropped. Without transferFiles the account's
// files are removed from the index outright.
func (d *Drive) RemoveAccount(id string, transferFiles bool) (*TransferResult, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	acc := d.registry.Get(id)
	if acc == nil {
		return nil, notFound("account", id)
	}

	result := &TransferResult{}
	ownedFiles := make([]string, 0, len(acc.FileIDs))
	for fid := range acc.FileIDs {
		ownedFiles = append(ownedFiles, fid)
	}
	sort.Strings(ownedFiles)

	if transferFiles {
		for _, fid := range ownedFiles {
			file := d.tree.GetFile(fid)
			if file == nil {
				continue
			}
			target := d.policy.Choose(file, d.otherActive(id))
			if target == "" {
				// No home anywhere else; keep the record, mark it orphaned.
				file.AccountID = ""
				file.Meta.Tags = appendTag(file.Meta.Tags, "orphaned")
				result.Orphaned++
				continue
			}
			if err := d.relocate(file, target); err != nil {
				result.Errors = append(result.Errors, itemError(fid, err))
				continue
			}
			result.Transferred++
		}
	} else {
		// Caller accepted data loss: drop the account's files from the index.
		deleted, _ := d.tree.DeleteItems(ownedFiles, true, nil)
		result.Dropped = deleted
	}

	// Distributed folders must not keep pointing at the removed account.
	for fid := range acc.FolderIDs {
		if folder := d.tree.GetFolder(fid); folder != nil {
			folder.Meta.DistributedAccounts = removeString(folder.Meta.DistributedAccounts, id)
		}
	}

	if err := d.registry.Remove(id); err != nil {
		return nil, err
	}
	d.caches.InvalidateAll()
	events = append(events, Event{
		Type:      EventAccountChange,
		AccountID: id,
		Detail:    "removed " + acc.Name,
	})
	return result, nil
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// SetAccountActive flips an account's active flag. Inactive accounts keep
// their files but are never selected for new placements.
func (d *Drive) SetAccountActive(id string, active bool) error {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	acc := d.registry.Get(id)
	if acc == nil {
		return notFound("account", id)
	}
	acc.IsActive = active
	d.caches.InvalidateAll()
	events = append(events, Event{
		Type:      EventAccountChange,
		AccountID: id,
		Detail:    "active=" + strconv.FormatBool(active),
	})
	return nil
}

// ListAccounts returns copies of the registered accounts in priority order.
func (d *Drive) ListAccounts() []*model.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	live := d.registry.List()
	out := make([]*model.Account, 0, len(live))
	for _, acc := range live {
		out = append(out, acc.Clone())
	}
	return out
}

// otherActive returns the active accounts excluding id.
func (d *Drive) otherActive(id string) []*model.Account {
	var out []*model.Account
	for _, acc := range d.registry.Active() {
		if acc.ID != id {
			out = append(out, acc)
		}
	}
	return out
}

// SetStrategy switches the placement strategy for subsequent uploads.
func (d *Drive) SetStrategy(s Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.policy.SetStrategy(s)
	d.cfg.Strategy = string(s)
}

// --- upload / download ---

// FileUpload describes one file in an upload batch. Size may be zero, in
// which case a fixed per-type average is assumed. Data is optional; when
// present it only contributes the content hash, the bytes themselves live
// with the external object store.
type FileUpload struct {
	Name       string
	Size       int64
	Data       []byte
	Compressed bool
}

// UploadedFile reports one successfully placed file.
type UploadedFile struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      model.FileType `json:"type"`
	Size      int64          `json:"size"`
	AccountID string         `json:"accountId"`
}

// UploadResult is the batch envelope for UploadFiles. Success is true only
// when every file in the batch was placed.
type UploadResult struct {
	Success  bool           `json:"success"`
	Uploaded []UploadedFile `json:"uploaded"`
	Errors   []ItemError    `json:"errors,omitempty"`
}

// UploadFiles places each file on an account chosen by the active strategy
// and indexes it under targetFolderID. Each file runs the full pipeline
// independently: a file that no account can absorb fails alone and the
// batch continues. Cancelling ctx stops the batch between files; files
// already placed stay placed.
func (d *Drive) UploadFiles(ctx context.Context, uploads []FileUpload, targetFolderID string) (*UploadResult, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tree.GetFolder(targetFolderID) == nil {
		return nil, notFound("folder", targetFolderID)
	}

	result := &UploadResult{}
	for _, up := range uploads {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, itemError(up.Name, err))
			break
		}
		file, err := d.uploadOne(up, targetFolderID)
		if err != nil {
			result.Errors = append(result.Errors, itemError(up.Name, err))
			continue
		}
		result.Uploaded = append(result.Uploaded, UploadedFile{
			ID: file.ID, Name: file.Name, Type: file.Type, Size: file.Size, AccountID: file.AccountID,
		})
		events = append(events, Event{
			Type:      EventUpload,
			ItemIDs:   []string{file.ID},
			AccountID: file.AccountID,
			Detail:    file.Name,
		})
	}
	result.Success = len(result.Errors) == 0
	if len(result.Uploaded) > 0 {
		d.caches.InvalidateAll()
	}
	return result, nil
}

// uploadOne runs the per-file pipeline: derive type, estimate size, select
// an account, verify capacity, record usage, index. Once usage is recorded
// the remaining steps cannot fail, so accounting is never left half-applied.
func (d *Drive) uploadOne(up FileUpload, targetFolderID string) (*model.File, error) {
	if up.Name == "" {
		return nil, fmt.Errorf("file name is empty: %w", ErrInvalidOperation)
	}

	ftype := deriveType(up.Name)
	size := up.Size
	if size <= 0 {
		size = estimateSize(ftype)
	}

	now := time.Now()
	file := &model.File{
		ID:         uuid.New().String(),
		Name:       up.Name,
		Type:       ftype,
		Size:       size,
		ParentID:   targetFolderID,
		CreatedAt:  now,
		ModifiedAt: now,
		Meta: model.FileMeta{
			Extension:   fileExtension(up.Name),
			Tags:        tagsForType(ftype),
			ContentHash: hashContent(up.Data),
			Compressed:  up.Compressed,
		},
	}

	accountID := d.policy.Choose(file, d.registry.Active())
	if accountID == "" {
		return nil, fmt.Errorf("no account can absorb %d bytes: %w", size, ErrCapacityExceeded)
	}
	if !d.registry.HasCapacity(accountID, size) {
		return nil, fmt.Errorf("account %s cannot absorb %d bytes: %w", accountID, size, ErrCapacityExceeded)
	}
	file.AccountID = accountID

	if err := d.registry.RecordUsageDelta(accountID, size); err != nil {
		return nil, err
	}
	if err := d.tree.AddFile(file); err != nil {
		// Roll the accounting back; the file was never indexed.
		_ = d.registry.RecordUsageDelta(accountID, -size)
		return nil, err
	}
	d.registry.AddFile(accountID, file.ID)
	d.counters.Uploads++
	return file, nil
}

// DownloadItem resolves one requested file to its record and a synthetic
// retrieval handle.
type DownloadItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	AccountID   string `json:"accountId"`
	AccountName string `json:"accountName"`
	Handle      string `json:"handle"`
}

// DownloadResult is the envelope for DownloadFiles.
type DownloadResult struct {
	Success   bool           `json:"success"`
	Items     []DownloadItem `json:"items"`
	TotalSize int64          `json:"totalSize"`
}

// DownloadFiles resolves each id to its record, owning account name, and a
// synthetic pool:// handle. Unknown ids are skipped, not reported; the
// result carries whatever subset was found. Cancelling ctx stops between
// files.
func (d *Drive) DownloadFiles(ctx context.Context, ids []string) (*DownloadResult, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	result := &DownloadResult{Success: true}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		file := d.tree.GetFile(id)
		if file == nil {
			continue
		}
		accountName := ""
		if acc := d.registry.Get(file.AccountID); acc != nil {
			accountName = acc.Name
		}
		result.Items = append(result.Items, DownloadItem{
			ID:          file.ID,
			Name:        file.Name,
			Size:        file.Size,
			AccountID:   file.AccountID,
			AccountName: accountName,
			Handle:      fmt.Sprintf("pool://%s/%s", file.AccountID, file.ID),
		})
		result.TotalSize += file.Size
		d.counters.Downloads++
	}
	if len(result.Items) > 0 {
		d.caches.ClearStats() // counters moved
		events = append(events, Event{Type: EventDownload, ItemIDs: ids})
	}
	return result, nil
}

// --- hierarchy operations ---

// CreateFolderOptions carries optional folder attributes. Distributed flags
// the folder as conceptually replicated across every active account;
// metadata only, nothing is copied.
type CreateFolderOptions struct {
	Color       string
	Distributed bool
}

// CreateFolder inserts a folder under parentID.
func (d *Drive) CreateFolder(name, parentID string, opts CreateFolderOptions) (*model.Folder, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	folder, err := d.tree.CreateFolder(name, parentID, FolderOptions{Color: opts.Color})
	if err != nil {
		return nil, err
	}
	if opts.Distributed {
		folder.Meta.Distributed = true
		for _, acc := range d.registry.Active() {
			folder.Meta.DistributedAccounts = append(folder.Meta.DistributedAccounts, acc.ID)
			d.registry.AddFolder(acc.ID, folder.ID)
		}
	}
	d.caches.InvalidateAll()
	events = append(events, Event{Type: EventFolderCreate, ItemIDs: []string{folder.ID}, Detail: name})
	return folder, nil
}

// ListChildren returns the folders and files under folderID, direct or
// transitive. Trashed items are excluded unless includeTrashed is set.
// The returned records are copies, detached from later mutations; results
// are cached until the next mutation.
func (d *Drive) ListChildren(folderID string, recursive, includeTrashed bool) ([]*model.Folder, []*model.File, error) {
	key := folderID + "/" + strconv.FormatBool(recursive) + "/" + strconv.FormatBool(includeTrashed)
	if snap, ok := d.caches.listing.Get(key); ok {
		return snap.Folders, snap.Files, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	folders, files, err := d.tree.ListChildren(folderID, recursive, includeTrashed)
	if err != nil {
		return nil, nil, err
	}
	snap := listingSnapshot{
		Folders: make([]*model.Folder, 0, len(folders)),
		Files:   make([]*model.File, 0, len(files)),
	}
	for _, f := range folders {
		snap.Folders = append(snap.Folders, f.Clone())
	}
	for _, f := range files {
		snap.Files = append(snap.Files, f.Clone())
	}
	d.caches.listing.Add(key, snap)
	return snap.Folders, snap.Files, nil
}

// GetFolderInfo returns a copy of the folder record, or nil when unknown.
func (d *Drive) GetFolderInfo(id string) *model.Folder {
	d.mu.RLock()
	defer d.mu.RUnlock()
	folder := d.tree.GetFolder(id)
	if folder == nil {
		return nil
	}
	return folder.Clone()
}

// GetFileInfo returns a copy of the file record, or nil when unknown.
func (d *Drive) GetFileInfo(id string) *model.File {
	d.mu.RLock()
	defer d.mu.RUnlock()
	file := d.tree.GetFile(id)
	if file == nil {
		return nil
	}
	return file.Clone()
}

// MoveResult is the batch envelope for MoveItems.
type MoveResult struct {
	Success bool        `json:"success"`
	Moved   int         `json:"moved"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// MoveItems reparents each item into targetFolderID. Account ownership of
// files never changes on move. Per-item failures (cycles, unknown ids) are
// collected; Success is true only when every item moved.
func (d *Drive) MoveItems(ids []string, targetFolderID string) (*MoveResult, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	moved, errs, err := d.tree.MoveItems(ids, targetFolderID)
	if err != nil {
		return nil, err
	}
	d.counters.Moves += int64(moved)
	if moved > 0 {
		d.caches.InvalidateAll()
		events = append(events, Event{Type: EventMove, ItemIDs: ids, Detail: "to " + targetFolderID})
	}
	return &MoveResult{Success: len(errs) == 0, Moved: moved, Errors: errs}, nil
}

// DeleteResult is the batch envelope for DeleteItems.
type DeleteResult struct {
	Success bool        `json:"success"`
	Deleted int         `json:"deleted"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// DeleteItems trashes (or, with permanent, recursively removes) each item.
// Permanent deletion frees each file's owning account space exactly once,
// including files that were already soft-deleted.
func (d *Drive) DeleteItems(ids []string, permanent bool) (*DeleteResult, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	deleted, errs := d.tree.DeleteItems(ids, permanent, d.releaseFile)
	d.counters.Deletes += int64(deleted)
	if deleted > 0 {
		d.caches.InvalidateAll()
		detail := "trash"
		if permanent {
			detail = "permanent"
		}
		events = append(events, Event{Type: EventDelete, ItemIDs: ids, Detail: detail})
		events = append(events, Event{Type: EventSpaceChange})
	}
	return &DeleteResult{Success: len(errs) == 0, Deleted: deleted, Errors: errs}, nil
}

// releaseFile frees the owning account's space and membership when a file
// record leaves the index for good.
func (d *Drive) releaseFile(file *model.File) {
	if file.AccountID == "" {
		return
	}
	_ = d.registry.RecordUsageDelta(file.AccountID, -file.Size)
	d.registry.RemoveFile(file.AccountID, file.ID)
}

// RestoreItems clears the trashed flag on each item.
func (d *Drive) RestoreItems(ids []string) (*DeleteResult, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	restored, errs := d.tree.RestoreItems(ids)
	if restored > 0 {
		d.caches.InvalidateAll()
		events = append(events, Event{Type: EventRestore, ItemIDs: ids})
	}
	return &DeleteResult{Success: len(errs) == 0, Deleted: restored, Errors: errs}, nil
}

// ToggleStar flips the starred flag on a folder or file and returns the new
// value.
func (d *Drive) ToggleStar(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	starred, err := d.tree.ToggleStar(id)
	if err != nil {
		return false, err
	}
	d.caches.InvalidateAll()
	return starred, nil
}

// --- search ---

// Search filters the full index. Results are cached per serialized filter
// until the next mutation.
func (d *Drive) Search(filter SearchFilter) []SearchHit {
	key := filter.cacheKey()
	if key != "" {
		if hits, ok := d.caches.search.Get(key); ok {
			return hits
		}
	}

	d.mu.RLock()
	hits := searchIndex(d.tree, filter)
	d.mu.RUnlock()

	if key != "" {
		d.caches.search.Add(key, hits)
	}
	return hits
}

// --- optimize ---

// OptimizeResult is the envelope for OptimizeStorage.
type OptimizeResult struct {
	Success bool        `json:"success"`
	Moved   int         `json:"moved"`
	Checked int         `json:"checked"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// OptimizeStorage re-runs placement over every file and relocates the ones
// whose ideal account differs from the current one and can absorb them.
// Files already ideally placed, and files no better account can take, are
// left alone and never counted as failures. Parent folders are untouched:
// relocation changes ownership only.
func (d *Drive) OptimizeStorage() (*OptimizeResult, error) {
	var events []Event
	defer d.publishAfter(&events)
	d.mu.Lock()
	defer d.mu.Unlock()

	result := &OptimizeResult{}
	for _, file := range d.tree.Files() {
		if file.AccountID == "" {
			continue
		}
		result.Checked++
		ideal := d.policy.Choose(file, d.registry.Active())
		if ideal == "" || ideal == file.AccountID {
			continue
		}
		if !d.registry.HasCapacity(ideal, file.Size) {
			continue
		}
		if err := d.relocate(file, ideal); err != nil {
			result.Errors = append(result.Errors, itemError(file.ID, err))
			continue
		}
		result.Moved++
	}
	if result.Moved > 0 {
		d.caches.InvalidateAll()
		events = append(events, Event{
			Type:   EventOptimize,
			Detail: strconv.Itoa(result.Moved) + " relocated",
		})
	}
	result.Success = len(result.Errors) == 0
	return result, nil
}

// relocate moves a file's ownership from its current account to target,
// adjusting both usage counters and membership sets. The hierarchy position
// is untouched.
func (d *Drive) relocate(file *model.File, target string) error {
	if err := d.registry.RecordUsageDelta(target, file.Size); err != nil {
		return err
	}
	if file.AccountID != "" {
		if err := d.registry.RecordUsageDelta(file.AccountID, -file.Size); err != nil {
			_ = d.registry.RecordUsageDelta(target, -file.Size)
			return err
		}
		d.registry.RemoveFile(file.AccountID, file.ID)
	}
	d.registry.AddFile(target, file.ID)
	file.AccountID = target
	file.ModifiedAt = time.Now()
	return nil
}

// --- stats ---

// GetStats returns the pool-wide usage summary. Cached until the next
// mutation.
func (d *Drive) GetStats() *model.PoolStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if memo := d.caches.Stats(); memo != nil {
		cp := *memo
		return &cp
	}
	stats := d.registry.Stats()
	stats.FileCount = len(d.tree.Files())
	stats.FolderCount = len(d.tree.Folders()) - 1 // root excluded
	stats.Counters = d.counters
	d.caches.SetStats(stats)
	cp := *stats
	return &cp
}

// GetAccountStats returns the per-account usage summaries. Cached until the
// next mutation.
func (d *Drive) GetAccountStats() []model.AccountUsage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	memo := d.caches.AccountStats()
	if memo == nil {
		memo = d.registry.Usage()
		d.caches.SetAccountStats(memo)
	}
	out := make([]model.AccountUsage, len(memo))
	copy(out, memo)
	return out
}

// --- persistence ---

// Save serializes the full drive state into the user's durable slot.
func (d *Drive) Save(ctx context.Context) error {
	d.mu.RLock()
	state := d.snapshotState()
	d.mu.RUnlock()
	return d.store.Save(ctx, d.userKey, state)
}

// snapshotState builds the wire-shaped state under the read lock.
func (d *Drive) snapshotState() *model.PersistedState {
	accounts := make(map[string]model.PersistedAccount)
	for _, acc := range d.registry.List() {
		files := make([]string, 0, len(acc.FileIDs))
		for id := range acc.FileIDs {
			files = append(files, id)
		}
		sort.Strings(files)
		folders := make([]string, 0, len(acc.FolderIDs))
		for id := range acc.FolderIDs {
			folders = append(folders, id)
		}
		sort.Strings(folders)
		accounts[acc.ID] = model.PersistedAccount{Account: *acc, Files: files, Folders: folders}
	}

	fs := model.PersistedFileSystem{
		Folders: make(map[string]*model.Folder),
		Files:   make(map[string]*model.File),
	}
	mapping := make(map[string]string)
	for _, f := range d.tree.Folders() {
		cp := *f
		fs.Folders[f.ID] = &cp
	}
	for _, f := range d.tree.Files() {
		cp := *f
		fs.Files[f.ID] = &cp
		if f.AccountID != "" {
			mapping[f.ID] = f.AccountID
		}
	}

	return &model.PersistedState{
		Config:      d.cfg,
		Accounts:    accounts,
		FileSystem:  fs,
		FileMapping: mapping,
		Stats:       d.counters,
	}
}

// Load restores the drive from the user's durable slot. A missing or
// corrupt slot is recovered by reinitializing to a fresh empty state; it is
// never surfaced as an error. Loading twice is idempotent.
func (d *Drive) Load(ctx context.Context) error {
	state, err := d.store.Load(ctx, d.userKey)
	if err != nil {
		// Missing or unreadable slot: start fresh rather than fail the caller.
		d.mu.Lock()
		d.registry = NewAccountRegistry()
		d.tree = NewHierarchyStore()
		d.policy = NewPlacementPolicy(ParseStrategy(d.cfg.Strategy), d.registry)
		d.counters = model.OpCounters{}
		d.seedAccounts()
		d.caches.InvalidateAll()
		d.mu.Unlock()
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfg = state.Config
	d.registry = NewAccountRegistry()
	for _, pa := range state.Accounts {
		d.registry.Restore(pa.Account, pa.Files, pa.Folders)
	}
	d.tree = NewHierarchyStore()
	d.tree.Restore(state.FileSystem.Folders, state.FileSystem.Files)
	d.policy = NewPlacementPolicy(ParseStrategy(state.Config.Strategy), d.registry)
	d.counters = state.Stats

	// Usage counters are authoritative but cheap to re-derive; recomputing
	// here shields against a slot written by a buggy earlier build.
	usage := make(map[string]int64)
	for _, f := range d.tree.Files() {
		if f.AccountID != "" {
			usage[f.AccountID] += f.Size
		}
	}
	for _, acc := range d.registry.List() {
		acc.UsedSpace = usage[acc.ID]
	}

	d.caches.InvalidateAll()
	return nil
}

func appendTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

// TransferResult reports the outcome of removing an account.
type TransferResult struct {
	Transferred int         `json:"transferred"`
	Orphaned    int         `json:"orphaned"`
	Dropped     int         `json:"dropped"`
	Errors      []ItemError `json:"errors,omitempty"`
}
