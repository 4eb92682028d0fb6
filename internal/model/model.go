// Package model defines the core domain models for DrivePool: backing
// accounts, the folder/file hierarchy, derived pool statistics, and the
// persisted state envelope.
package model

import (
	"time"
)

// FileType is the derived category of a file, mapped from its extension.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeArchive  FileType = "archive"
	FileTypeCode     FileType = "code"
	FileTypeBinary   FileType = "binary"
)

// RootFolderID is the id of the distinguished root folder. The root is
// created once at initialization and is never deleted or moved.
const RootFolderID = "root"

// Account is a backing storage account in the virtual pool.
// UsedSpace is authoritative here: it must always equal the sum of the
// sizes of the files the account owns.
type Account struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	Email      string    `json:"email,omitempty"`
	TotalSpace int64     `json:"totalSpace"`
	UsedSpace  int64     `json:"usedSpace"`
	Priority   int       `json:"priority"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`

	// Membership indexes. In memory these are set-shaped for O(1) checks;
	// on the wire they are serialized as ordered id sequences (see
	// PersistedAccount).
	FileIDs   map[string]struct{} `json:"-"`
	FolderIDs map[string]struct{} `json:"-"`
}

// FreeSpace returns the raw headroom of the account, before the placement
// safety buffer is applied.
func (a *Account) FreeSpace() int64 {
	return a.TotalSpace - a.UsedSpace
}

// FileCount returns the number of files the account owns.
func (a *Account) FileCount() int {
	return len(a.FileIDs)
}

// Clone returns a deep copy of the account, including the membership sets.
func (a *Account) Clone() *Account {
	cp := *a
	cp.FileIDs = make(map[string]struct{}, len(a.FileIDs))
	for id := range a.FileIDs {
		cp.FileIDs[id] = struct{}{}
	}
	cp.FolderIDs = make(map[string]struct{}, len(a.FolderIDs))
	for id := range a.FolderIDs {
		cp.FolderIDs[id] = struct{}{}
	}
	return &cp
}

// AccountSpec describes a new account to register. It is also the shape of
// the default roster entries carried by Config.
type AccountSpec struct {
	Name       string `json:"name"`
	Provider   string `json:"provider,omitempty"`
	Email      string `json:"email,omitempty"`
	TotalSpace int64  `json:"totalSpace,omitempty"`
	Priority   int    `json:"priority,omitempty"`
}

// FolderMeta is the derived/decorative metadata block of a folder.
// Items and Size are derived aggregates over the folder's direct,
// non-trashed children and are recomputed after every structural change.
type FolderMeta struct {
	Color               string     `json:"color,omitempty"`
	Items               int        `json:"items"`
	Size                int64      `json:"size"`
	Distributed         bool       `json:"distributed,omitempty"`
	DistributedAccounts []string   `json:"distributedAccounts,omitempty"`
	Starred             bool       `json:"starred"`
	Trashed             bool       `json:"trashed"`
	TrashedAt           *time.Time `json:"trashedAt,omitempty"`
}

// Folder is a node in the hierarchy. ParentID is empty only for the root.
type Folder struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ParentID   string     `json:"parentId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ModifiedAt time.Time  `json:"modifiedAt"`
	Meta       FolderMeta `json:"metadata"`
}

// Clone returns a deep copy of the folder.
func (f *Folder) Clone() *Folder {
	cp := *f
	if f.Meta.DistributedAccounts != nil {
		cp.Meta.DistributedAccounts = append([]string(nil), f.Meta.DistributedAccounts...)
	}
	if f.Meta.TrashedAt != nil {
		at := *f.Meta.TrashedAt
		cp.Meta.TrashedAt = &at
	}
	return &cp
}

// FileMeta is the metadata block of a file.
type FileMeta struct {
	Extension   string     `json:"extension,omitempty"`
	Starred     bool       `json:"starred"`
	Tags        []string   `json:"tags,omitempty"`
	ContentHash string     `json:"contentHash,omitempty"`
	Compressed  bool       `json:"compressed,omitempty"`
	Trashed     bool       `json:"trashed"`
	TrashedAt   *time.Time `json:"trashedAt,omitempty"`
}

// File is a leaf in the hierarchy. AccountID references the single owning
// account by id; the reference is non-owning so the hierarchy and the
// account registry can be serialized and restored independently.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       FileType  `json:"type"`
	Size       int64     `json:"size"`
	ParentID   string    `json:"parentId"`
	AccountID  string    `json:"accountId"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Meta       FileMeta  `json:"metadata"`
}

// Clone returns a deep copy of the file.
func (f *File) Clone() *File {
	cp := *f
	if f.Meta.Tags != nil {
		cp.Meta.Tags = append([]string(nil), f.Meta.Tags...)
	}
	if f.Meta.TrashedAt != nil {
		at := *f.Meta.TrashedAt
		cp.Meta.TrashedAt = &at
	}
	return &cp
}

// WarningLevel classifies a usage warning.
type WarningLevel string

const (
	WarningLevelWarning  WarningLevel = "warning"
	WarningLevelCritical WarningLevel = "critical"
	WarningLevelPool     WarningLevel = "pool-warning"
)

// UsageWarning flags an account (or the whole pool) approaching capacity.
type UsageWarning struct {
	Level     WarningLevel `json:"level"`
	AccountID string       `json:"accountId,omitempty"`
	Message   string       `json:"message"`
}

// AccountUsage is the per-account slice of the pool statistics.
type AccountUsage struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	TotalSpace      int64   `json:"totalSpace"`
	UsedSpace       int64   `json:"usedSpace"`
	UsagePercentage float64 `json:"usagePercentage"`
	FileCount       int     `json:"fileCount"`
	FolderCount     int     `json:"folderCount"`
	IsActive        bool    `json:"isActive"`
}

// OpCounters is the append-only operation tally.
type OpCounters struct {
	Uploads   int64 `json:"uploads"`
	Downloads int64 `json:"downloads"`
	Moves     int64 `json:"moves"`
	Deletes   int64 `json:"deletes"`
}

// PoolStats is the derived pool-wide usage summary. It is recomputed from
// the account registry and hierarchy, cached, and invalidated on every
// mutating operation.
type PoolStats struct {
	TotalSpace      int64          `json:"totalSpace"`
	UsedSpace       int64          `json:"usedSpace"`
	UsagePercentage float64        `json:"usagePercentage"`
	AccountCount    int            `json:"accountCount"`
	ActiveAccounts  int            `json:"activeAccounts"`
	FileCount       int            `json:"fileCount"`
	FolderCount     int            `json:"folderCount"`
	Counters        OpCounters     `json:"counters"`
	Warnings        []UsageWarning `json:"warnings,omitempty"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}

// Config holds the per-drive configuration persisted alongside the state.
// DefaultAccounts is the roster seeded into a freshly initialized drive;
// it is never re-applied to a drive restored from a saved slot.
type Config struct {
	Strategy        string        `json:"strategy"`
	DefaultCapacity int64         `json:"defaultCapacity"`
	DefaultAccounts []AccountSpec `json:"defaultAccounts,omitempty"`
}

// PersistedAccount is the wire shape of an account: the membership sets
// flattened to ordered sequences.
type PersistedAccount struct {
	Account
	Files   []string `json:"files"`
	Folders []string `json:"folders"`
}

// PersistedFileSystem is the wire shape of the hierarchy store.
type PersistedFileSystem struct {
	Folders map[string]*Folder `json:"folders"`
	Files   map[string]*File   `json:"files"`
}

// PersistedState is the full durable-slot payload. Save/Load round-trips
// it verbatim; pool totals are recomputed and caches cleared after load.
type PersistedState struct {
	Config      Config                      `json:"config"`
	Accounts    map[string]PersistedAccount `json:"accounts"`
	FileSystem  PersistedFileSystem         `json:"fileSystem"`
	FileMapping map[string]string           `json:"fileMapping"`
	Stats       OpCounters                  `json:"stats"`
	Version     int                         `json:"version"`
	SavedAt     time.Time                   `json:"savedAt"`
}
