package core

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/drivepool/drivepool/internal/model"
	"github.com/google/uuid"
)

// Usage thresholds. Fixed by the observed behavior, not configurable.
const (
	// safetyBufferFraction of each account's capacity is reserved and must
	// not be breached by new placements.
	safetyBufferFraction = 0.05

	accountWarningFraction  = 0.80
	accountCriticalFraction = 0.90
	poolWarningFraction     = 0.85
)

// AccountRegistry tracks the backing accounts of the virtual pool and owns
// the authoritative usedSpace counters.
//
// The registry is not internally synchronized: the Drive façade serializes
// every access under its own lock, since mutating drive operations
// cross-mutate the registry and the hierarchy store together.
type AccountRegistry struct {
	accounts map[string]*model.Account
}

// NewAccountRegistry creates an empty registry.
func NewAccountRegistry() *AccountRegistry {
	return &AccountRegistry{accounts: make(map[string]*model.Account)}
}

// Add creates and activates a new account.
func (r *AccountRegistry) Add(spec model.AccountSpec) (*model.Account, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("account name is empty: %w", ErrInvalidOperation)
	}
	if spec.TotalSpace <= 0 {
		return nil, fmt.Errorf("account capacity must be positive, got %d: %w",
			spec.TotalSpace, ErrInvalidOperation)
	}

	acc := &model.Account{
		ID:         uuid.New().String(),
		Name:       spec.Name,
		Provider:   spec.Provider,
		Email:      spec.Email,
		TotalSpace: spec.TotalSpace,
		Priority:   spec.Priority,
		IsActive:   true,
		CreatedAt:  time.Now(),
		FileIDs:    make(map[string]struct{}),
		FolderIDs:  make(map[string]struct{}),
	}
	r.accounts[acc.ID] = acc
	return acc, nil
}

// Restore re-inserts a deserialized account, rebuilding its membership
// sets from the persisted sequences.
func (r *AccountRegistry) Restore(acc model.Account, files, folders []string) {
	acc.FileIDs = make(map[string]struct{}, len(files))
	for _, id := range files {
		acc.FileIDs[id] = struct{}{}
	}
	acc.FolderIDs = make(map[string]struct{}, len(folders))
	for _, id := range folders {
		acc.FolderIDs[id] = struct{}{}
	}
	r.accounts[acc.ID] = &acc
}

// Remove deletes the account record. Relocation of owned files is the
// façade's job; by the time this runs the caller has either transferred
// them or accepted the loss.
func (r *AccountRegistry) Remove(id string) error {
	if _, ok := r.accounts[id]; !ok {
		return notFound("account", id)
	}
	delete(r.accounts, id)
	return nil
}

// Get returns the account or nil if unknown.
func (r *AccountRegistry) Get(id string) *model.Account {
	return r.accounts[id]
}

// List returns all accounts ordered by priority, then name.
func (r *AccountRegistry) List() []*model.Account {
	out := make([]*model.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Active returns the active accounts, ordered like List.
func (r *AccountRegistry) Active() []*model.Account {
	var out []*model.Account
	for _, a := range r.List() {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

// HasCapacity reports whether the account can absorb bytes more without
// breaching its safety buffer. Unknown and inactive accounts never have
// capacity for new placements.
func (r *AccountRegistry) HasCapacity(id string, bytes int64) bool {
	acc := r.accounts[id]
	if acc == nil || !acc.IsActive {
		return false
	}
	buffer := int64(math.Ceil(float64(acc.TotalSpace) * safetyBufferFraction))
	return bytes <= acc.TotalSpace-acc.UsedSpace-buffer
}

// RecordUsageDelta adjusts an account's usedSpace. A delta that would
// drive the counter negative or past capacity is a caller defect: the
// counter is clamped and an error returned so the bug surfaces in tests.
func (r *AccountRegistry) RecordUsageDelta(id string, delta int64) error {
	acc := r.accounts[id]
	if acc == nil {
		return notFound("account", id)
	}
	next := acc.UsedSpace + delta
	switch {
	case next < 0:
		acc.UsedSpace = 0
		return fmt.Errorf("account %s usage would go negative (%d): %w", id, next, errUsageViolation)
	case next > acc.TotalSpace:
		acc.UsedSpace = acc.TotalSpace
		return fmt.Errorf("account %s usage %d would exceed capacity %d: %w",
			id, next, acc.TotalSpace, errUsageViolation)
	}
	acc.UsedSpace = next
	return nil
}

// AddFile records file ownership on the account's membership set.
func (r *AccountRegistry) AddFile(accountID, fileID string) {
	if acc := r.accounts[accountID]; acc != nil {
		acc.FileIDs[fileID] = struct{}{}
	}
}

// RemoveFile drops file ownership from the account's membership set.
func (r *AccountRegistry) RemoveFile(accountID, fileID string) {
	if acc := r.accounts[accountID]; acc != nil {
		delete(acc.FileIDs, fileID)
	}
}

// AddFolder records folder membership (used for distributed folders).
func (r *AccountRegistry) AddFolder(accountID, folderID string) {
	if acc := r.accounts[accountID]; acc != nil {
		acc.FolderIDs[folderID] = struct{}{}
	}
}

// RemoveFolder drops folder membership.
func (r *AccountRegistry) RemoveFolder(accountID, folderID string) {
	if acc := r.accounts[accountID]; acc != nil {
		delete(acc.FolderIDs, folderID)
	}
}

// Usage returns the per-account usage summaries, ordered like List.
func (r *AccountRegistry) Usage() []model.AccountUsage {
	accounts := r.List()
	out := make([]model.AccountUsage, 0, len(accounts))
	for _, a := range accounts {
		pct := 0.0
		if a.TotalSpace > 0 {
			pct = float64(a.UsedSpace) / float64(a.TotalSpace) * 100
		}
		out = append(out, model.AccountUsage{
			ID:              a.ID,
			Name:            a.Name,
			Provider:        a.Provider,
			TotalSpace:      a.TotalSpace,
			UsedSpace:       a.UsedSpace,
			UsagePercentage: pct,
			FileCount:       len(a.FileIDs),
			FolderCount:     len(a.FolderIDs),
			IsActive:        a.IsActive,
		})
	}
	return out
}

// Stats returns the pool-wide usage summary plus threshold warnings:
// per-account critical at >=90% and warning at >=80%, pool-wide warning
// at >=85% of the total virtual pool.
func (r *AccountRegistry) Stats() *model.PoolStats {
	stats := &model.PoolStats{
		AccountCount: len(r.accounts),
		GeneratedAt:  time.Now(),
	}
	for _, a := range r.List() {
		stats.TotalSpace += a.TotalSpace
		stats.UsedSpace += a.UsedSpace
		if a.IsActive {
			stats.ActiveAccounts++
		}
		if a.TotalSpace == 0 {
			continue
		}
		frac := float64(a.UsedSpace) / float64(a.TotalSpace)
		switch {
		case frac >= accountCriticalFraction:
			stats.Warnings = append(stats.Warnings, model.UsageWarning{
				Level:     model.WarningLevelCritical,
				AccountID: a.ID,
				Message:   fmt.Sprintf("account %s is %.0f%% full", a.Name, frac*100),
			})
		case frac >= accountWarningFraction:
			stats.Warnings = append(stats.Warnings, model.UsageWarning{
				Level:     model.WarningLevelWarning,
				AccountID: a.ID,
				Message:   fmt.Sprintf("account %s is %.0f%% full", a.Name, frac*100),
			})
		}
	}
	if stats.TotalSpace > 0 {
		stats.UsagePercentage = float64(stats.UsedSpace) / float64(stats.TotalSpace) * 100
		if float64(stats.UsedSpace)/float64(stats.TotalSpace) >= poolWarningFraction {
			stats.Warnings = append(stats.Warnings, model.UsageWarning{
				Level:   model.WarningLevelPool,
				Message: fmt.Sprintf("virtual pool is %.0f%% full", stats.UsagePercentage),
			})
		}
	}
	return stats
}
