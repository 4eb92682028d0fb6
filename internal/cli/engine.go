// Package cli provides the engine integration for the drivepool CLI.
// This file contains the core initialization and command implementations.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/drivepool/drivepool/internal/core"
	"github.com/drivepool/drivepool/internal/model"
)

// defaultCapacity is assumed for accounts added without an explicit one.
const defaultCapacity = 15 * 1024 * 1024 * 1024 // 15 GB

// Engine ties the drive façade to its durable store for one CLI run.
type Engine struct {
	Drive     *core.Drive
	Store     *core.SQLStateStore
	ConfigDir string
	UserKey   string
}

// Global engine instance
var engine *Engine

// InitEngine opens the state database, restores the user's drive, and
// returns the assembled engine.
func InitEngine() (*Engine, error) {
	cfgDir := getConfigDir()

	dbPath := filepath.Join(cfgDir, "pool.db")
	passphrase := os.Getenv("DRIVEPOOL_PASSPHRASE") // Optional encryption

	store, err := core.OpenStateStore(dbPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	userKey := os.Getenv("DRIVEPOOL_USER")
	if userKey == "" {
		userKey = "default"
	}

	drive := core.NewDrive(store, userKey, model.Config{
		Strategy:        string(core.StrategySmart),
		DefaultCapacity: defaultCapacity,
	})
	if err := drive.Load(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	return &Engine{Drive: drive, Store: store, ConfigDir: cfgDir, UserKey: userKey}, nil
}

// GetEngine returns the engine, initializing if needed.
func GetEngine() (*Engine, error) {
	if engine != nil {
		return engine, nil
	}

	var err error
	engine, err = InitEngine()
	return engine, err
}

// persist saves the drive state after a mutating command.
func (e *Engine) persist() error {
	if err := e.Drive.Save(context.Background()); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// ConfirmAction prompts the user for confirmation.
func ConfirmAction(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// --- Command Implementations ---

// RunAccountAdd registers a new backing account.
func RunAccountAdd(name, provider, email, capacity string, priority int) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	var total int64
	if capacity != "" {
		total, err = ParseSize(capacity)
		if err != nil {
			return err
		}
	}

	acc, err := e.Drive.AddAccount(model.AccountSpec{
		Name:       name,
		Provider:   provider,
		Email:      email,
		TotalSpace: total,
		Priority:   priority,
	})
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("✓ Added account %s (%s, %s)\n", acc.Name, acc.ID, FormatSize(acc.TotalSpace))
	}
	return nil
}

// RunAccountList prints every account with its usage.
func RunAccountList() error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	usage := e.Drive.GetAccountStats()
	if len(usage) == 0 {
		fmt.Println("No accounts registered.")
		return nil
	}

	fmt.Printf("%-36s  %-16s  %-10s  %-20s  %s\n", "ID", "NAME", "PROVIDER", "USAGE", "ACTIVE")
	for _, u := range usage {
		fmt.Printf("%-36s  %-16s  %-10s  %-20s  %v\n",
			u.ID, u.Name, u.Provider,
			fmt.Sprintf("%s / %s (%.0f%%)", FormatSize(u.UsedSpace), FormatSize(u.TotalSpace), u.UsagePercentage),
			u.IsActive)
	}
	return nil
}

// RunAccountRemove removes an account, relocating its files unless the
// caller opted out.
func RunAccountRemove(id string, transfer bool) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	if !transfer && !ConfirmAction("Remove account WITHOUT relocating its files? This drops them from the index") {
		fmt.Println("Aborted.")
		return nil
	}

	result, err := e.Drive.RemoveAccount(id, transfer)
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("✓ Account removed: %d transferred, %d orphaned, %d dropped\n",
			result.Transferred, result.Orphaned, result.Dropped)
		for _, ie := range result.Errors {
			fmt.Printf("  ✗ %s: %s\n", ie.ID, ie.Err)
		}
	}
	return nil
}

// RunAccountSetActive flips an account's active flag.
func RunAccountSetActive(id, value string) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}
	active, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", value)
	}
	if err := e.Drive.SetAccountActive(id, active); err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}
	if !quiet {
		fmt.Printf("✓ Account %s active=%v\n", id, active)
	}
	return nil
}

// RunMkdir creates a folder.
func RunMkdir(name, parent, color string, distributed bool) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}
	if parent == "" {
		parent = model.RootFolderID
	}

	folder, err := e.Drive.CreateFolder(name, parent, core.CreateFolderOptions{
		Color:       color,
		Distributed: distributed,
	})
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("✓ Created folder %s (%s)\n", folder.Name, folder.ID)
	}
	return nil
}

// RunUpload uploads the named files.
func RunUpload(names []string, folder, size string) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}
	if folder == "" {
		folder = model.RootFolderID
	}

	var bytes int64
	if size != "" {
		bytes, err = ParseSize(size)
		if err != nil {
			return err
		}
	}

	uploads := make([]core.FileUpload, 0, len(names))
	for _, name := range names {
		uploads = append(uploads, core.FileUpload{Name: name, Size: bytes})
	}

	result, err := e.Drive.UploadFiles(context.Background(), uploads, folder)
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	for _, f := range result.Uploaded {
		fmt.Printf("✓ %s → account %s (%s, %s)\n", f.Name, f.AccountID, f.Type, FormatSize(f.Size))
	}
	for _, ie := range result.Errors {
		fmt.Printf("✗ %s: %s\n", ie.ID, ie.Err)
	}
	if !result.Success {
		return fmt.Errorf("%d of %d files failed", len(result.Errors), len(names))
	}
	return nil
}

// RunLs lists folder contents.
func RunLs(folderID string, recursive, trashed bool) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}
	if folderID == "" {
		folderID = model.RootFolderID
	}

	folders, files, err := e.Drive.ListChildren(folderID, recursive, trashed)
	if err != nil {
		return err
	}

	for _, f := range folders {
		marker := ""
		if f.Meta.Trashed {
			marker = " [trashed]"
		}
		fmt.Printf("d %-36s  %-24s  %3d items  %s%s\n",
			f.ID, f.Name, f.Meta.Items, FormatSize(f.Meta.Size), marker)
	}
	for _, f := range files {
		marker := ""
		if f.Meta.Trashed {
			marker = " [trashed]"
		}
		star := " "
		if f.Meta.Starred {
			star = "*"
		}
		fmt.Printf("%s %-36s  %-24s  %-8s  %s%s\n",
			star, f.ID, f.Name, f.Type, FormatSize(f.Size), marker)
	}
	if len(folders) == 0 && len(files) == 0 {
		fmt.Println("(empty)")
	}
	return nil
}

// RunMv moves items into a target folder.
func RunMv(ids []string, target string) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	result, err := e.Drive.MoveItems(ids, target)
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("✓ Moved %d item(s)\n", result.Moved)
	}
	for _, ie := range result.Errors {
		fmt.Printf("✗ %s: %s\n", ie.ID, ie.Err)
	}
	if !result.Success {
		return fmt.Errorf("%d item(s) failed to move", len(result.Errors))
	}
	return nil
}

// RunRm trashes or permanently deletes items.
func RunRm(ids []string, permanent, force bool) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	if permanent && !force {
		if !ConfirmAction(fmt.Sprintf("Permanently delete %d item(s)? This is IRREVERSIBLE", len(ids))) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	result, err := e.Drive.DeleteItems(ids, permanent)
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		verb := "Trashed"
		if permanent {
			verb = "Deleted"
		}
		fmt.Printf("✓ %s %d item(s)\n", verb, result.Deleted)
	}
	for _, ie := range result.Errors {
		fmt.Printf("✗ %s: %s\n", ie.ID, ie.Err)
	}
	return nil
}

// RunRestore restores items from trash.
func RunRestore(ids []string) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	result, err := e.Drive.RestoreItems(ids)
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("✓ Restored %d item(s)\n", result.Deleted)
	}
	for _, ie := range result.Errors {
		fmt.Printf("✗ %s: %s\n", ie.ID, ie.Err)
	}
	return nil
}

// RunStar toggles the starred flag.
func RunStar(id string) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	starred, err := e.Drive.ToggleStar(id)
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		if starred {
			fmt.Printf("✓ Starred %s\n", id)
		} else {
			fmt.Printf("✓ Unstarred %s\n", id)
		}
	}
	return nil
}

// RunSearch searches the index.
func RunSearch(query, kind, ftype string, starred bool, sortBy string, desc bool, limit int) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	hits := e.Drive.Search(core.SearchFilter{
		Query:       query,
		Kind:        kind,
		Type:        model.FileType(ftype),
		StarredOnly: starred,
		SortBy:      core.SortKey(sortBy),
		Descending:  desc,
		Limit:       limit,
	})
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for _, h := range hits {
		kindMark := "f"
		if h.Kind == "folder" {
			kindMark = "d"
		}
		fmt.Printf("%s %-36s  %-24s  %-8s  %s  (%.1f)\n",
			kindMark, h.ID, h.Name, h.Type, FormatSize(h.Size), h.Score)
	}
	return nil
}

// RunDownload resolves files to their retrieval handles.
func RunDownload(ids []string) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	result, err := e.Drive.DownloadFiles(context.Background(), ids)
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	for _, item := range result.Items {
		fmt.Printf("%s  %s  (%s, %s)\n", item.Handle, item.Name, item.AccountName, FormatSize(item.Size))
	}
	fmt.Printf("Total: %d file(s), %s\n", len(result.Items), FormatSize(result.TotalSize))
	return nil
}

// RunOptimize rebalances file placement.
func RunOptimize() error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	result, err := e.Drive.OptimizeStorage()
	if err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	fmt.Printf("✓ Checked %d file(s), relocated %d\n", result.Checked, result.Moved)
	for _, ie := range result.Errors {
		fmt.Printf("✗ %s: %s\n", ie.ID, ie.Err)
	}
	return nil
}

// RunStats prints the pool summary.
func RunStats(jsonOutput bool) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	stats := e.Drive.GetStats()
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Println("Virtual Pool")
	fmt.Printf("  Space:     %s / %s (%.1f%%)\n",
		FormatSize(stats.UsedSpace), FormatSize(stats.TotalSpace), stats.UsagePercentage)
	fmt.Printf("  Accounts:  %d (%d active)\n", stats.AccountCount, stats.ActiveAccounts)
	fmt.Printf("  Items:     %d files, %d folders\n", stats.FileCount, stats.FolderCount)
	fmt.Printf("  Activity:  %d uploads, %d downloads, %d moves, %d deletes\n",
		stats.Counters.Uploads, stats.Counters.Downloads, stats.Counters.Moves, stats.Counters.Deletes)
	for _, w := range stats.Warnings {
		fmt.Printf("  ! [%s] %s\n", w.Level, w.Message)
	}
	return nil
}

// RunStrategy switches the placement strategy.
func RunStrategy(name string) error {
	e, err := GetEngine()
	if err != nil {
		return err
	}

	strategy := core.ParseStrategy(name)
	if string(strategy) != name {
		return fmt.Errorf("unknown strategy %q (valid: smart-balance, space-based, round-robin, type-based)", name)
	}
	e.Drive.SetStrategy(strategy)
	if err := e.persist(); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("✓ Placement strategy set to %s\n", strategy)
	}
	return nil
}

// FormatSize renders a byte count human-readably.
func FormatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// ParseSize parses a human size like "512", "100KB", "1.5GB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	multiplier := int64(1)
	suffixes := []struct {
		name string
		mult int64
	}{
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1},
	}
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf.name) {
			s = strings.TrimSuffix(s, suf.name)
			multiplier = suf.mult
			break
		}
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(value * float64(multiplier)), nil
}
