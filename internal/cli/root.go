// Package cli implements the drivepool command-line interface.
// Every command is explicit intent: no background work, destructive
// actions require confirmation.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	quiet     bool
	configDir string
)

// rootCmd is the base command for drivepool.
var rootCmd = &cobra.Command{
	Use:   "drivepool",
	Short: "Virtual storage pool over multiple backing accounts",
	Long: `drivepool presents multiple fixed-capacity storage accounts as one
virtual drive.

It provides:
  • Pluggable placement policies (smart-balance, space-based, round-robin, type-based)
  • A folder/file hierarchy with always-consistent aggregate metadata
  • Soft-delete trash with restore
  • Index search with ranking and sort
  • On-demand rebalancing across accounts
  • Durable per-user state (SQLite, optionally SQLCipher encrypted)

Object storage I/O is external; the pool tracks placement and metadata only.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Use alternate config directory")

	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(starCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(strategyCmd)
}

// getConfigDir returns the configuration directory path.
// First checks current directory for .drivepool (repo-local), then falls
// back to user home.
func getConfigDir() string {
	if configDir != "" {
		return configDir
	}

	cwd, err := os.Getwd()
	if err == nil {
		localConfig := filepath.Join(cwd, ".drivepool")
		if _, err := os.Stat(localConfig); err == nil {
			return localConfig
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".drivepool"
	}
	return filepath.Join(home, ".drivepool")
}

// Account subcommands
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Backing account management commands",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new backing account",
	Long: `Register a new backing account in the pool.

Example:
  drivepool account add personal --provider gdrive --capacity 15GB`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		email, _ := cmd.Flags().GetString("email")
		capacity, _ := cmd.Flags().GetString("capacity")
		priority, _ := cmd.Flags().GetInt("priority")
		return RunAccountAdd(args[0], provider, email, capacity, priority)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backing accounts and their usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunAccountList()
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a backing account",
	Long: `Remove a backing account from the pool.

By default every file the account owns is relocated to another active
account first. With --no-transfer the account's files are dropped from
the index (IRREVERSIBLE).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noTransfer, _ := cmd.Flags().GetBool("no-transfer")
		return RunAccountRemove(args[0], !noTransfer)
	},
}

var accountActiveCmd = &cobra.Command{
	Use:   "set-active <id> <true|false>",
	Short: "Enable or disable an account for new placements",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunAccountSetActive(args[0], args[1])
	},
}

func init() {
	accountAddCmd.Flags().StringP("provider", "p", "generic", "Provider tag")
	accountAddCmd.Flags().String("email", "", "Contact email (display only)")
	accountAddCmd.Flags().StringP("capacity", "c", "", "Capacity, e.g. 15GB (default from config)")
	accountAddCmd.Flags().Int("priority", 0, "Ordering hint for placement")
	accountRemoveCmd.Flags().Bool("no-transfer", false, "Skip file relocation (data loss)")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountRemoveCmd)
	accountCmd.AddCommand(accountActiveCmd)
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		color, _ := cmd.Flags().GetString("color")
		distributed, _ := cmd.Flags().GetBool("distributed")
		return RunMkdir(args[0], parent, color, distributed)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <name>...",
	Short: "Upload files into the pool",
	Long: `Upload one or more files into the pool.

Each file is placed on an account chosen by the active strategy. Size is
estimated from the file type unless --size is given. Placement failures
are reported per file; the batch continues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		size, _ := cmd.Flags().GetString("size")
		return RunUpload(args, folder, size)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [folder-id]",
	Short: "List folder contents (root by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID := ""
		if len(args) > 0 {
			folderID = args[0]
		}
		recursive, _ := cmd.Flags().GetBool("recursive")
		trashed, _ := cmd.Flags().GetBool("trashed")
		return RunLs(folderID, recursive, trashed)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <id>... <target-folder-id>",
	Short: "Move items into another folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunMv(args[:len(args)-1], args[len(args)-1])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Move items to trash (or delete permanently)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		permanent, _ := cmd.Flags().GetBool("permanent")
		force, _ := cmd.Flags().GetBool("force")
		return RunRm(args, permanent, force)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>...",
	Short: "Restore items from trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunRestore(args)
	},
}

var starCmd = &cobra.Command{
	Use:   "star <id>",
	Short: "Toggle the starred flag on a file or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunStar(args[0])
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the index",
	Long: `Search the file/folder index.

This is an INDEX-ONLY search: names and tags are matched
case-insensitively, no account or object-storage access occurs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		kind, _ := cmd.Flags().GetString("kind")
		ftype, _ := cmd.Flags().GetString("type")
		starred, _ := cmd.Flags().GetBool("starred")
		sortBy, _ := cmd.Flags().GetString("sort")
		desc, _ := cmd.Flags().GetBool("desc")
		limit, _ := cmd.Flags().GetInt("limit")
		return RunSearch(query, kind, ftype, starred, sortBy, desc, limit)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <id>...",
	Short: "Resolve files to their retrieval handles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunDownload(args)
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Rebalance file placement across accounts",
	Long: `Re-run placement over every file and relocate the ones whose ideal
account differs from the current one. Folder structure is untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunOptimize()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pool and per-account usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return RunStats(jsonOutput)
	},
}

var strategyCmd = &cobra.Command{
	Use:   "strategy <name>",
	Short: "Switch the placement strategy",
	Long: `Switch the placement strategy for subsequent uploads.

Valid names: smart-balance, space-based, round-robin, type-based.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunStrategy(args[0])
	},
}

func init() {
	mkdirCmd.Flags().String("parent", "", "Parent folder id (root by default)")
	mkdirCmd.Flags().String("color", "", "Display color")
	mkdirCmd.Flags().Bool("distributed", false, "Flag the folder as distributed across active accounts")

	uploadCmd.Flags().StringP("folder", "f", "", "Target folder id (root by default)")
	uploadCmd.Flags().String("size", "", "Size per file, e.g. 2MB (estimated from type if omitted)")

	lsCmd.Flags().BoolP("recursive", "r", false, "Include all transitive children")
	lsCmd.Flags().Bool("trashed", false, "Include trashed items")

	rmCmd.Flags().Bool("permanent", false, "Delete permanently instead of trashing")
	rmCmd.Flags().Bool("force", false, "Skip confirmation prompt for permanent delete")

	searchCmd.Flags().String("kind", "", "Filter by kind (file, folder)")
	searchCmd.Flags().StringP("type", "t", "", "Filter by file type (image, video, ...)")
	searchCmd.Flags().Bool("starred", false, "Only starred items")
	searchCmd.Flags().String("sort", "name", "Sort key (name, size, date, type)")
	searchCmd.Flags().Bool("desc", false, "Sort descending")
	searchCmd.Flags().Int("limit", 0, "Limit result count (0 = no limit)")

	statsCmd.Flags().Bool("json", false, "Output as JSON")
}
