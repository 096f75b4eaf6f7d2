package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/itembank/internal/api"
	"github.com/kalambet/itembank/internal/config"
	"github.com/kalambet/itembank/internal/ledger"
	"github.com/kalambet/itembank/internal/storage"
)

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent borrows, returns and reminders",
	Long: `Show loan history, newest first.

Examples:
  itembank history
  itembank history --item "Baium ring" --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		item, _ := cmd.Flags().GetString("item")
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer store.Close()

		var events []storage.Event
		if item != "" {
			events, err = store.ItemEvents(item, limit)
		} else {
			events, err = store.RecentEvents(limit, 0)
		}
		if err != nil {
			return err
		}

		if len(events) == 0 {
			printWarning("No history yet")
			return nil
		}
		for _, e := range events {
			fmt.Println(formatEvent(e))
		}
		return nil
	},
}

func formatEvent(e storage.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s  <@%s>", humanize.Time(e.OccurredAt), eventLabel(e.Kind), e.Item, e.UserID)
	if e.Kind == string(ledger.EventReminder) {
		fmt.Fprintf(&b, "  stage %d", e.Stage)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "  (%s)", e.Detail)
	}
	return b.String()
}

func init() {
	historyCmd.Flags().String("item", "", "only show events for this item")
	historyCmd.Flags().Int("limit", 20, "maximum number of events")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve loan status and history over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		catalog, err := cfg.ItemCatalog()
		if err != nil {
			return err
		}
		history, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer history.Close()

		s := api.NewMCPServer(api.MCPDeps{
			Items:   fileStatuses{files: storage.NewFileStore(cfg.Storage.DataDir, cfg.Storage.LedgerFile, cfg.Storage.MessageIDsFile), catalog: catalog},
			History: history,
			Version: version,
		})
		err = server.NewStdioServer(s).Listen(cmd.Context(), os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, cmd.Context().Err()) {
			return err
		}
		return nil
	},
}

// fileStatuses reads the ledger file on every call and never writes it, so it
// can run next to the bot process.
type fileStatuses struct {
	files   *storage.FileStore
	catalog ledger.Catalog
}

func (f fileStatuses) Statuses() []ledger.ItemStatus {
	l, _ := f.files.LoadLedger(f.catalog)
	return l.Statuses(f.catalog)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a secret in the secrets file",
	Long:  "Store a secret in the secrets file. Valid keys: " + strings.Join(config.SecretKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
