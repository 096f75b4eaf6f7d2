package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/itembank/internal/api"
	"github.com/kalambet/itembank/internal/board"
	"github.com/kalambet/itembank/internal/bot"
	"github.com/kalambet/itembank/internal/config"
	"github.com/kalambet/itembank/internal/discord"
	"github.com/kalambet/itembank/internal/ledger"
	"github.com/kalambet/itembank/internal/reminder"
	"github.com/kalambet/itembank/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bot (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot and item status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask the running bot to redraw the status board",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		resp, err := newAPIClient(cfg).post(cmd.Context(), "/board/refresh", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Board refresh requested")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "itembank.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "itembank version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	catalog, err := cfg.ItemCatalog()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// Refuse to start twice against the same data dir.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("itembank is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("itembank is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files := storage.NewFileStore(cfg.Storage.DataDir, cfg.Storage.LedgerFile, cfg.Storage.MessageIDsFile)
	history, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer func() {
		if err := history.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing history: %v\n", err)
		}
	}()

	loans, err := ledger.NewService(files, catalog, ledger.WithRecorder(history))
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}
	slog.Info("ledger loaded", "path", files.LedgerPath(), "items", len(catalog), "active_loans", len(loans.ActiveLoans()))

	sess, err := discord.Connect(cfg.Discord.Token, discord.DefaultIntents)
	if err != nil {
		return err
	}
	defer sess.Close()

	channel, err := discord.ChannelName(ctx, sess, cfg.Discord.ChannelID)
	if err != nil {
		return err
	}
	slog.Info("posting to channel", "channel", channel)

	members := discord.NewDirectory(sess, cfg.Discord.GuildID)
	statusBoard := board.New(loans, files,
		discord.NewPublisher(sess, cfg.Discord.ChannelID, members),
		board.WithDebounce(cfg.Board.Debounce),
	)
	commands := bot.NewHandler(loans, members, statusBoard, cfg.Discord.MemberRole)
	sess.AddHandler(discord.NewInteractionHandler(sess, commands).OnInteractionCreate)

	if err := statusBoard.Refresh(ctx); err != nil {
		slog.Warn("initial board refresh incomplete", "error", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Items:       loans,
			History:     history,
			Board:       statusBoard,
			Token:       cfg.Server.APIToken,
			CORSOrigins: cfg.CORSOrigins(),
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	if cfg.Server.APIToken == "" {
		slog.Warn("server.api_token not set, management API rejects every request")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		statusBoard.Run(gctx)
		return nil
	})

	if cfg.Reminder.Enabled {
		scheduler := reminder.NewScheduler(loans, discord.NewNotifier(sess, cfg.Discord.ChannelID), members,
			reminder.WithThresholds(reminder.Thresholds{
				First:    cfg.Reminder.FirstAfter,
				Second:   cfg.Reminder.SecondAfter,
				Escalate: cfg.Reminder.EscalateAfter,
			}),
			reminder.WithTick(cfg.Reminder.Tick),
			reminder.WithRecorder(history),
		)
		g.Go(func() error {
			scheduler.Run(gctx)
			return nil
		})
	} else {
		slog.Info("reminders disabled")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "itembank listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("itembank is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop itembank (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to itembank (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running on port %d", cfg.Server.Port)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	itemsResp, err := client.get(ctx, "/items")
	if err != nil {
		return err
	}
	var items []api.ItemStatus
	if err := decodeJSON(itemsResp, &items); err != nil {
		printWarning("could not read items: %v", err)
		return nil
	}
	printItems(items)
	return nil
}

func printItems(items []api.ItemStatus) {
	for _, it := range items {
		holders := make([]string, len(it.Holders))
		for i, h := range it.Holders {
			holders[i] = h.UserID
		}
		fmt.Println(itemLine(it.Emoji, it.Name, it.Available, strings.Join(holders, ", ")))
	}
}
