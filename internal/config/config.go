package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kalambet/itembank/internal/ledger"
)

type Config struct {
	Discord  DiscordConfig
	Catalog  CatalogConfig
	Storage  StorageConfig
	Reminder ReminderConfig
	Board    BoardConfig
	Server   ServerConfig
	Log      LogConfig
}

type DiscordConfig struct {
	GuildID    string
	ChannelID  string
	MemberRole string
	Token      string
}

type CatalogConfig struct {
	Items string // "Name=Emoji;Name2=Emoji2"
}

type StorageConfig struct {
	DataDir        string
	LedgerFile     string
	MessageIDsFile string
}

type ReminderConfig struct {
	Enabled       bool
	Tick          time.Duration
	FirstAfter    time.Duration
	SecondAfter   time.Duration
	EscalateAfter time.Duration
}

type BoardConfig struct {
	Debounce time.Duration
}

type ServerConfig struct {
	Port        int
	APIToken    string
	CORSOrigins string // comma separated
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Discord: DiscordConfig{
			MemberRole: "Member",
		},
		Catalog: CatalogConfig{
			Items: ledger.DefaultCatalog,
		},
		Storage: StorageConfig{
			DataDir:        defaultDataDir(),
			LedgerFile:     "loans.json",
			MessageIDsFile: "message_ids.json",
		},
		Reminder: ReminderConfig{
			Enabled:       true,
			Tick:          10 * time.Minute,
			FirstAfter:    6 * time.Hour,
			SecondAfter:   18 * time.Hour,
			EscalateAfter: 48 * time.Hour,
		},
		Board: BoardConfig{
			Debounce: time.Second,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, a .env file and
// environment variables, in increasing order of precedence.
//
// The config file lives at $XDG_CONFIG_HOME/itembank/config.json. The .env
// file is read from the working directory unless ITEMBANK_ENV_FILE points
// elsewhere; it never overrides variables that are already set.
//
// Secrets are only taken from the environment, falling back to the secrets
// file at $XDG_DATA_HOME/itembank/secrets.json.
func Load() (Config, error) {
	loadDotEnv()
	return loadWith(newPlatformBackend(), secretsFile{})
}

func loadDotEnv() {
	path := os.Getenv("ITEMBANK_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load env file %s: %v\n", path, err)
	}
}

// secretReader abstracts the secrets file for testing.
type secretReader interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Plain DISCORD_TOKEN is accepted as an alias.
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get("itembank", s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// Validate checks the settings the bot needs to run.
func (c Config) Validate() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "discord token (ITEMBANK_DISCORD_TOKEN)")
	}
	if c.Discord.GuildID == "" {
		missing = append(missing, "discord.guild_id")
	}
	if c.Discord.ChannelID == "" {
		missing = append(missing, "discord.channel_id")
	}
	if c.Discord.MemberRole == "" {
		missing = append(missing, "discord.member_role")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if _, err := c.ItemCatalog(); err != nil {
		return err
	}

	r := c.Reminder
	if r.Tick <= 0 || r.FirstAfter <= 0 {
		return fmt.Errorf("reminder.tick and reminder.first_after must be positive")
	}
	if !(r.FirstAfter < r.SecondAfter && r.SecondAfter < r.EscalateAfter) {
		return fmt.Errorf("reminder thresholds must be ascending: first %s, second %s, escalate %s",
			r.FirstAfter, r.SecondAfter, r.EscalateAfter)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// ItemCatalog parses the configured catalog.
func (c Config) ItemCatalog() (ledger.Catalog, error) {
	cat, err := ledger.ParseCatalog(c.Catalog.Items)
	if err != nil {
		return nil, fmt.Errorf("catalog.items: %w", err)
	}
	return cat, nil
}

// CORSOrigins splits server.cors_origins.
func (c Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
