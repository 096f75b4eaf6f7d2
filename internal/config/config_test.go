package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secrets file.
type mockSecrets struct {
	values map[string]string
}

func (m mockSecrets) Get(_, account string) (string, error) {
	if v, ok := m.values[account]; ok {
		return v, nil
	}
	return "", os.ErrNotExist
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
	t.Setenv("DISCORD_TOKEN", "")
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

// TestDefaults verifies all default values are applied when the config file is missing.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	b := newFileBackend(filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Reminder.Tick != 10*time.Minute {
		t.Errorf("Reminder.Tick = %v, want 10m", cfg.Reminder.Tick)
	}
	if cfg.Reminder.FirstAfter != 6*time.Hour || cfg.Reminder.SecondAfter != 18*time.Hour || cfg.Reminder.EscalateAfter != 48*time.Hour {
		t.Errorf("thresholds = %v/%v/%v", cfg.Reminder.FirstAfter, cfg.Reminder.SecondAfter, cfg.Reminder.EscalateAfter)
	}
	if !cfg.Reminder.Enabled {
		t.Error("Reminder.Enabled = false, want true")
	}
	if cfg.Board.Debounce != time.Second {
		t.Errorf("Board.Debounce = %v, want 1s", cfg.Board.Debounce)
	}
	if cfg.Storage.LedgerFile != "loans.json" || cfg.Storage.MessageIDsFile != "message_ids.json" {
		t.Errorf("storage files = %q, %q", cfg.Storage.LedgerFile, cfg.Storage.MessageIDsFile)
	}
	cat, err := cfg.ItemCatalog()
	if err != nil || len(cat) != 4 {
		t.Errorf("default catalog = %v, %v", cat, err)
	}
}

// TestFileValues verifies that every key type is read from the JSON file.
func TestFileValues(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "discord.guild_id": "111",
  "discord.channel_id": "222",
  "server.port": 5000,
  "reminder.first_after": "2h",
  "reminder.enabled": "false",
  "catalog.items": "Zaken earring=💎"
}`)

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.GuildID != "111" || cfg.Discord.ChannelID != "222" {
		t.Errorf("discord ids = %q, %q", cfg.Discord.GuildID, cfg.Discord.ChannelID)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Reminder.FirstAfter != 2*time.Hour {
		t.Errorf("Reminder.FirstAfter = %v, want 2h", cfg.Reminder.FirstAfter)
	}
	if cfg.Reminder.Enabled {
		t.Error("Reminder.Enabled = true, want false")
	}
	if cfg.Catalog.Items != "Zaken earring=💎" {
		t.Errorf("Catalog.Items = %q", cfg.Catalog.Items)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "board.debounce": "3s"}`)

	t.Setenv("ITEMBANK_SERVER_PORT", "6000")
	t.Setenv("ITEMBANK_BOARD_DEBOUNCE", "250ms")
	t.Setenv("ITEMBANK_DISCORD_TOKEN", "env-token")
	t.Setenv("ITEMBANK_REMINDER_TICK", "soon")

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Board.Debounce != 250*time.Millisecond {
		t.Errorf("Board.Debounce = %v, want 250ms", cfg.Board.Debounce)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("Discord.Token = %q, want env-token", cfg.Discord.Token)
	}
	if cfg.Reminder.Tick != 10*time.Minute {
		t.Errorf("unparsable tick should keep default, got %v", cfg.Reminder.Tick)
	}
}

// TestSecretsNeverReadFromFile verifies secrets in config.json are ignored.
func TestSecretsNeverReadFromFile(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"discord.token": "file-token"}`)

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "" {
		t.Errorf("Discord.Token = %q, want empty", cfg.Discord.Token)
	}
}

// TestSecretsFallback verifies the secrets file is consulted when the environment is empty.
func TestSecretsFallback(t *testing.T) {
	clearEnv(t)
	b := newFileBackend(filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := loadWith(b, mockSecrets{values: map[string]string{"discord.token": "stored", "server.api_token": "api"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "stored" || cfg.Server.APIToken != "api" {
		t.Errorf("secrets = %q, %q", cfg.Discord.Token, cfg.Server.APIToken)
	}
}

func TestDiscordTokenAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "legacy")
	b := newFileBackend(filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := loadWith(b, mockSecrets{values: map[string]string{"discord.token": "stored"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "legacy" {
		t.Errorf("Discord.Token = %q, want legacy", cfg.Discord.Token)
	}
}

func TestValidate(t *testing.T) {
	valid := defaults()
	valid.Discord.Token = "t"
	valid.Discord.GuildID = "g"
	valid.Discord.ChannelID = "c"
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missing := defaults()
	err := missing.Validate()
	if err == nil || !strings.Contains(err.Error(), "missing required config") {
		t.Fatalf("error = %v, want missing required config", err)
	}
	if !strings.Contains(err.Error(), "discord.guild_id") {
		t.Errorf("error %q does not name discord.guild_id", err)
	}

	unordered := valid
	unordered.Reminder.SecondAfter = time.Hour
	if err := unordered.Validate(); err == nil {
		t.Error("descending thresholds accepted")
	}

	badCatalog := valid
	badCatalog.Catalog.Items = "Ring;Ring"
	if err := badCatalog.Validate(); err == nil {
		t.Error("duplicate catalog item accepted")
	}
}

func TestSetKey(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.json"))

	if err := setKey(b, "reminder.tick", "5m"); err != nil {
		t.Fatalf("setKey duration: %v", err)
	}
	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKey int: %v", err)
	}
	if err := setKey(b, "reminder.tick", "often"); err == nil {
		t.Error("invalid duration accepted")
	}
	if err := setKey(b, "reminder.enabled", "maybe"); err == nil {
		t.Error("invalid bool accepted")
	}
	if err := setKey(b, "catalog.items", ";"); err == nil {
		t.Error("empty catalog accepted")
	}
	if err := setKey(b, "discord.token", "x"); err == nil {
		t.Error("secret accepted by setKey")
	}
	if err := setKey(b, "no.such.key", "x"); err == nil {
		t.Error("unknown key accepted")
	}

	// Reload from disk to check what was persisted.
	clearEnv(t)
	cfg, err := loadWith(newFileBackend(b.path), mockSecrets{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Reminder.Tick != 5*time.Minute || cfg.Server.Port != 4200 {
		t.Errorf("persisted tick %v, port %d", cfg.Reminder.Tick, cfg.Server.Port)
	}
}

func TestSetSecret(t *testing.T) {
	f := secretsFile{path: filepath.Join(t.TempDir(), "secrets.json")}

	if err := setSecret(f, "discord.token", "abc"); err != nil {
		t.Fatalf("setSecret: %v", err)
	}
	if err := setSecret(f, "server.port", "1"); err == nil {
		t.Error("non-secret accepted by setSecret")
	}
	got, err := f.Get("itembank", "discord.token")
	if err != nil || got != "abc" {
		t.Errorf("Get = %q, %v", got, err)
	}
	info, err := os.Stat(f.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Discord.Token = "hidden"
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "discord.token" || ki.Key == "server.api_token" || ki.Value == "hidden" {
			t.Errorf("secret exposed: %+v", ki)
		}
	}
	if len(ShowAll(cfg))+len(SecretKeys()) != len(specs) {
		t.Error("ShowAll and SecretKeys do not cover every key")
	}
}

func TestCORSOriginsAndLevel(t *testing.T) {
	cfg := defaults()
	cfg.Server.CORSOrigins = " https://a.example , ,https://b.example"
	got := cfg.CORSOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", got)
	}
	cfg.Log.Level = "DEBUG"
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
}
