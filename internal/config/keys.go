package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "discord.guild_id", typ: kString, env: "ITEMBANK_DISCORD_GUILD_ID",
		apply:   func(cfg *Config, v any) { cfg.Discord.GuildID = v.(string) },
		extract: func(cfg Config) any { return cfg.Discord.GuildID },
	},
	{
		key: "discord.channel_id", typ: kString, env: "ITEMBANK_DISCORD_CHANNEL_ID",
		apply:   func(cfg *Config, v any) { cfg.Discord.ChannelID = v.(string) },
		extract: func(cfg Config) any { return cfg.Discord.ChannelID },
	},
	{
		key: "discord.member_role", typ: kString, env: "ITEMBANK_DISCORD_MEMBER_ROLE",
		apply:   func(cfg *Config, v any) { cfg.Discord.MemberRole = v.(string) },
		extract: func(cfg Config) any { return cfg.Discord.MemberRole },
	},
	{
		key: "discord.token", typ: kString, env: "ITEMBANK_DISCORD_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Discord.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Discord.Token },
	},
	{
		key: "catalog.items", typ: kString, env: "ITEMBANK_CATALOG_ITEMS",
		apply:   func(cfg *Config, v any) { cfg.Catalog.Items = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.Items },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ITEMBANK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.ledger_file", typ: kString, env: "ITEMBANK_STORAGE_LEDGER_FILE",
		apply:   func(cfg *Config, v any) { cfg.Storage.LedgerFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.LedgerFile },
	},
	{
		key: "storage.message_ids_file", typ: kString, env: "ITEMBANK_STORAGE_MESSAGE_IDS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Storage.MessageIDsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MessageIDsFile },
	},
	{
		key: "reminder.enabled", typ: kBool, env: "ITEMBANK_REMINDER_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Reminder.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Reminder.Enabled },
	},
	{
		key: "reminder.tick", typ: kDuration, env: "ITEMBANK_REMINDER_TICK",
		apply:   func(cfg *Config, v any) { cfg.Reminder.Tick = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Reminder.Tick },
	},
	{
		key: "reminder.first_after", typ: kDuration, env: "ITEMBANK_REMINDER_FIRST_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Reminder.FirstAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Reminder.FirstAfter },
	},
	{
		key: "reminder.second_after", typ: kDuration, env: "ITEMBANK_REMINDER_SECOND_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Reminder.SecondAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Reminder.SecondAfter },
	},
	{
		key: "reminder.escalate_after", typ: kDuration, env: "ITEMBANK_REMINDER_ESCALATE_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Reminder.EscalateAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Reminder.EscalateAfter },
	},
	{
		key: "board.debounce", typ: kDuration, env: "ITEMBANK_BOARD_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Board.Debounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Board.Debounce },
	},
	{
		key: "server.port", typ: kInt, env: "ITEMBANK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "ITEMBANK_SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "server.cors_origins", typ: kString, env: "ITEMBANK_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "log.level", typ: kString, env: "ITEMBANK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
