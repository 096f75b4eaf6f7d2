package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Directory looks up guild members and roles.
type Directory struct {
	session Session
	guildID string

	// rolesTTL is the minimum time between role refetches for a name that is
	// not in the cache.
	rolesTTL time.Duration

	mu        sync.Mutex
	roleIDs   map[string]string // role name -> id
	fetchedAt time.Time
}

// NewDirectory creates a Directory for one guild.
func NewDirectory(s Session, guildID string) *Directory {
	return &Directory{session: s, guildID: guildID, rolesTTL: 30 * time.Second}
}

// HasRole reports whether userID holds the role called role. Users who are
// not guild members and roles that do not exist both yield false.
func (d *Directory) HasRole(ctx context.Context, userID, role string) (bool, error) {
	roleID, err := d.roleID(ctx, role)
	if err != nil {
		return false, err
	}
	if roleID == "" {
		return false, nil
	}

	m, err := d.session.GuildMember(d.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("fetching member %s: %w", userID, err)
	}
	return slices.Contains(m.Roles, roleID), nil
}

func (d *Directory) roleID(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	id, ok := d.roleIDs[name]
	fresh := d.roleIDs != nil && time.Since(d.fetchedAt) < d.rolesTTL
	d.mu.Unlock()
	if ok || fresh {
		return id, nil
	}

	roles, err := d.session.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching guild roles: %w", err)
	}
	ids := make(map[string]string, len(roles))
	for _, r := range roles {
		ids[r.Name] = r.ID
	}

	d.mu.Lock()
	d.roleIDs = ids
	d.fetchedAt = time.Now()
	d.mu.Unlock()
	return ids[name], nil
}

// DisplayName returns the member's nickname, global name or username, in
// that order, or Unknown(<id>) when the member cannot be resolved.
func (d *Directory) DisplayName(ctx context.Context, userID string) string {
	m, err := d.session.GuildMember(d.guildID, userID, discordgo.WithContext(ctx))
	if err != nil || m == nil {
		return unknownName(userID)
	}
	switch {
	case m.Nick != "":
		return m.Nick
	case m.User != nil && m.User.GlobalName != "":
		return m.User.GlobalName
	case m.User != nil && m.User.Username != "":
		return m.User.Username
	}
	return unknownName(userID)
}

func unknownName(userID string) string {
	return "Unknown(" + userID + ")"
}

func isNotFound(err error) bool {
	var rerr *discordgo.RESTError
	return errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound
}
