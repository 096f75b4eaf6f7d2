package ledger

import (
	"fmt"
	"strings"
)

// DefaultCatalog is the catalog used when none is configured.
const DefaultCatalog = "Baium ring=💍;Frintezza necklace=📿;Freya necklace=❄️;Ant queen ring=👑"

// maxItemNameLen keeps item names short enough to fit into a button custom id.
const maxItemNameLen = 80

// Item is a static catalog entry.
type Item struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// Label returns the emoji-prefixed item name used in rendered output.
func (i Item) Label() string {
	if i.Emoji == "" {
		return i.Name
	}
	return i.Emoji + " " + i.Name
}

// Catalog is the ordered list of borrowable items.
type Catalog []Item

// ParseCatalog parses "Name=Emoji;Name2=Emoji2". The emoji part is optional.
func ParseCatalog(s string) (Catalog, error) {
	var c Catalog
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, emoji, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		emoji = strings.TrimSpace(emoji)
		if name == "" {
			return nil, fmt.Errorf("catalog entry %q has an empty name", part)
		}
		if len(name) > maxItemNameLen {
			return nil, fmt.Errorf("catalog item %q is longer than %d bytes", name, maxItemNameLen)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate catalog item %q", name)
		}
		seen[name] = true
		c = append(c, Item{Name: name, Emoji: emoji})
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	return c, nil
}

// Lookup returns the item with the given name.
func (c Catalog) Lookup(name string) (Item, bool) {
	for _, it := range c {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Names returns item names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, it := range c {
		names[i] = it.Name
	}
	return names
}

// String formats the catalog in the form accepted by ParseCatalog.
func (c Catalog) String() string {
	parts := make([]string, len(c))
	for i, it := range c {
		if it.Emoji == "" {
			parts[i] = it.Name
			continue
		}
		parts[i] = it.Name + "=" + it.Emoji
	}
	return strings.Join(parts, ";")
}
