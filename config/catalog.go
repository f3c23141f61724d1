package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// Mode describes one matchmaking queue.
type Mode struct {
	Name       string `yaml:"name" json:"name"`
	MaxPlayers int    `yaml:"max_players" json:"maxPlayers"`
	Teams      int    `yaml:"teams" json:"teams"`
}

// CharacterSpec is a purchasable (or starter) playable character.
type CharacterSpec struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Price   int64  `yaml:"price" json:"price"`
	Rarity  string `yaml:"rarity" json:"rarity"`
	Starter bool   `yaml:"starter" json:"starter"`
}

type Catalog struct {
	StarterCoins int64           `yaml:"starter_coins"`
	Modes        []Mode          `yaml:"modes"`
	Characters   []CharacterSpec `yaml:"characters"`
}

func DefaultCatalog() Catalog {
	c := Catalog{
		StarterCoins: 1000,
		Modes: []Mode{
			{Name: "solo", MaxPlayers: 1, Teams: 1},
			{Name: "duo", MaxPlayers: 2, Teams: 1},
			{Name: "trio", MaxPlayers: 3, Teams: 1},
			{Name: "duel", MaxPlayers: 2, Teams: 2},
		},
		Characters: []CharacterSpec{
			{Name: "Wanderer", Price: 0, Rarity: "common", Starter: true},
			{Name: "Ember Mage", Price: 500, Rarity: "rare"},
			{Name: "Frost Ranger", Price: 750, Rarity: "rare"},
			{Name: "Shadow Knight", Price: 1500, Rarity: "epic"},
			{Name: "Sun Warden", Price: 3000, Rarity: "legendary"},
		},
	}
	c.normalize()
	return c
}

// LoadCatalog reads a YAML catalog. Character ids default to a slug of the name.
func LoadCatalog(path string) (Catalog, error) {
	var c Catalog
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("catalog.yaml: %w", err)
	}
	c.normalize()
	if err := c.validate(); err != nil {
		return c, fmt.Errorf("catalog.yaml: %w", err)
	}
	return c, nil
}

func (c *Catalog) normalize() {
	for i := range c.Modes {
		c.Modes[i].Name = strings.ToLower(strings.TrimSpace(c.Modes[i].Name))
		if c.Modes[i].Teams <= 0 {
			c.Modes[i].Teams = 1
		}
	}
	for i := range c.Characters {
		if c.Characters[i].ID == "" {
			c.Characters[i].ID = slug.Make(c.Characters[i].Name)
		}
		if c.Characters[i].Rarity == "" {
			c.Characters[i].Rarity = "common"
		}
	}
}

func (c Catalog) validate() error {
	if len(c.Modes) == 0 {
		return fmt.Errorf("at least one mode is required")
	}
	seen := make(map[string]bool)
	for _, m := range c.Modes {
		if m.Name == "" || m.MaxPlayers <= 0 {
			return fmt.Errorf("mode %q needs a name and max_players > 0", m.Name)
		}
		if seen["mode:"+m.Name] {
			return fmt.Errorf("duplicate mode %q", m.Name)
		}
		seen["mode:"+m.Name] = true
	}
	for _, ch := range c.Characters {
		if ch.ID == "" || ch.Price < 0 {
			return fmt.Errorf("character %q needs an id and a non-negative price", ch.Name)
		}
		if seen["char:"+ch.ID] {
			return fmt.Errorf("duplicate character %q", ch.ID)
		}
		seen["char:"+ch.ID] = true
	}
	if c.StarterCoins < 0 {
		return fmt.Errorf("starter_coins must not be negative")
	}
	return nil
}

func (c Catalog) Mode(name string) (Mode, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range c.Modes {
		if m.Name == name {
			return m, true
		}
	}
	return Mode{}, false
}

func (c Catalog) Character(id string) (CharacterSpec, bool) {
	for _, ch := range c.Characters {
		if ch.ID == id {
			return ch, true
		}
	}
	return CharacterSpec{}, false
}

// StarterCharacters are owned by every new profile.
func (c Catalog) StarterCharacters() []CharacterSpec {
	var out []CharacterSpec
	for _, ch := range c.Characters {
		if ch.Starter {
			out = append(out, ch)
		}
	}
	return out
}
