package seed

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yml
var presetFS embed.FS

// Preset describes a seeded dataset. Named presets ship embedded; a path
// ending in .yml or .yaml loads a preset from disk.
type Preset struct {
	Name                 string         `yaml:"name"`
	Categories           []CategorySpec `yaml:"categories"`
	Admins               []UserSpec     `yaml:"admins"`
	Models               []ModelSpec    `yaml:"models"`
	Users                int            `yaml:"users"`
	Posts                int            `yaml:"posts"`
	CommentsPerPost      int            `yaml:"comments_per_post"`
	VotesPerPost         int            `yaml:"votes_per_post"`
	GeneralShare         float64        `yaml:"general_share"`
	StartingBalanceCents int64          `yaml:"starting_balance_cents"`
}

type CategorySpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	SortOrder   int    `yaml:"sort_order"`
}

type UserSpec struct {
	Email       string `yaml:"email"`
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"password"`
}

// ModelSpec is a creator model. Owner is an admin email; empty assigns the
// model to a generated user.
type ModelSpec struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Bio         string `yaml:"bio"`
	Owner       string `yaml:"owner"`
}

// PresetNames lists the embedded presets.
func PresetNames() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadPreset resolves an embedded preset by name or reads a YAML file.
func LoadPreset(nameOrPath string) (*Preset, error) {
	var (
		raw []byte
		err error
	)
	ext := strings.ToLower(filepath.Ext(nameOrPath))
	if ext == ".yml" || ext == ".yaml" {
		// #nosec G304: path comes from CLI flags or config
		raw, err = os.ReadFile(nameOrPath)
	} else {
		raw, err = presetFS.ReadFile("presets/" + nameOrPath + ".yml")
	}
	if err != nil {
		return nil, fmt.Errorf("load preset %q: %w", nameOrPath, err)
	}
	return ParsePreset(raw)
}

// ParsePreset decodes and validates a YAML preset.
func ParsePreset(raw []byte) (*Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Preset) validate() error {
	if p.Users < 0 || p.Posts < 0 || p.CommentsPerPost < 0 || p.VotesPerPost < 0 {
		return fmt.Errorf("preset %q: counts must not be negative", p.Name)
	}
	if p.GeneralShare < 0 || p.GeneralShare > 1 {
		return fmt.Errorf("preset %q: general_share must be between 0 and 1", p.Name)
	}
	if p.Posts > 0 && len(p.Categories) == 0 {
		return fmt.Errorf("preset %q: posts need at least one category", p.Name)
	}
	admins := make(map[string]struct{}, len(p.Admins))
	for _, a := range p.Admins {
		if a.Email == "" {
			return fmt.Errorf("preset %q: admin without email", p.Name)
		}
		admins[strings.ToLower(a.Email)] = struct{}{}
	}
	for _, m := range p.Models {
		if m.Name == "" {
			return fmt.Errorf("preset %q: model without name", p.Name)
		}
		if m.Owner != "" {
			if _, ok := admins[strings.ToLower(m.Owner)]; !ok {
				return fmt.Errorf("preset %q: model %s owner %s is not a preset admin", p.Name, m.Name, m.Owner)
			}
		}
	}
	if len(p.Models) > 0 && p.Users == 0 && len(p.Admins) == 0 {
		return fmt.Errorf("preset %q: models need at least one user to own them", p.Name)
	}
	return nil
}
