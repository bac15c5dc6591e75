package policy

import (
	"fmt"
	"sort"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Preset is a named, ready-made set of apps to block.
type Preset interface {
	// ID returns unique identifier (e.g., "social", "games").
	ID() string

	// Name returns human-readable name for display.
	Name() string

	// AppIDs returns the identifiers the preset blocks.
	AppIDs() []domain.AppID
}

type staticPreset struct {
	id   string
	name string
	apps []domain.AppID
}

func (p *staticPreset) ID() string             { return p.id }
func (p *staticPreset) Name() string           { return p.name }
func (p *staticPreset) AppIDs() []domain.AppID { return append([]domain.AppID(nil), p.apps...) }

// NewSocialPreset blocks the major social-media apps.
func NewSocialPreset() Preset {
	return &staticPreset{
		id:   "social",
		name: "Social media",
		apps: []domain.AppID{
			"com.instagram.android",
			"com.facebook.katana",
			"com.zhiliaoapp.musically",
			"com.ss.android.ugc.trill",
			"com.twitter.android",
			"com.snapchat.android",
			"com.reddit.frontpage",
			"com.instagram.barcelona",
			"discord",
			"Discord",
			"telegram-desktop",
			"TelegramDesktop",
		},
	}
}

// NewGamesPreset blocks game launchers.
func NewGamesPreset() Preset {
	return &staticPreset{
		id:   "games",
		name: "Games",
		apps: []domain.AppID{"steam", "Steam", "steamwebhelper", "dota2"},
	}
}

// Registry holds all presets.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry creates a registry with all default presets.
func NewRegistry() *Registry {
	return NewRegistryWithPresets(NewSocialPreset(), NewGamesPreset())
}

// NewRegistryWithPresets creates a registry with custom presets (for testing).
func NewRegistryWithPresets(presets ...Preset) *Registry {
	r := &Registry{presets: make(map[string]Preset)}
	for _, p := range presets {
		r.Register(p)
	}
	return r
}

// Register adds a preset to the registry.
func (r *Registry) Register(p Preset) {
	r.presets[p.ID()] = p
}

// Get returns a preset by ID.
func (r *Registry) Get(id string) (Preset, error) {
	p, ok := r.presets[id]
	if !ok {
		return nil, fmt.Errorf("preset not found: %s", id)
	}
	return p, nil
}

// List returns all preset IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.presets))
	for id := range r.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
