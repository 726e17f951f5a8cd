package prefs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spmonitor/dashboard/internal/downloads"
)

// Theme is the dashboard colour scheme.
type Theme string

// Supported themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a supported theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Preferences reads and writes typed preferences over a Store.
type Preferences struct {
	store    Store
	defaults Defaults
	check    downloads.ConnectionCheck
}

// New wraps store. Unset preferences fall back to defaults.
func New(store Store, defaults Defaults) *Preferences {
	return &Preferences{store: store, defaults: defaults.withFallbacks(), check: downloads.Connection.Validate}
}

// WithConnectionCheck replaces the rule SetConnection applies.
func (p *Preferences) WithConnectionCheck(check downloads.ConnectionCheck) *Preferences {
	if check != nil {
		p.check = check
	}
	return p
}

// For returns the preferences of one client.
func (p *Preferences) For(scope string) *Preferences {
	return &Preferences{store: Scoped(p.store, scope), defaults: p.defaults, check: p.check}
}

// Defaults returns the fallback values.
func (p *Preferences) Defaults() Defaults {
	return p.defaults
}

// Theme returns the stored theme, or the default when unset or unrecognised.
func (p *Preferences) Theme(ctx context.Context) (Theme, error) {
	raw, ok, err := p.store.Get(ctx, KeyTheme)
	if err != nil {
		return p.defaults.Theme, err
	}
	theme := Theme(raw)
	if !ok || !theme.Valid() {
		return p.defaults.Theme, nil
	}
	return theme, nil
}

// SetTheme stores theme.
func (p *Preferences) SetTheme(ctx context.Context, theme Theme) error {
	if !theme.Valid() {
		return fmt.Errorf("prefs: unsupported theme %q", theme)
	}
	return p.store.Set(ctx, KeyTheme, string(theme))
}

// ToggleTheme flips the stored theme and returns the new value.
func (p *Preferences) ToggleTheme(ctx context.Context) (Theme, error) {
	current, err := p.Theme(ctx)
	if err != nil {
		return current, err
	}
	next := current.Toggle()
	return next, p.SetTheme(ctx, next)
}

// Connection returns the stored connection settings, or the default when unset. A
// stored value that cannot be decoded also yields the default.
func (p *Preferences) Connection(ctx context.Context) (downloads.Connection, error) {
	raw, ok, err := p.store.Get(ctx, KeyConnection)
	if err != nil {
		return p.defaults.Connection, err
	}
	if !ok || raw == "" {
		return p.defaults.Connection, nil
	}
	var conn downloads.Connection
	if err := json.Unmarshal([]byte(raw), &conn); err != nil {
		return p.defaults.Connection, nil
	}
	return conn, nil
}

// SetConnection validates and stores conn.
func (p *Preferences) SetConnection(ctx context.Context, conn downloads.Connection) error {
	conn = conn.Normalize()
	if err := p.check(conn); err != nil {
		return err
	}
	raw, err := json.Marshal(conn)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, KeyConnection, string(raw))
}
