package prefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spmonitor/dashboard/internal/downloads"
)

// Defaults are the preference values used before a client saves its own.
type Defaults struct {
	Theme      Theme                `yaml:"theme"`
	Connection downloads.Connection `yaml:"connection"`
}

// BuiltinDefaults matches a fresh install: light theme and the placeholder connection.
func BuiltinDefaults() Defaults {
	return Defaults{Theme: ThemeLight, Connection: downloads.DefaultConnection()}
}

func (d Defaults) withFallbacks() Defaults {
	builtin := BuiltinDefaults()
	if !d.Theme.Valid() {
		d.Theme = builtin.Theme
	}
	if d.Connection.StorageAccount == "" {
		d.Connection.StorageAccount = builtin.Connection.StorageAccount
	}
	if d.Connection.Container == "" {
		d.Connection.Container = builtin.Connection.Container
	}
	if d.Connection.FileName == "" {
		d.Connection.FileName = builtin.Connection.FileName
	}
	d.Connection = d.Connection.Normalize()
	return d
}

// LoadDefaults reads a YAML defaults file. An empty path returns the builtin defaults.
//
//	theme: dark
//	connection:
//	  storage_account: spexports
//	  container: data
//	  file_name: sharepoint-downloads-latest.json
func LoadDefaults(path string) (Defaults, error) {
	if path == "" {
		return BuiltinDefaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("prefs: read defaults: %w", err)
	}
	return ParseDefaults(raw)
}

// ParseDefaults decodes YAML defaults, rejecting unknown fields.
func ParseDefaults(raw []byte) (Defaults, error) {
	var d Defaults
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return BuiltinDefaults(), nil
		}
		return Defaults{}, fmt.Errorf("prefs: decode defaults: %w", err)
	}
	if d.Theme != "" && !d.Theme.Valid() {
		return Defaults{}, fmt.Errorf("prefs: unsupported theme %q", d.Theme)
	}
	return d.withFallbacks(), nil
}
