package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	AppDirName        = ".whisper-stream"
	userConfigName    = "config"
	projectConfigName = ".whisper-stream"
)

var configExtensions = []string{".json", ".toml", ".yaml", ".yml"}

type Layer string

const (
	LayerUser    Layer = "user"
	LayerProject Layer = "project"
)

type Source string

const (
	SourceDefault Source = "default"
	SourceUser    Source = "user"
	SourceProject Source = "project"
	SourceEnv     Source = "env"
)

// Entry is a resolved setting as shown by the config commands.
type Entry struct {
	Key    string
	Value  string
	Source Source
}

// Store layers defaults, the user file, the project file and the environment,
// in increasing order of precedence.
type Store struct {
	userPath    string
	projectPath string

	user    map[string]any
	project map[string]any
}

// DefaultUserDir returns ~/.whisper-stream.
func DefaultUserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, AppDirName), nil
}

// NewStore locates the config files in userDir and projectDir. When no file
// exists yet, the JSON variant is used for writes.
func NewStore(userDir, projectDir string) *Store {
	return &Store{
		userPath:    findConfigFile(userDir, userConfigName),
		projectPath: findConfigFile(projectDir, projectConfigName),
		user:        map[string]any{},
		project:     map[string]any{},
	}
}

func findConfigFile(dir, name string) string {
	for _, ext := range configExtensions {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, name+".json")
}

func (s *Store) Path(layer Layer) string {
	if layer == LayerProject {
		return s.projectPath
	}
	return s.userPath
}

func (s *Store) layer(layer Layer) map[string]any {
	if layer == LayerProject {
		return s.project
	}
	return s.user
}

// Load reads both config files. Missing files are not an error.
func (s *Store) Load() error {
	var err error
	if s.user, err = readConfigFile(s.userPath); err != nil {
		return fmt.Errorf("failed to load user config: %w", err)
	}
	if s.project, err = readConfigFile(s.projectPath); err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}
	return nil
}

func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	raw := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return raw, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	// Aliases are accepted in files too, unknown keys are ignored.
	m := make(map[string]any, len(raw))
	for name, v := range raw {
		k, err := LookupKey(name)
		if err != nil {
			slog.Warn("ignoring unknown config key", slog.String("key", name), slog.String("path", path))
			continue
		}
		if str, ok := v.(string); ok && k.Kind != KindString {
			if v, err = k.Parse(str); err != nil {
				slog.Warn("ignoring invalid config value", slog.String("key", name), slog.String("err", err.Error()))
				continue
			}
		}
		m[k.Name] = v
	}

	return m, nil
}

func writeConfigFile(path string, m map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	default:
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Apply overlays the file layers and the environment on top of cfg.
func (s *Store) Apply(cfg *StreamConfig) {
	cfg.FromMap(s.user)
	cfg.FromMap(s.project)
	for _, err := range cfg.FromEnv() {
		slog.Warn("ignoring invalid environment variable", slog.String("err", err.Error()))
	}
}

// Resolve returns the defaults with every layer applied.
func (s *Store) Resolve() StreamConfig {
	cfg := Default()
	s.Apply(&cfg)
	return cfg
}

func (s *Store) Set(layer Layer, name, raw string) error {
	k, err := LookupKey(name)
	if err != nil {
		return err
	}

	v, err := k.Parse(raw)
	if err != nil {
		return err
	}

	m := s.layer(layer)
	m[k.Name] = v

	if err := writeConfigFile(s.Path(layer), m); err != nil {
		return fmt.Errorf("failed to save %s config: %w", layer, err)
	}

	return nil
}

func (s *Store) Unset(layer Layer, name string) error {
	k, err := LookupKey(name)
	if err != nil {
		return err
	}

	m := s.layer(layer)
	if _, ok := m[k.Name]; !ok {
		return nil
	}
	delete(m, k.Name)

	if err := writeConfigFile(s.Path(layer), m); err != nil {
		return fmt.Errorf("failed to save %s config: %w", layer, err)
	}

	return nil
}

// Reset removes the config file of the given layer.
func (s *Store) Reset(layer Layer) error {
	if err := os.Remove(s.Path(layer)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s config: %w", layer, err)
	}

	if layer == LayerProject {
		s.project = map[string]any{}
	} else {
		s.user = map[string]any{}
	}

	return nil
}

// Get returns the effective value of a key along with the layer it comes
// from.
func (s *Store) Get(name string) (Entry, error) {
	k, err := LookupKey(name)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Key:    k.Name,
		Source: SourceDefault,
	}

	v := Default().ToMap()[k.Name]
	if uv, ok := s.user[k.Name]; ok {
		v, entry.Source = uv, SourceUser
	}
	if pv, ok := s.project[k.Name]; ok {
		v, entry.Source = pv, SourceProject
	}
	if raw, ok := os.LookupEnv(k.Env); ok && raw != "" {
		if ev, err := k.Parse(raw); err == nil {
			v, entry.Source = ev, SourceEnv
		}
	}

	entry.Value = k.Format(v)

	return entry, nil
}

// List returns the effective value of every key. Secrets are masked.
func (s *Store) List() []Entry {
	entries := make([]Entry, 0, len(Keys))
	for _, k := range Keys {
		entry, err := s.Get(k.Name)
		if err != nil {
			continue
		}
		if k.Secret && entry.Value != "" {
			entry.Value = "********"
		}
		entries = append(entries, entry)
	}
	return entries
}
