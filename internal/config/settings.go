package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/telemetry"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatJSON SettingsFormat = "json"
)

// Settings mirrors settings.toml. Durations are Go duration strings.
type Settings struct {
	Timeout         string            `json:"timeout,omitempty"          toml:"timeout,omitempty"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty" toml:"follow_redirects,omitempty"`
	Insecure        bool              `json:"insecure,omitempty"         toml:"insecure,omitempty"`
	Proxy           string            `json:"proxy,omitempty"            toml:"proxy,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"       toml:"user_agent,omitempty"`
	Delay           string            `json:"delay,omitempty"            toml:"delay,omitempty"`
	HistoryPath     string            `json:"history_path,omitempty"     toml:"history_path,omitempty"`
	HistoryBackend  string            `json:"history_backend,omitempty"  toml:"history_backend,omitempty"`
	HistoryMax      int               `json:"history_max,omitempty"      toml:"history_max,omitempty"`
	LogLevel        string            `json:"log_level,omitempty"        toml:"log_level,omitempty"`
	LogFormat       string            `json:"log_format,omitempty"       toml:"log_format,omitempty"`
	Telemetry       TelemetrySettings `json:"telemetry"                  toml:"telemetry"`
}

type TelemetrySettings struct {
	Endpoint    string `json:"endpoint,omitempty"     toml:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"     toml:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty" toml:"service_name,omitempty"`
}

type SettingsFormat string
type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

// DefaultSettings is what `config init` writes.
func DefaultSettings() Settings {
	follow := true
	return Settings{
		Timeout:         "30s",
		FollowRedirects: &follow,
		HistoryBackend:  "json",
		HistoryMax:      200,
		LogLevel:        "warn",
		LogFormat:       "text",
	}
}

// LoadSettings tries settings.toml, then settings.json, then returns empty
// settings. Parse errors fail immediately; missing files skip to the next
// format.
func LoadSettings() (Settings, SettingsHandle, error) {
	dir := Dir()
	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "settings.json"), Format: SettingsFormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				errdef.Wrap(errdef.CodeConfig, err, "read settings %q", candidate.Path),
			)
			continue
		}

		settings, err := decodeSettings(data, candidate.Format)
		if err != nil {
			return Settings{}, SettingsHandle{}, errdef.Wrap(
				errdef.CodeConfig,
				err,
				"parse settings %q",
				candidate.Path,
			)
		}
		if err := settings.Validate(); err != nil {
			return Settings{}, SettingsHandle{}, errdef.Wrap(
				errdef.CodeConfig,
				err,
				"invalid settings %q",
				candidate.Path,
			)
		}
		return settings, candidate, nil
	}

	if accumulated != nil {
		return Settings{}, SettingsHandle{}, accumulated
	}

	return Settings{}, SettingsHandle{
		Path:   candidates[0].Path,
		Format: SettingsFormatTOML,
	}, nil
}

func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	var settings Settings
	switch format {
	case SettingsFormatTOML:
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}

// Validate checks values that are parsed lazily.
func (s Settings) Validate() error {
	for name, value := range map[string]string{"timeout": s.Timeout, "delay": s.Delay} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(s.HistoryBackend)) {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("history_backend: unknown backend %q", s.HistoryBackend)
	}
	if s.HistoryMax < 0 {
		return fmt.Errorf("history_max: must not be negative")
	}
	return nil
}

// ApplyHTTP copies transport settings onto opts; unset values leave opts
// alone.
func (s Settings) ApplyHTTP(opts *httpclient.Options) {
	if opts == nil {
		return
	}
	if d, err := parseDuration(s.Timeout); err == nil && d > 0 {
		opts.Timeout = d
	}
	if s.FollowRedirects != nil {
		opts.FollowRedirects = *s.FollowRedirects
	}
	if s.Insecure {
		opts.InsecureSkipVerify = true
	}
	if p := strings.TrimSpace(s.Proxy); p != "" {
		opts.ProxyURL = p
	}
	if ua := strings.TrimSpace(s.UserAgent); ua != "" {
		opts.UserAgent = ua
	}
}

// ApplyTelemetry overlays file settings on an environment-derived config.
// Environment values win.
func (s Settings) ApplyTelemetry(cfg telemetry.Config) telemetry.Config {
	if cfg.Endpoint == "" {
		cfg.Endpoint = strings.TrimSpace(s.Telemetry.Endpoint)
		if s.Telemetry.Insecure {
			cfg.Insecure = true
		}
	}
	if name := strings.TrimSpace(s.Telemetry.ServiceName); name != "" && (cfg.ServiceName == "" || cfg.ServiceName == "reqflow") {
		cfg.ServiceName = name
	}
	return cfg
}

// RunDelay is the configured pause between collection steps.
func (s Settings) RunDelay() time.Duration {
	d, _ := parseDuration(s.Delay)
	return d
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

func SaveSettings(settings Settings, handle SettingsHandle) error {
	path := handle.Path
	format := handle.Format
	if path == "" {
		path = filepath.Join(Dir(), "settings.toml")
	}
	if format == "" {
		format = SettingsFormatTOML
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "ensure settings directory")
	}

	var (
		data []byte
		err  error
	)

	switch format {
	case SettingsFormatTOML:
		data, err = toml.Marshal(settings)
	case SettingsFormatJSON:
		data, err = json.MarshalIndent(settings, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	default:
		return errdef.New(errdef.CodeConfig, "unsupported settings format %q", format)
	}
	if err != nil {
		return errdef.Wrap(errdef.CodeConfig, err, "encode settings")
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write settings %q", path)
	}
	return nil
}

// writeFileAtomic writes a temp file in the target directory and renames it
// over path, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".reqflow-settings-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Chmod(perm); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
