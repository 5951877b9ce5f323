package config

import (
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. PHOTO_ORGANIZER_MIN_WIDTH.
const EnvPrefix = "PHOTO_ORGANIZER"

// SetDefaults registers every Config key with its default on v so that env
// variables and flags bound later resolve even when no file sets them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("schema_version", d.SchemaVersion)
	v.SetDefault("source_dir", d.SourceDir)
	v.SetDefault("dest_dir", d.DestDir)
	v.SetDefault("min_width", d.MinWidth)
	v.SetDefault("min_height", d.MinHeight)
	v.SetDefault("min_size_bytes", d.MinSizeBytes)
	v.SetDefault("system_paths", d.SystemPaths)
	v.SetDefault("allow_paths", d.AllowPaths)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("ignore_patterns", d.IgnorePatterns)
	v.SetDefault("folder_layout", d.FolderLayout)
	v.SetDefault("prefix_parent_dir", d.PrefixParentDir)
	v.SetDefault("exiftool_path", d.ExiftoolPath)
}

// NewViper returns a viper instance reading from fs with defaults and the
// PHOTO_ORGANIZER_ env namespace configured.
func NewViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// ReadFile loads an optional profile into v. A missing file is not an error
// unless required is set.
func ReadFile(fs afero.Fs, v *viper.Viper, path string, required bool) error {
	if path == "" {
		return nil
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return errors.Errorf("checking config file %s: %w", path, err)
	}
	if !exists {
		if required {
			return errors.Errorf("config file %s not found", path)
		}
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// Load resolves the layered viper sources into a normalized Config.
func Load(v *viper.Viper) (Config, []string, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, nil, errors.Errorf("decoding config: %w", err)
	}
	c, warnings := c.Normalize()
	return c, warnings, nil
}

// MarshalProfile renders c as the YAML profile written by `init` and printed
// by `config show`.
func MarshalProfile(c Config) ([]byte, error) {
	c, _ = c.Normalize()
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Errorf("encoding profile: %w", err)
	}
	return b, nil
}

// WriteProfile writes c as YAML to path, refusing to replace an existing file.
func WriteProfile(fs afero.Fs, path string, c Config) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return errors.Errorf("checking profile %s: %w", path, err)
	}
	if exists {
		return errors.Errorf("profile %s already exists", path)
	}
	b, err := MarshalProfile(c)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, b, 0o644); err != nil {
		return errors.Errorf("writing profile %s: %w", path, err)
	}
	return nil
}
