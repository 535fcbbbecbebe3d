package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Server   ServerConfig   `yaml:"server"`
	Editor   EditorConfig   `yaml:"editor"`
	Storage  StorageConfig  `yaml:"storage"`
	AI       AIConfig       `yaml:"ai"`
	Export   ExportConfig   `yaml:"export"`
	Features FeaturesConfig `yaml:"features"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

type SiteConfig struct {
	Name        string `yaml:"name" default:"Inkwell"`
	Description string `yaml:"description" default:"An AI-assisted novel writing studio"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port string `yaml:"port" default:"12700"`
}

// EditorConfig tunes the server-side editing session: debounce delay before
// an automatic save, the undo history bound, the content delta (in runes)
// that triggers a version checkpoint, and how many versions to retain per
// chapter before pruning.
type EditorConfig struct {
	AutosaveDelayMs  int `yaml:"autosave_delay_ms" default:"3000"`
	MaxHistory       int `yaml:"max_history" default:"50"`
	CheckpointDelta  int `yaml:"checkpoint_delta" default:"50"`
	VersionRetention int `yaml:"version_retention" default:"100"`
}

// StorageConfig selects where chapters live. When ManuscriptDir is set the
// server serves that directory of .md files as a single read-only novel
// instead of the database.
type StorageConfig struct {
	DatabasePath  string   `yaml:"database_path" default:"./inkwell.db"`
	ManuscriptDir string   `yaml:"manuscript_dir" default:""`
	Compression   string   `yaml:"compression" default:"zstd"`
	Archive       S3Config `yaml:"archive"`
}

// S3Config configures the optional S3-compatible manuscript archive.
// Credentials come from the environment (ARCHIVE_ACCESS_KEY_ID,
// ARCHIVE_SECRET_ACCESS_KEY), not from the config file.
type S3Config struct {
	Enabled  bool   `yaml:"enabled" default:"false"`
	Bucket   string `yaml:"bucket" default:""`
	Endpoint string `yaml:"endpoint" default:""`
}

type AIConfig struct {
	Model        string `yaml:"model" default:"gemini-2.0-flash"`
	MaxTokens    int    `yaml:"max_tokens" default:"1024"`
	SceneContext int    `yaml:"scene_context" default:"4000"`
}

type ExportConfig struct {
	Language      string `yaml:"language" default:"en"`
	IncludeDrafts bool   `yaml:"include_drafts" default:"false"`
}

type FeaturesConfig struct {
	Authentication AuthConfig  `yaml:"authentication"`
	AIAssist       FeatureFlag `yaml:"ai_assist"`
	Analytics      FeatureFlag `yaml:"analytics"`
	Archive        FeatureFlag `yaml:"archive"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Type    string `yaml:"type" default:"ed25519"`
}

type FeatureFlag struct {
	Enabled bool `yaml:"enabled" default:"false"`
}

var AppConfig *Config

func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	// Try to read and parse the config file
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
		AppConfig = config
		return nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	AppConfig = config
	return nil
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
