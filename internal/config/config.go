package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/media"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// EnvPrefix prefixes every environment override, e.g. TRANSCRIBER_SERVER_PORT
const EnvPrefix = "TRANSCRIBER"

// Config represents the application configuration
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Engine      EngineConfig            `yaml:"engine"`
	Workers     WorkersConfig           `yaml:"workers"`
	Storage     StorageConfig           `yaml:"storage"`
	Cleanup     CleanupConfig           `yaml:"cleanup"`
	GoogleDrive DriveConfig             `yaml:"google_drive" envconfig:"GDRIVE"`
	Limits      LimitsConfig            `yaml:"limits"`
	Loudness    LoudnessConfig          `yaml:"loudness"`
	Logging     LoggingConfig           `yaml:"logging"`
	Defaults    types.ProcessingOptions `yaml:"defaults"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// EngineConfig places the faster-whisper worker and the ffmpeg binaries
type EngineConfig struct {
	Python      string `yaml:"python"`
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type" split_words:"true"`
	ModelDir    string `yaml:"model_dir" split_words:"true"`
	FFmpeg      string `yaml:"ffmpeg"`
	FFprobe     string `yaml:"ffprobe"`
}

type WorkersConfig struct {
	Count int `yaml:"count"`
}

type StorageConfig struct {
	TempDir   string `yaml:"temp_dir" split_words:"true"`
	OutputDir string `yaml:"output_dir" split_words:"true"`
	Database  string `yaml:"database"`
}

type CleanupConfig struct {
	IntervalMinutes int `yaml:"interval_minutes" split_words:"true"`
	MaxAgeHours     int `yaml:"max_age_hours" split_words:"true"`
}

type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file" split_words:"true"`
	TokenFile       string `yaml:"token_file" split_words:"true"`
	FolderName      string `yaml:"folder_name" split_words:"true"`
}

type LimitsConfig struct {
	MaxFileSizeMB  int `yaml:"max_file_size_mb" envconfig:"MAX_FILE_SIZE_MB"`
	MaxFilesPerJob int `yaml:"max_files_per_job" envconfig:"MAX_FILES_PER_JOB"`
}

// LoudnessConfig holds the loudnorm targets used when normalization is requested
type LoudnessConfig struct {
	IntegratedLUFS float64 `yaml:"integrated_lufs" envconfig:"INTEGRATED_LUFS"`
	TruePeakDB     float64 `yaml:"true_peak_db" envconfig:"TRUE_PEAK_DB"`
	LoudnessRange  float64 `yaml:"loudness_range" split_words:"true"`
}

// Target converts the section into the media layer's type
func (l LoudnessConfig) Target() media.LoudnessTarget {
	return media.LoudnessTarget{
		IntegratedLUFS: l.IntegratedLUFS,
		TruePeakDB:     l.TruePeakDB,
		LoudnessRange:  l.LoudnessRange,
	}
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration
func Default() *Config {
	loud := media.DefaultLoudnessTarget()
	return &Config{
		Server:  ServerConfig{Port: 3000, Host: "0.0.0.0"},
		Engine:  EngineConfig{Python: "python3", Device: "auto", FFmpeg: "ffmpeg", FFprobe: "ffprobe"},
		Workers: WorkersConfig{Count: 1},
		Storage: StorageConfig{
			TempDir:   "temp",
			OutputDir: "outputs",
			Database:  "transcripts.db",
		},
		Cleanup: CleanupConfig{IntervalMinutes: 30, MaxAgeHours: 24},
		GoogleDrive: DriveConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			FolderName:      "Transcricoes",
		},
		Limits: LimitsConfig{MaxFileSizeMB: 500, MaxFilesPerJob: 50},
		Loudness: LoudnessConfig{
			IntegratedLUFS: loud.IntegratedLUFS,
			TruePeakDB:     loud.TruePeakDB,
			LoudnessRange:  loud.LoudnessRange,
		},
		Logging:  LoggingConfig{Level: "info"},
		Defaults: types.DefaultProcessingOptions(),
	}
}

// Load reads the YAML file at path over the defaults, then applies .env and
// TRANSCRIBER_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be >= 1, got %d", c.Workers.Count)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Limits.MaxFileSizeMB < 1 {
		return fmt.Errorf("limits.max_file_size_mb must be >= 1, got %d", c.Limits.MaxFileSizeMB)
	}
	if c.Storage.TempDir == "" || c.Storage.OutputDir == "" {
		return errors.New("storage.temp_dir and storage.output_dir are required")
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}
