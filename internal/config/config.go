package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultBusyTimeout  = 5 * time.Second
	defaultIDScheme     = "uuid"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultLogMaxSizeMB = 10
	defaultLogMaxFiles  = 5
	defaultExportFormat = "json"
	defaultOnConflict   = "fail"
	databaseFileName    = "store.db"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Export  ExportConfig  `toml:"export"`
}

type StorageConfig struct {
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
	IDScheme    string        `toml:"id_scheme"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type ExportConfig struct {
	Format     string `toml:"format"`
	OnConflict string `toml:"on_conflict"`
}

type LoadOptions struct {
	ConfigPath string
	Env        map[string]string
	Flags      FlagOverrides
}

type FlagOverrides struct {
	DBPath   *string
	LogLevel *string
}

// DefaultConfig has every field set except Storage.Path, which Load fills from
// the data home when nothing else names it.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			BusyTimeout: defaultBusyTimeout,
			IDScheme:    defaultIDScheme,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			Format:    defaultLogFormat,
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
		Export: ExportConfig{
			Format:     defaultExportFormat,
			OnConflict: defaultOnConflict,
		},
	}
}

// Load layers defaults, the TOML file, QRC_* environment variables and flag
// overrides, in that order of increasing precedence.
func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	configPath, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	if err := loadAndApplyFile(configPath, &cfg); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	if strings.TrimSpace(cfg.Storage.Path) == "" {
		home, err := DataHome(opts.Env)
		if err != nil {
			return Config{}, fmt.Errorf("resolve data home: %w", err)
		}
		cfg.Storage.Path = filepath.Join(home, databaseFileName)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type rawConfig struct {
	Storage *rawStorage `toml:"storage"`
	Logging *rawLogging `toml:"logging"`
	Export  *rawExport  `toml:"export"`
}

type rawStorage struct {
	Path        *string `toml:"path"`
	BusyTimeout *string `toml:"busy_timeout"`
	IDScheme    *string `toml:"id_scheme"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	Format    *string `toml:"format"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

type rawExport struct {
	Format     *string `toml:"format"`
	OnConflict *string `toml:"on_conflict"`
}

func loadAndApplyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}
	return applyRawConfig(cfg, raw)
}

func applyRawConfig(cfg *Config, raw rawConfig) error {
	if raw.Storage != nil {
		setString(raw.Storage.Path, &cfg.Storage.Path)
		if err := setDuration("storage.busy_timeout", raw.Storage.BusyTimeout, &cfg.Storage.BusyTimeout); err != nil {
			return err
		}
		setString(raw.Storage.IDScheme, &cfg.Storage.IDScheme)
	}

	if raw.Logging != nil {
		setString(raw.Logging.Level, &cfg.Logging.Level)
		setString(raw.Logging.Format, &cfg.Logging.Format)
		setString(raw.Logging.File, &cfg.Logging.File)
		setInt(raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB)
		setInt(raw.Logging.MaxFiles, &cfg.Logging.MaxFiles)
	}

	if raw.Export != nil {
		setString(raw.Export.Format, &cfg.Export.Format)
		setString(raw.Export.OnConflict, &cfg.Export.OnConflict)
	}
	return nil
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	if value, ok := lookupEnv(opts.Env, "QRC_DB_PATH"); ok {
		cfg.Storage.Path = value
	}
	if value, ok := lookupEnv(opts.Env, "QRC_STORAGE_BUSY_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: parse QRC_STORAGE_BUSY_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		cfg.Storage.BusyTimeout = d
	}
	if value, ok := lookupEnv(opts.Env, "QRC_STORAGE_ID_SCHEME"); ok {
		cfg.Storage.IDScheme = value
	}

	if value, ok := lookupEnv(opts.Env, "QRC_LOG_LEVEL"); ok {
		cfg.Logging.Level = value
	}
	if value, ok := lookupEnv(opts.Env, "QRC_LOG_FORMAT"); ok {
		cfg.Logging.Format = value
	}
	if value, ok := lookupEnv(opts.Env, "QRC_LOG_FILE"); ok {
		cfg.Logging.File = value
	}
	if value, ok := lookupEnv(opts.Env, "QRC_LOG_MAX_SIZE_MB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse QRC_LOG_MAX_SIZE_MB: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxSizeMB = parsed
	}
	if value, ok := lookupEnv(opts.Env, "QRC_LOG_MAX_FILES"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse QRC_LOG_MAX_FILES: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxFiles = parsed
	}

	if value, ok := lookupEnv(opts.Env, "QRC_EXPORT_FORMAT"); ok {
		cfg.Export.Format = value
	}
	if value, ok := lookupEnv(opts.Env, "QRC_IMPORT_ON_CONFLICT"); ok {
		cfg.Export.OnConflict = value
	}
	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.DBPath != nil {
		cfg.Storage.Path = *flags.DBPath
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
}

func validate(cfg Config) error {
	if cfg.Storage.BusyTimeout <= 0 || cfg.Storage.BusyTimeout > 5*time.Minute {
		return fmt.Errorf("%w: storage.busy_timeout must be > 0 and <= 5m", ErrInvalidConfig)
	}
	if err := oneOf("storage.id_scheme", cfg.Storage.IDScheme, "uuid", "ulid"); err != nil {
		return err
	}
	if err := oneOf("logging.level", cfg.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("logging.format", cfg.Logging.Format, "text", "json"); err != nil {
		return err
	}
	if cfg.Logging.MaxSizeMB <= 0 || cfg.Logging.MaxFiles <= 0 {
		return fmt.Errorf("%w: logging.max_size_mb and logging.max_files must be positive", ErrInvalidConfig)
	}
	if err := oneOf("export.format", cfg.Export.Format, "json", "yaml"); err != nil {
		return err
	}
	return oneOf("export.on_conflict", cfg.Export.OnConflict, "fail", "skip", "overwrite", "rename")
}

func oneOf(field, value string, allowed ...string) error {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if normalized == candidate {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidConfig, field, strings.Join(allowed, ", "), value)
}

func setDuration(field string, raw *string, target *time.Duration) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, field, err)
	}
	*target = d
	return nil
}

func setString(raw *string, target *string) {
	if raw != nil {
		*target = *raw
	}
}

func setInt(raw *int, target *int) {
	if raw != nil {
		*target = *raw
	}
}

// Path reports which config file Load reads for opts.
func Path(opts LoadOptions) (string, error) {
	return resolveConfigPath(opts)
}

func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := lookupEnv(opts.Env, "QRC_CONFIG_PATH"); ok {
		return value, nil
	}
	return defaultConfigPath(opts.Env)
}

func lookupEnv(env map[string]string, key string) (string, bool) {
	if env != nil {
		if value, ok := env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

// DataHome is the directory holding the database: QRC_HOME when set,
// otherwise the platform data directory.
func DataHome(env map[string]string) (string, error) {
	if value, ok := lookupEnv(env, "QRC_HOME"); ok && value != "" {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "QuantumRiskCoach"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(env, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "quantum-risk-coach"), nil
}

func defaultConfigPath(env map[string]string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "QuantumRiskCoach", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := lookupEnv(env, "XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "quantum-risk-coach", "config.toml"), nil
}
