package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"jnanayoni/internal/utils"
)

// Config holds the server configuration. Values come from jnanayoni.yaml and JNY_* env vars.
type Config struct {
	Server     ServerConfig  `mapstructure:"server"`
	DataDir    string        `mapstructure:"data_dir"`
	DBPath     string        `mapstructure:"db_path"`
	UploadsDir string        `mapstructure:"uploads_dir"`
	Uploads    UploadConfig  `mapstructure:"uploads"`
	Loan       LoanConfig    `mapstructure:"loan"`
	Sweep      SweepConfig   `mapstructure:"sweep"`
	Session    SessionConfig `mapstructure:"session"`
	Log        LogConfig     `mapstructure:"log"`
	I18n       I18nConfig    `mapstructure:"i18n"`
}

type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type LoanConfig struct {
	PeriodDays        int `mapstructure:"period_days"`
	FinePerDay        int `mapstructure:"fine_per_day"`
	MaxActive         int `mapstructure:"max_active"`
	RemindBeforeHours int `mapstructure:"remind_before_hours"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type SessionConfig struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Cookie string        `mapstructure:"cookie"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type I18nConfig struct {
	Default string `mapstructure:"default"`
}

const (
	defaultMaxUpload  = 50 << 20
	defaultPeriodDays = 14
	defaultFinePerDay = 2
	defaultMaxActive  = 5
	defaultRemindHrs  = 24
	defaultSweep      = time.Hour
	defaultSessionTTL = 24 * time.Hour
)

// Defaults returns a Config populated with built-in defaults only.
func Defaults() Config {
	return Config{
		Server:     ServerConfig{Addr: ":8080"},
		DataDir:    "data",
		DBPath:     filepath.Join("data", "jnanayoni.db"),
		UploadsDir: filepath.Join("data", "uploads"),
		Uploads:    UploadConfig{MaxBytes: defaultMaxUpload},
		Loan: LoanConfig{
			PeriodDays:        defaultPeriodDays,
			FinePerDay:        defaultFinePerDay,
			MaxActive:         defaultMaxActive,
			RemindBeforeHours: defaultRemindHrs,
		},
		Sweep:   SweepConfig{Interval: defaultSweep},
		Session: SessionConfig{TTL: defaultSessionTTL, Cookie: "jny_session"},
		Log:     LogConfig{Level: "info"},
		I18n:    I18nConfig{Default: "en"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("db_path", "")
	v.SetDefault("uploads_dir", "")
	v.SetDefault("uploads.max_bytes", d.Uploads.MaxBytes)
	v.SetDefault("loan.period_days", d.Loan.PeriodDays)
	v.SetDefault("loan.fine_per_day", d.Loan.FinePerDay)
	v.SetDefault("loan.max_active", d.Loan.MaxActive)
	v.SetDefault("loan.remind_before_hours", d.Loan.RemindBeforeHours)
	v.SetDefault("sweep.interval", d.Sweep.Interval)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.cookie", d.Session.Cookie)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("i18n.default", d.I18n.Default)
}

// Load reads configuration from path (when non-empty) or from jnanayoni.yaml in the
// working directory or project root. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("JNY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jnanayoni")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(utils.GetProjectRoot())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills derived paths, clamps non-positive policy values to their defaults and
// rejects unsupported languages.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "jnanayoni.db")
	}
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.Uploads.MaxBytes <= 0 {
		c.Uploads.MaxBytes = defaultMaxUpload
	}
	if c.Loan.PeriodDays <= 0 {
		c.Loan.PeriodDays = defaultPeriodDays
	}
	if c.Loan.FinePerDay < 0 {
		c.Loan.FinePerDay = defaultFinePerDay
	}
	if c.Loan.MaxActive <= 0 {
		c.Loan.MaxActive = defaultMaxActive
	}
	if c.Loan.RemindBeforeHours <= 0 {
		c.Loan.RemindBeforeHours = defaultRemindHrs
	}
	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = defaultSweep
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = defaultSessionTTL
	}
	if c.Session.Cookie == "" {
		c.Session.Cookie = "jny_session"
	}
	switch c.I18n.Default {
	case "":
		c.I18n.Default = "en"
	case "en", "mr":
	default:
		return fmt.Errorf("unsupported default language %q", c.I18n.Default)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}
	return nil
}

// DueDate is the return date for a book issued at issued.
func (l LoanConfig) DueDate(issued time.Time) time.Time {
	return issued.AddDate(0, 0, l.PeriodDays)
}

// RemindBefore is how long before the due date the sweeper sends a reminder.
func (l LoanConfig) RemindBefore() time.Duration {
	return time.Duration(l.RemindBeforeHours) * time.Hour
}

const masterKeyFile = "master.key"

// ReadMasterKey reads the 32-byte master key from MASTER_KEY_HEX or master.key in dataDir
// or the working directory.
func ReadMasterKey(dataDir string) ([]byte, error) {
	h := os.Getenv("MASTER_KEY_HEX")
	if h == "" {
		var data []byte
		var err error
		for _, p := range []string{filepath.Join(dataDir, masterKeyFile), masterKeyFile} {
			data, err = os.ReadFile(p)
			if err == nil {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("MASTER_KEY_HEX not set and %s file not found", masterKeyFile)
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("master key length must be 32 bytes (hex 64 chars)")
	}
	return b, nil
}
