package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	OCR     OCRConfig     `yaml:"ocr"`
	Storage StorageConfig `yaml:"storage"`
	Files   FilesConfig   `yaml:"files"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port                 string `yaml:"port"`
	Mode                 string `yaml:"mode"`
	APIKey               string `yaml:"api_key"`
	MaxConcurrentBatches int    `yaml:"max_concurrent_batches"`
	DisableMetrics       bool   `yaml:"disable_metrics"`
}

type OCRConfig struct {
	// Engine is "cli" (tesseract binary) or "tesseract" (libtesseract).
	Engine            string        `yaml:"engine"`
	Binary            string        `yaml:"binary"`
	Languages         []string      `yaml:"languages"`
	Timeout           time.Duration `yaml:"timeout"`
	Parallelism       int           `yaml:"parallelism"`
	Fast              bool          `yaml:"fast"`
	DisableCorrection bool          `yaml:"disable_correction"`
}

type StorageConfig struct {
	Provider  string        `yaml:"provider"`
	Region    string        `yaml:"region"`
	PathStyle bool          `yaml:"path_style"`
	Account   AccountConfig `yaml:"account"`
}

// AccountConfig is the long-lived account behind /oss/sts and /oss/sign.
// Both routes answer "not configured" while it is empty.
type AccountConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id"`
	AccessKeySecret string        `yaml:"access_key_secret"`
	RoleArn         string        `yaml:"role_arn"`
	STSEndpoint     string        `yaml:"sts_endpoint"`
	STSDuration     time.Duration `yaml:"sts_duration"`
	SignTTL         time.Duration `yaml:"sign_ttl"`
}

type FilesConfig struct {
	Root string `yaml:"root"`
}

type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var searchPaths = []string{
	"config.yaml",
	filepath.Join("configs", "config.yaml"),
}

// Load reads .env (if any), the YAML file named by CONFIG_PATH or found on
// the search path (if any), applies defaults and then environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = findConfig()
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit path; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfig() string {
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		} else if !errors.Is(err, fs.ErrNotExist) {
			return p
		}
	}
	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "dev"
	}
	if cfg.Server.MaxConcurrentBatches <= 0 {
		cfg.Server.MaxConcurrentBatches = 4
	}
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = "cli"
	}
	if cfg.OCR.Binary == "" {
		cfg.OCR.Binary = "tesseract"
	}
	if len(cfg.OCR.Languages) == 0 {
		cfg.OCR.Languages = []string{"chi_sim", "eng"}
	}
	if cfg.OCR.Timeout <= 0 {
		cfg.OCR.Timeout = 2 * time.Minute
	}
	if cfg.OCR.Parallelism <= 0 {
		cfg.OCR.Parallelism = 1
	}
	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "oss"
	}
	acct := &cfg.Storage.Account
	if acct.Region == "" {
		acct.Region = "cn-beijing"
	}
	if acct.STSEndpoint == "" {
		acct.STSEndpoint = "https://sts.aliyuncs.com"
	}
	if acct.STSDuration <= 0 {
		acct.STSDuration = time.Hour
	}
	if acct.SignTTL <= 0 {
		acct.SignTTL = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"PORT":                  &cfg.Server.Port,
		"MODE":                  &cfg.Server.Mode,
		"API_KEY":               &cfg.Server.APIKey,
		"OCR_ENGINE":            &cfg.OCR.Engine,
		"OCR_BINARY":            &cfg.OCR.Binary,
		"STORAGE_PROVIDER":      &cfg.Storage.Provider,
		"STORAGE_REGION":        &cfg.Storage.Region,
		"FILES_ROOT":            &cfg.Files.Root,
		"JOURNAL_PATH":          &cfg.Journal.Path,
		"OSS_ENDPOINT":          &cfg.Storage.Account.Endpoint,
		"OSS_BUCKET":            &cfg.Storage.Account.Bucket,
		"OSS_ACCESS_KEY_ID":     &cfg.Storage.Account.AccessKeyID,
		"OSS_ACCESS_KEY_SECRET": &cfg.Storage.Account.AccessKeySecret,
		"OSS_ROLE_ARN":          &cfg.Storage.Account.RoleArn,
		"LOG_LEVEL":             &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		cfg.OCR.Languages = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' })
	}
	if v := os.Getenv("OCR_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OCR_PARALLELISM: %w", err)
		}
		cfg.OCR.Parallelism = n
	}
	if v := os.Getenv("MAX_CONCURRENT_BATCHES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_BATCHES: %w", err)
		}
		cfg.Server.MaxConcurrentBatches = n
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.OCR.Engine {
	case "cli", "tesseract":
	default:
		return fmt.Errorf("unknown ocr engine %q", c.OCR.Engine)
	}
	switch c.Storage.Provider {
	case "oss", "s3":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	if c.Server.MaxConcurrentBatches <= 0 {
		return errors.New("max_concurrent_batches must be positive")
	}
	if c.OCR.Parallelism <= 0 {
		return errors.New("ocr parallelism must be positive")
	}
	return nil
}
