package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/nelcapetown/audible-scraper/internal/selectors"
)

const DefaultFile = "config.json"

type Config struct {
	DataFolder         string `json:"data_folder"`
	LoggingFolder      string `json:"logging_folder"`
	LogFile            string `json:"log_file"`
	LogLevel           string `json:"log_level"`
	LogFormat          string `json:"log_format"`
	AuthFile           string `json:"auth_file"`
	OutputJSONFile     string `json:"output_json_file"`
	OutputTabularFile  string `json:"output_tabular_file"`
	OutputExcelFile    string `json:"output_excel_file"`
	OutputMarkdownFile string `json:"output_markdown_file"`
	ImagesFolder       string `json:"images_folder"`
	LibraryURL         string `json:"audible_library_url"`

	MaxImageDownloadRetries    int    `json:"max_image_download_retries"`
	DelayBetweenRetriesSeconds int    `json:"delay_between_retries_seconds"`
	PageTimeoutMilliseconds    int    `json:"page_timeout_milliseconds"`
	UserAgent                  string `json:"user_agent"`

	Headless         bool `json:"headless"`
	ImageConcurrency int  `json:"image_concurrency"`
	MaxPages         int  `json:"max_pages"`
	PageDelayMinMS   int  `json:"page_delay_min_ms"`
	PageDelayMaxMS   int  `json:"page_delay_max_ms"`

	Selectors selectors.Map  `json:"selectors"`
	Database  DatabaseConfig `json:"database"`
	Redis     RedisConfig    `json:"redis"`
	Status    StatusConfig   `json:"status"`

	// Sources lists the files Load read, in merge order.
	Sources []string `json:"-"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Stream   string `json:"stream"`
}

type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Default returns the configuration used for every option the file and the
// environment leave unset.
func Default() *Config {
	return &Config{
		DataFolder:                 "data",
		LoggingFolder:              "logs",
		LogFile:                    "audiblescraper.log",
		LogLevel:                   "info",
		LogFormat:                  "text",
		AuthFile:                   "auth.json",
		OutputJSONFile:             "library.json",
		OutputTabularFile:          "library.csv",
		OutputExcelFile:            "library.xlsx",
		OutputMarkdownFile:         "library.md",
		ImagesFolder:               "images",
		LibraryURL:                 "https://www.audible.com/library/titles",
		MaxImageDownloadRetries:    5,
		DelayBetweenRetriesSeconds: 10,
		PageTimeoutMilliseconds:    60000,
		ImageConcurrency:           1,
		PageDelayMinMS:             1000,
		PageDelayMaxMS:             3000,
		Selectors:                  selectors.Default(),
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "audible_library",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "audible:runs",
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:8090",
		},
	}
}

// Load reads path (JSON5; plain JSON is fine), merges <name>.local.<ext> over
// it, fills unset options from Default, applies AUDIBLE_* environment
// overrides and resolves relative paths against the data folder. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	var sources []string

	if path != "" {
		switch err := readInto(path, cfg); {
		case err == nil:
			sources = append(sources, path)
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}

		local := localName(path)
		override := &Config{}
		err := readInto(local, override)
		switch {
		case err == nil:
			if err := mergo.Merge(cfg, *override, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merge %s: %w", local, err)
			}
			sources = append(sources, local)
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	if err := mergo.Merge(cfg, *Default()); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	cfg.Sources = sources
	cfg.applyEnv()

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func localName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func (c *Config) applyEnv() {
	c.DataFolder = getEnvOrDefault("AUDIBLE_DATA_FOLDER", c.DataFolder)
	c.LoggingFolder = getEnvOrDefault("AUDIBLE_LOGGING_FOLDER", c.LoggingFolder)
	c.LogFile = getEnvOrDefault("AUDIBLE_LOG_FILE", c.LogFile)
	c.LogLevel = getEnvOrDefault("AUDIBLE_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("AUDIBLE_LOG_FORMAT", c.LogFormat)
	c.AuthFile = getEnvOrDefault("AUDIBLE_AUTH_FILE", c.AuthFile)
	c.ImagesFolder = getEnvOrDefault("AUDIBLE_IMAGES_FOLDER", c.ImagesFolder)
	c.LibraryURL = getEnvOrDefault("AUDIBLE_LIBRARY_URL", c.LibraryURL)
	c.UserAgent = getEnvOrDefault("AUDIBLE_USER_AGENT", c.UserAgent)
	c.MaxImageDownloadRetries = getIntOrDefault("AUDIBLE_MAX_IMAGE_DOWNLOAD_RETRIES", c.MaxImageDownloadRetries)
	c.DelayBetweenRetriesSeconds = getIntOrDefault("AUDIBLE_DELAY_BETWEEN_RETRIES_SECONDS", c.DelayBetweenRetriesSeconds)
	c.PageTimeoutMilliseconds = getIntOrDefault("AUDIBLE_PAGE_TIMEOUT_MILLISECONDS", c.PageTimeoutMilliseconds)
	c.Headless = getBoolOrDefault("AUDIBLE_HEADLESS", c.Headless)
	c.ImageConcurrency = getIntOrDefault("AUDIBLE_IMAGE_CONCURRENCY", c.ImageConcurrency)
	c.MaxPages = getIntOrDefault("AUDIBLE_MAX_PAGES", c.MaxPages)

	c.Database.Enabled = getBoolOrDefault("AUDIBLE_DB_ENABLED", c.Database.Enabled)
	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getIntOrDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnvOrDefault("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnvOrDefault("DB_SSL_MODE", c.Database.SSLMode)

	c.Redis.Enabled = getBoolOrDefault("AUDIBLE_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)

	c.Status.Enabled = getBoolOrDefault("AUDIBLE_STATUS_ENABLED", c.Status.Enabled)
	c.Status.Addr = getEnvOrDefault("AUDIBLE_STATUS_ADDR", c.Status.Addr)
}

// resolvePaths makes the data folder absolute and anchors every other
// relative path in it. The log file is anchored in the logging folder.
func (c *Config) resolvePaths() error {
	abs, err := filepath.Abs(c.DataFolder)
	if err != nil {
		return fmt.Errorf("resolve data folder: %w", err)
	}
	c.DataFolder = abs

	for _, p := range []*string{
		&c.LoggingFolder,
		&c.AuthFile,
		&c.OutputJSONFile,
		&c.OutputTabularFile,
		&c.OutputExcelFile,
		&c.OutputMarkdownFile,
		&c.ImagesFolder,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataFolder, *p)
		}
	}
	if !filepath.IsAbs(c.LogFile) {
		c.LogFile = filepath.Join(c.LoggingFolder, c.LogFile)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.LibraryURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("audible_library_url must be an absolute URL, got %q", c.LibraryURL))
	}
	if c.MaxImageDownloadRetries < 1 {
		errs = append(errs, errors.New("max_image_download_retries must be at least 1"))
	}
	if c.DelayBetweenRetriesSeconds < 0 {
		errs = append(errs, errors.New("delay_between_retries_seconds cannot be negative"))
	}
	if c.PageTimeoutMilliseconds < 1 {
		errs = append(errs, errors.New("page_timeout_milliseconds must be positive"))
	}
	if c.ImageConcurrency < 1 {
		errs = append(errs, errors.New("image_concurrency must be at least 1"))
	}
	if c.MaxPages < 0 {
		errs = append(errs, errors.New("max_pages cannot be negative"))
	}
	if c.PageDelayMinMS > c.PageDelayMaxMS {
		errs = append(errs, errors.New("page_delay_min_ms cannot be greater than page_delay_max_ms"))
	}
	if err := c.Selectors.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutMilliseconds) * time.Millisecond
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.DelayBetweenRetriesSeconds) * time.Second
}

func (c *Config) PageDelay() (time.Duration, time.Duration) {
	return time.Duration(c.PageDelayMinMS) * time.Millisecond, time.Duration(c.PageDelayMaxMS) * time.Millisecond
}

// Folders lists the folders a run writes to.
func (c *Config) Folders() []string {
	return []string{c.DataFolder, c.ImagesFolder, c.LoggingFolder, filepath.Dir(c.AuthFile)}
}

// DatabaseURL is the Postgres connection string.
func (d DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
