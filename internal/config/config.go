// Package config loads the scraper's YAML configuration and builds the
// per-component settings from it. A missing config file is not an error;
// defaults cover a complete run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-scripts/uniscrape/internal/browser"
	"github.com/go-scripts/uniscrape/internal/oracle"
	"github.com/go-scripts/uniscrape/internal/scraper"
)

// Config captures all tunable settings.
type Config struct {
	StartURL    string `yaml:"start_url"`
	OutputFile  string `yaml:"output_file"`
	MaxEntities int    `yaml:"max_entities"`
	MaxPages    int    `yaml:"max_pages"`

	Oracle   OracleConfig   `yaml:"oracle"`
	Browser  BrowserConfig  `yaml:"browser"`
	Executor ExecutorConfig `yaml:"executor"`
}

// OracleConfig configures the decision-oracle endpoint. The API key is
// never stored in the file; APIKeyEnv names the environment variable that
// carries it.
type OracleConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// Durations as strings, e.g. "60s".
	Timeout string `yaml:"timeout"`
}

// BrowserConfig configures the chromedp session.
type BrowserConfig struct {
	Headless  bool   `yaml:"headless"`
	UserAgent string `yaml:"user_agent"`
	Timeout   string `yaml:"timeout"`
	WaitTime  string `yaml:"wait_time"`
}

// ExecutorConfig configures the plan executor.
type ExecutorConfig struct {
	MaxPlanDepth int    `yaml:"max_plan_depth"`
	Concurrency  int    `yaml:"concurrency"`
	MaxHTMLBytes int    `yaml:"max_html_bytes"`
	CategorySlug string `yaml:"category_slug"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		StartURL:    "https://www.unipage.net/en/home",
		OutputFile:  "output/universities.json",
		MaxEntities: 10,
		Oracle: OracleConfig{
			Endpoint:  "https://openrouter.ai/api/v1/chat/completions",
			APIKeyEnv: "OPENROUTER_API_KEY",
			Model:     "deepseek/deepseek-r1:free",
			Timeout:   "60s",
		},
		Browser: BrowserConfig{
			// Headful: the target site's bot checks trip on headless mode.
			Headless: false,
			Timeout:  "45s",
			WaitTime: "3s",
		},
		Executor: ExecutorConfig{},
	}
}

// Load reads path over the defaults. A nonexistent path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// OracleClientConfig builds the oracle client settings, resolving the API
// key from the environment.
func (c Config) OracleClientConfig() (*oracle.Config, error) {
	timeout, err := parseDuration(c.Oracle.Timeout, "oracle.timeout")
	if err != nil {
		return nil, err
	}
	return &oracle.Config{
		Endpoint:    c.Oracle.Endpoint,
		APIKey:      os.Getenv(c.Oracle.APIKeyEnv),
		Model:       c.Oracle.Model,
		Temperature: c.Oracle.Temperature,
		MaxTokens:   c.Oracle.MaxTokens,
		Timeout:     timeout,
	}, nil
}

// BrowserSessionConfig builds the browser session settings.
func (c Config) BrowserSessionConfig() (browser.Config, error) {
	timeout, err := parseDuration(c.Browser.Timeout, "browser.timeout")
	if err != nil {
		return browser.Config{}, err
	}
	waitTime, err := parseDuration(c.Browser.WaitTime, "browser.wait_time")
	if err != nil {
		return browser.Config{}, err
	}
	return browser.Config{
		Headless:  c.Browser.Headless,
		UserAgent: c.Browser.UserAgent,
		Timeout:   timeout,
		WaitTime:  waitTime,
	}, nil
}

// ExecutorSettings builds the executor settings.
func (c Config) ExecutorSettings(showProgress bool) scraper.Config {
	return scraper.Config{
		MaxPlanDepth: c.Executor.MaxPlanDepth,
		Concurrency:  c.Executor.Concurrency,
		MaxHTMLBytes: c.Executor.MaxHTMLBytes,
		CategorySlug: c.Executor.CategorySlug,
		ShowProgress: showProgress,
	}
}

// Limits builds the work budget.
func (c Config) Limits() scraper.Limits {
	return scraper.Limits{MaxEntities: c.MaxEntities, MaxPages: c.MaxPages}
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", field, s)
	}
	return d, nil
}
