package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/uniscrape/internal/browser"
	"github.com/go-scripts/uniscrape/internal/config"
	"github.com/go-scripts/uniscrape/internal/oracle"
	"github.com/go-scripts/uniscrape/internal/scraper"
	"github.com/go-scripts/uniscrape/internal/writer"
)

// CLIFlags are the command line overrides on top of the YAML config.
type CLIFlags struct {
	ConfigFile  string `help:"Path to configuration file" default:"config.yaml"`
	StartURL    string `help:"Starting URL for the scrape" short:"u"`
	OutputFile  string `help:"Path to output file" short:"o"`
	MaxEntities int    `help:"Maximum entity records to collect (0 = unlimited)" short:"n" default:"-1"`
	MaxPages    int    `help:"Maximum page loads (0 = unlimited)" default:"-1"`
	Headless    bool   `help:"Run the browser headless"`
	NoProgress  bool   `help:"Disable the progress spinner"`
	Debug       bool   `help:"Enable debug logging" default:"false"`
}

// apply folds the flags into the loaded configuration. Negative numeric
// flags mean "not set on the command line".
func (f CLIFlags) apply(cfg *config.Config) {
	if f.StartURL != "" {
		cfg.StartURL = f.StartURL
	}
	if f.OutputFile != "" {
		cfg.OutputFile = f.OutputFile
	}
	if f.MaxEntities >= 0 {
		cfg.MaxEntities = f.MaxEntities
	}
	if f.MaxPages >= 0 {
		cfg.MaxPages = f.MaxPages
	}
	if f.Headless {
		cfg.Browser.Headless = true
	}
}

func main() {
	var flags CLIFlags
	kong.Parse(&flags,
		kong.Name("uniscrape"),
		kong.Description("AI-guided scraper for script-rendered university listings."),
	)

	if flags.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(flags); err != nil {
		log.Error("Scrape failed", "error", err)
		os.Exit(1)
	}
}

func run(flags CLIFlags) error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	flags.apply(&cfg)

	oracleConfig, err := cfg.OracleClientConfig()
	if err != nil {
		return err
	}
	if oracleConfig.APIKey == "" {
		return fmt.Errorf("no API key: set %s in the environment", cfg.Oracle.APIKeyEnv)
	}
	oracleClient, err := oracle.NewClient(oracleConfig)
	if err != nil {
		return err
	}

	browserConfig, err := cfg.BrowserSessionConfig()
	if err != nil {
		return err
	}
	session, err := browser.NewSession(browserConfig)
	if err != nil {
		return err
	}
	defer session.Close()

	out, err := writer.New(cfg.OutputFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := scraper.New(oracleClient, session, cfg.ExecutorSettings(!flags.NoProgress))

	result, err := engine.Scrape(ctx, cfg.StartURL, cfg.Limits())
	if err != nil {
		return err
	}

	path, err := out.WriteResult(cfg.StartURL, result)
	if err != nil {
		return err
	}

	log.Info("Scrape complete", "records", result.TotalFound, "output", path)
	return nil
}
