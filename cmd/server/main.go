package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/jcber/spothoot/pkg/logging"
	"github.com/jcber/spothoot/pkg/music"
	"github.com/jcber/spothoot/pkg/server"
	"github.com/jcber/spothoot/pkg/store"
	"github.com/jcber/spothoot/pkg/version"
)

func main() {
	// Spotify credentials may come from a .env file; absence is fine
	_ = godotenv.Load()

	cfg := server.DefaultConfig()
	configPath := flag.String("config", "", "YAML config file path")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP bind address for the websocket endpoint")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println("spothoot " + version.Full())
		return
	}

	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		// Flags passed explicitly override the file
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "addr":
				cfg.Addr = f.Value.String()
			case "db":
				cfg.DBPath = f.Value.String()
			case "metrics":
				cfg.MetricsAddr = f.Value.String()
			case "log-level":
				cfg.LogLevel = f.Value.String()
			case "log-format":
				cfg.LogFormat = f.Value.String()
			}
		})
	} else {
		cfg.LogLevel = *logLevel
		cfg.LogFormat = *logFormat
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Environment wins over the config file for credentials
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		cfg.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		cfg.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URL"); v != "" {
		cfg.Spotify.RedirectURL = v
	}
	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		slog.Warn("no Spotify credentials configured; login will fail")
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	provider := music.NewSpotify(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL)

	srv := server.New(cfg, server.Dependencies{Catalogue: st, Provider: provider})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
