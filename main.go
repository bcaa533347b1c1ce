package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kyeoh/margins/backend"
	"github.com/kyeoh/margins/config"
	"github.com/kyeoh/margins/logging"
	"github.com/kyeoh/margins/tui"
)

func main() {
	defaultConfig := ""
	if home, err := os.UserHomeDir(); err == nil {
		defaultConfig = filepath.Join(home, ".margins", "config.toml")
	}

	configPath := flag.String("config", defaultConfig, "path to config file")
	server := flag.String("server", "", "API base URL (overrides config)")
	viewer := flag.String("viewer", "", "viewer name (overrides config)")
	pageType := flag.String("page", "", "page type: novel or chapter (overrides config)")
	itemID := flag.Int64("item", 0, "item id (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *configPath != defaultConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *server != "" {
		cfg.Server.BaseURL = *server
	}
	if *viewer != "" {
		cfg.Session.Viewer = *viewer
	}
	if *pageType != "" {
		cfg.Page.Type = *pageType
	}
	if *itemID != 0 {
		cfg.Page.ItemID = *itemID
	}

	ref := backend.PageRef{Type: backend.PageType(cfg.Page.Type), ID: cfg.Page.ItemID}
	if !ref.Type.Valid() {
		fmt.Fprintf(os.Stderr, "Error: unknown page type %q\n", cfg.Page.Type)
		os.Exit(1)
	}

	log, closeLog, err := logging.File(cfg.Debug.LogFile, cfg.Debug.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	svc := backend.NewHTTPService(
		cfg.Server.BaseURL,
		cfg.Session.Viewer,
		time.Duration(cfg.Server.RequestTimeout)*time.Millisecond,
		log,
	)

	p := tea.NewProgram(tui.NewModel(svc, ref, log), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
