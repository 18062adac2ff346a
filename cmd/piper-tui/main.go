package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"piper-console/pkg/api"
	"piper-console/pkg/config"
	"piper-console/pkg/history"
)

func main() {
	cfg, err := config.Load(config.DefaultFile, config.DefaultEnvFile)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}

	logger := log.New(io.Discard, "", 0)
	if config.Debug() {
		if err := os.MkdirAll(cfg.DataDir(), 0o755); err == nil {
			if f, err := tea.LogToFile(filepath.Join(cfg.DataDir(), "console.log"), "piper"); err == nil {
				defer f.Close()
				logger = log.Default()
			}
		}
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		// The console works without a journal.
		logger.Printf("history disabled: %v", err)
		store = nil
	} else {
		defer store.Close()
	}

	m := newModel(deps{
		cfg:       cfg,
		client:    api.New(cfg.Server.BaseURL, cfg.TimeoutDuration()),
		store:     store,
		logger:    logger,
		intervals: cfg.Intervals(),
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
