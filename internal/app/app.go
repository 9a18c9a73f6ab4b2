package app

import (
	"fmt"
	"strings"

	"theduck/pkg/ai"
	"theduck/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store        store.Store
	ChatClient   ai.ChatClient
	DefaultModel string
	TitleModel   string
	SummaryModel string
	HistoryLimit int
}

// App wires storage and the upstream chat client behind the orchestrators.
// ChatClient may be nil when no API key is configured; every AI-dependent
// path then degrades to its deterministic fallback.
type App struct {
	store        store.Store
	llm          ai.ChatClient
	defaultModel string
	titleModel   string
	summaryModel string
	historyLimit int
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	defaultModel := strings.TrimSpace(cfg.DefaultModel)
	if defaultModel == "" {
		return nil, fmt.Errorf("default model required")
	}
	titleModel := strings.TrimSpace(cfg.TitleModel)
	if titleModel == "" {
		titleModel = defaultModel
	}
	summaryModel := strings.TrimSpace(cfg.SummaryModel)
	if summaryModel == "" {
		summaryModel = defaultModel
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &App{
		store:        cfg.Store,
		llm:          cfg.ChatClient,
		defaultModel: defaultModel,
		titleModel:   titleModel,
		summaryModel: summaryModel,
		historyLimit: historyLimit,
	}, nil
}

// AIConfigured reports whether an upstream client is available.
func (a *App) AIConfigured() bool {
	return a.llm != nil
}

// DefaultModel returns the model used when a request names none.
func (a *App) DefaultModel() string {
	return a.defaultModel
}

// Store exposes the persistence layer to the transport wiring.
func (a *App) Store() store.Store {
	return a.store
}
