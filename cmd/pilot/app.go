package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"scenepilot/internal/config"
	"scenepilot/internal/core"
	"scenepilot/internal/perception"
	"scenepilot/internal/registry"
	"scenepilot/internal/retrieval"
	"scenepilot/internal/session"
	"scenepilot/internal/store"
	"scenepilot/internal/tools"
	"scenepilot/internal/types"
)

// app bundles the wired pipeline for CLI commands.
type app struct {
	cfg          *config.Config
	cfgPath      string
	reg          *registry.Registry
	engine       *tools.SceneEngine
	sess         *session.Manager
	equipment    *retrieval.Store
	db           *store.Store
	orchestrator *core.Orchestrator
	watcher      *config.Watcher
	aiEnabled    bool
}

// newApp loads config and persisted state from the workspace and builds
// the orchestrator. The AI path attaches only when a key is configured
// and --local was not given.
func newApp() (*app, error) {
	ws := resolveWorkspace()
	cfgPath := filepath.Join(ws, ".pilot", "pilot.yaml")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg := registry.New()
	if err := loadEntities(reg, filepath.Join(ws, ".pilot", "entities.json")); err != nil {
		return nil, err
	}

	dbPath := cfg.Store.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws, dbPath)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	sess := session.New(cfg.Session)

	equipment := retrieval.New()
	equipment.BindSession(sess)
	records, err := db.LoadEquipment()
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(records) > 0 {
		if _, err := equipment.InsertBatch(records); err != nil {
			db.Close()
			return nil, err
		}
	}

	engine := tools.NewSceneEngine(reg, homePose(cfg.Scene))
	toolReg := tools.NewRegistry()
	toolReg.MustRegister(tools.NewLayerControlTool(engine))
	toolReg.MustRegister(tools.NewCameraControlTool(engine))
	toolReg.MustRegister(tools.NewFeatureControlTool(engine))

	a := &app{
		cfg:          cfg,
		cfgPath:      cfgPath,
		reg:          reg,
		engine:       engine,
		sess:         sess,
		equipment:    equipment,
		db:           db,
		orchestrator: core.New(cfg, reg, toolReg, engine, sess),
	}

	if !localOnly && cfg.AIEnabled() {
		client, err := perception.NewClient(cfg.LLM)
		if err != nil {
			logger.Warn("completion client unavailable, using local pipeline", zap.Error(err))
		} else {
			a.orchestrator.AttachAI(client)
			a.aiEnabled = true
		}
	}

	return a, nil
}

// watchConfig starts the live-reload watcher for the interactive loop.
// Reloads only swap tuning values; a watcher failure is not fatal.
func (a *app) watchConfig(ctx context.Context) {
	w, err := config.NewWatcher(a.cfgPath, func(cfg *config.Config) {
		a.orchestrator.ApplyConfig(cfg)
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
		return
	}
	if err := w.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", zap.Error(err))
		return
	}
	a.watcher = w
}

func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// homePose centers the default camera over the scene envelope.
func homePose(scene config.SceneConfig) types.CameraPose {
	return types.CameraPose{
		Longitude: (scene.West + scene.East) / 2,
		Latitude:  (scene.South + scene.North) / 2,
		Height:    5000,
		Pitch:     -90,
	}
}

// loadEntities seeds the registry from a JSON entity list. A missing
// file leaves the registry empty.
func loadEntities(reg *registry.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read entities file: %w", err)
	}

	var entities []types.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return fmt.Errorf("parse entities file: %w", err)
	}
	for i := range entities {
		if err := reg.Register(&entities[i]); err != nil {
			return fmt.Errorf("register entity %s: %w", entities[i].ID, err)
		}
	}
	return nil
}
