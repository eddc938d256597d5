package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/branchlite/branchlite/internal/config"
	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/engine"
	"github.com/branchlite/branchlite/internal/logging"
	"github.com/branchlite/branchlite/internal/merge"
	"github.com/branchlite/branchlite/internal/store"
)

// app bundles the components a command needs: the store manager plus the
// engine and merger built over it. Close it when the command is done.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	stores *store.Manager
	eng    *engine.Engine
	merger *merge.Merger
}

// newApp opens the data directory from the loaded configuration and wires
// the engine and merger over it.
func newApp() (*app, error) {
	cfg, log := appCfg, appLog
	if cfg == nil {
		var err error
		cfg, err = config.NewLoader().Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if log == nil {
		log = logging.NewNop()
	}

	stores, err := store.NewManager(cfg.Data.Dir, log,
		store.WithBusyTimeout(time.Duration(cfg.SQL.BusyTimeoutMS)*time.Millisecond))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		log:    log,
		stores: stores,
		eng:    engine.New(stores, log, engine.WithMaxRows(cfg.SQL.MaxRows)),
		merger: merge.New(stores, log),
	}, nil
}

func (a *app) close() {
	if err := a.stores.Close(); err != nil {
		a.log.Warn("closing stores", "error", err)
	}
}

// resolveProject accepts a numeric project id or a project name.
func (a *app) resolveProject(ctx context.Context, ref string) (*core.Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("a project is required (use --project)")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.stores.GetProject(ctx, id)
	}
	return a.stores.GetProjectByName(ctx, ref)
}

// projectStore resolves a project reference and opens its store.
func (a *app) projectStore(ctx context.Context, ref string) (*core.Project, *store.ProjectStore, error) {
	p, err := a.resolveProject(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	ps, err := a.stores.Project(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, ps, nil
}

// resolveBranch accepts a numeric branch id or a branch name; empty means
// Main. Unknown names fall back to Main, matching how statements are scoped.
func resolveBranch(ctx context.Context, ps *store.ProjectStore, ref string) (*core.Branch, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ps.MainBranch(ctx)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return ps.ResolveBranchID(ctx, id)
	}
	return ps.ResolveBranch(ctx, ref)
}

// exactBranch resolves a branch reference without the Main fallback, for
// commands where a typo must not silently target Main.
func exactBranch(ctx context.Context, ps *store.ProjectStore, ref string) (*core.Branch, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("a branch is required (use --branch)")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return ps.ResolveBranchID(ctx, id)
	}
	return ps.BranchByName(ctx, ref)
}
