package app

import (
	"context"
	"fmt"

	"github.com/archtower/aptsync/internal/sync"
)

// engine builds a sync Engine wired to the configured source and target
// archives and the dak facade, ready for one SyncPackages or Autosync call.
func (a *Application) engine(ctx context.Context) (*sync.Engine, error) {
	source, err := a.sourceFacade(ctx)
	if err != nil {
		return nil, err
	}

	return sync.New(&a.Config.Sync, source, a.targetFacade(), a.dakFacade(), a.MainPool), nil
}

// SyncPackages imports the named packages of component from the configured
// source archive into the configured target archive.
func (a *Application) SyncPackages(ctx context.Context, component string, names []string, force bool) (bool, error) {
	eng, err := a.engine(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to build sync engine: %w", err)
	}

	return eng.SyncPackages(ctx, component, names, force)
}

// Autosync walks every component of the configured target suite, importing
// every newer, non-forked source package and its binaries.
func (a *Application) Autosync(ctx context.Context) (bool, error) {
	eng, err := a.engine(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to build sync engine: %w", err)
	}

	return eng.Autosync(ctx)
}
