// Package store persists the run ledger: one record per engine dispatch.
package store

import (
	"context"

	"github.com/me/balsamic/pkg/model"
)

// Store defines the persistence layer for run records.
type Store interface {
	// Run CRUD
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRunsByCase(ctx context.Context, caseID string) ([]*model.Run, error)
	UpdateRun(ctx context.Context, run *model.Run) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
