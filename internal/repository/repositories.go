package repository

import (
	"context"
	"fmt"

	"github.com/deppfellow/abaita/internal/registry"
)

// PunchTable is the table badge punches are stored in.
const PunchTable = "abaita"

// Repositories is a container for all repository instances.
type Repositories struct {
	Punches *PunchRepository
}

// NewRepositories reflects the tables the repositories need on the named
// connection ("" for the default) and builds the container.
func NewRepositories(ctx context.Context, reg *registry.Registry, connection string) (*Repositories, error) {
	types, err := reg.Reflect(ctx, connection, PunchTable)
	if err != nil {
		return nil, fmt.Errorf("mapping repository tables: %w", err)
	}
	return &Repositories{
		Punches: NewPunchRepository(types[PunchTable]),
	}, nil
}
