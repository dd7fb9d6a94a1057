package catalog

import (
	"context"

	"github.com/google/uuid"
)

// FileRepository persists catalog files
type FileRepository interface {
	Save(ctx context.Context, file *CatalogFile) error
	FindByID(ctx context.Context, id uuid.UUID) (*CatalogFile, error)
	FindByPath(ctx context.Context, path string) (*CatalogFile, error)
	FindByStatus(ctx context.Context, status FileStatus, limit int) ([]CatalogFile, error)
	FindByScope(ctx context.Context, platform Platform, account string, domain DataDomain, limit int) ([]CatalogFile, error)
}
