package ingest

import (
	"path/filepath"

	"github.com/ziadkadry99/docqa/internal/tenant"
)

// Layout locates the per-tenant staging and processed directories.
type Layout struct {
	StagingRoot   string
	ProcessedRoot string
}

func (l Layout) StagingDir(tenantID string) string {
	return filepath.Join(l.StagingRoot, tenant.Dir(tenantID))
}

func (l Layout) ProcessedDir(tenantID string) string {
	return filepath.Join(l.ProcessedRoot, tenant.Dir(tenantID))
}

func (l Layout) StagingPath(tenantID, filename string) string {
	return filepath.Join(l.StagingDir(tenantID), filename)
}

func (l Layout) ProcessedPath(tenantID, filename string) string {
	return filepath.Join(l.ProcessedDir(tenantID), filename)
}
