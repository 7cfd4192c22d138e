package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/database/testutil"
	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/images"
)

func newTestEngine(t *testing.T) (*gorm.DB, *images.Engine, imagecache.Store) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	cache := imagecache.NewFileStore(filepath.Join(t.TempDir(), "images.json"))

	engine, err := images.NewEngine(db, cache)
	require.NoError(t, err)
	return db, engine, cache
}

func mustCreateProject(t *testing.T, svc *ProjectService, name string) *ProjectDTO {
	t.Helper()

	project, err := svc.Create(context.Background(), CreateProjectInput{Name: name})
	require.NoError(t, err)
	return project
}
