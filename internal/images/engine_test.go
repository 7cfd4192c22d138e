package images

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/database/testutil"
	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/models"
	apperrors "github.com/dcrane/planwise/pkg/errors"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB, imagecache.Store) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	cache := imagecache.NewFileStore(filepath.Join(t.TempDir(), "images.json"))

	engine, err := NewEngine(db, cache)
	require.NoError(t, err)
	return engine, db, cache
}

func mustCreateSubtask(t *testing.T, db *gorm.DB) models.Subtask {
	t.Helper()

	project := models.Project{Name: "Home lab"}
	require.NoError(t, db.Create(&project).Error)

	task := models.Task{ProjectID: project.ID, Title: "Rack install"}
	require.NoError(t, db.Create(&task).Error)

	subtask := models.Subtask{TaskID: task.ID, Title: "Wiring diagram"}
	require.NoError(t, db.Create(&subtask).Error)
	return subtask
}

func TestExtract_OrderAndFilenames(t *testing.T) {
	html := `<p><img src="data:image/png;base64,AAAA"/> and <img alt="b" src="data:image/jpeg;base64,BBBB"/></p>`

	extracted, err := Extract(html)
	require.NoError(t, err)
	require.Len(t, extracted, 2)

	require.Equal(t, 1, extracted[0].Order)
	require.Equal(t, "image/png", extracted[0].MimeType)
	require.Equal(t, "AAAA", extracted[0].Base64Data)
	require.Equal(t, "image-1.png", extracted[0].Filename)

	require.Equal(t, 2, extracted[1].Order)
	require.Equal(t, "image/jpeg", extracted[1].MimeType)
	require.Equal(t, "image-2.jpeg", extracted[1].Filename)
}

func TestExtract_NoImages(t *testing.T) {
	extracted, err := Extract(`<p>No pictures here</p>`)
	require.NoError(t, err)
	require.Empty(t, extracted)
}

func TestExtract_RejectsWholeBatchOnInvalidType(t *testing.T) {
	html := `<img src="data:image/png;base64,AAAA"/><img src="data:image/tiff;base64,BBBB"/>`

	extracted, err := Extract(html)
	require.ErrorIs(t, err, apperrors.ErrImageTypeNotAllowed)
	require.Nil(t, extracted)
}

func TestEngine_ExtractAndRegister_SingleImage(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	subtask := mustCreateSubtask(t, db)
	ctx := context.Background()

	html := `<p>See <img src="data:image/png;base64,AAAA"/></p>`

	var rewritten string
	var rows []models.SubtaskImage
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		rewritten, rows, txErr = engine.ExtractAndRegister(ctx, tx, subtask.ID, html)
		return txErr
	})
	require.NoError(t, err)

	require.Len(t, rows, 1)
	require.Equal(t, "image/png", rows[0].MimeType)
	require.Equal(t, "image-1.png", rows[0].Filename)
	require.Equal(t, 1, rows[0].Order)
	require.NotEmpty(t, rows[0].ID)

	require.Contains(t, rewritten, fmt.Sprintf(`data-image-id="%s"`, rows[0].ID))
	require.NotContains(t, rewritten, "base64,AAAA")

	var count int64
	require.NoError(t, db.Model(&models.SubtaskImage{}).Where("subtask_id = ?", subtask.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEngine_ExtractAndRegister_PreservesLeftToRightOrder(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	subtask := mustCreateSubtask(t, db)
	ctx := context.Background()

	html := `<img src="data:image/png;base64,AAAA"/><img src="data:image/gif;base64,BBBB"/><img src="data:image/webp;base64,CCCC"/>`

	var rewritten string
	var rows []models.SubtaskImage
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		rewritten, rows, txErr = engine.ExtractAndRegister(ctx, tx, subtask.ID, html)
		return txErr
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// The k-th id must land on the k-th tag.
	for i, row := range rows {
		require.Equal(t, i+1, row.Order)
	}
	positions := make([]int, 0, 3)
	for _, row := range rows {
		idx := strings.Index(rewritten, fmt.Sprintf(`data-image-id="%s"`, row.ID))
		require.GreaterOrEqual(t, idx, 0)
		positions = append(positions, idx)
	}
	require.IsIncreasing(t, positions)
}

func TestEngine_ExtractAndRegister_ValidationAbortsTransaction(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	subtask := mustCreateSubtask(t, db)
	ctx := context.Background()

	html := `<img src="data:image/png;base64,AAAA"/><img src="data:image/tiff;base64,BBBB"/>`

	err := db.Transaction(func(tx *gorm.DB) error {
		_, _, txErr := engine.ExtractAndRegister(ctx, tx, subtask.ID, html)
		return txErr
	})
	require.ErrorIs(t, err, apperrors.ErrImageTypeNotAllowed)

	// Nothing was partially persisted.
	var count int64
	require.NoError(t, db.Model(&models.SubtaskImage{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEngine_RoundTrip(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	subtask := mustCreateSubtask(t, db)
	ctx := context.Background()

	html := `<p>Before <img class="inline" src="data:image/png;base64,AAAA"/> after <img src="data:image/jpeg;base64,BBBB"/></p>`

	var rewritten string
	var rows []models.SubtaskImage
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		rewritten, rows, txErr = engine.ExtractAndRegister(ctx, tx, subtask.ID, html)
		return txErr
	})
	require.NoError(t, err)
	engine.RegisterInCache(rows)

	// Fetch metadata without payloads, as the read path does.
	var metas []models.SubtaskImage
	require.NoError(t, db.
		Omit("base64_data").
		Where("subtask_id = ?", subtask.ID).
		Order("display_order ASC").
		Find(&metas).Error)
	require.Len(t, metas, 2)

	display := engine.ResolveForDisplay(ctx, rewritten, metas)
	require.Contains(t, display, `src="data:image/png;base64,AAAA"`)
	require.Contains(t, display, `src="data:image/jpeg;base64,BBBB"`)
	// Other attributes survive both passes.
	require.Contains(t, display, `class="inline"`)
}

func TestEngine_ResolveRepopulatesCacheOnMiss(t *testing.T) {
	engine, db, cache := newTestEngine(t)
	subtask := mustCreateSubtask(t, db)
	ctx := context.Background()

	row := models.SubtaskImage{
		SubtaskID:  subtask.ID,
		Filename:   "image-1.png",
		MimeType:   "image/png",
		Base64Data: "AAAA",
		Order:      1,
	}
	require.NoError(t, db.Create(&row).Error)

	html := fmt.Sprintf(`<p><img data-image-id="%s"/></p>`, row.ID)
	meta := models.SubtaskImage{BaseModel: models.BaseModel{ID: row.ID}, MimeType: "image/png"}

	display := engine.ResolveForDisplay(ctx, html, []models.SubtaskImage{meta})
	require.Contains(t, display, `src="data:image/png;base64,AAAA"`)

	// Self-healing: the miss populated the cache.
	entry, ok := cache.Get(row.ID)
	require.True(t, ok)
	require.Equal(t, "AAAA", entry.Base64Data)
}

func TestEngine_ResolveToleratesMissingRecord(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	html := `<p><img data-image-id="ghost"/></p>`
	meta := models.SubtaskImage{BaseModel: models.BaseModel{ID: "ghost"}, MimeType: "image/png"}

	display := engine.ResolveForDisplay(ctx, html, []models.SubtaskImage{meta})
	require.Equal(t, html, display)
}

func TestEngine_ResolveNoImagesFastPath(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	html := `<p>plain</p>`
	require.Equal(t, html, engine.ResolveForDisplay(context.Background(), html, nil))
}

func TestEngine_Forget(t *testing.T) {
	engine, _, cache := newTestEngine(t)

	cache.Put("img-1", "AAAA", "image/png", "image-1.png")
	engine.Forget("img-1", "img-2")

	_, ok := cache.Get("img-1")
	require.False(t, ok)
}
