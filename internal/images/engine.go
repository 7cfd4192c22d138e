package images

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/models"
	"github.com/dcrane/planwise/pkg/logger"
	"github.com/dcrane/planwise/pkg/metrics"
)

var (
	// dataURLImgRe matches an img tag whose src holds a base64 data URL,
	// capturing the mime type and payload.
	dataURLImgRe = regexp.MustCompile(`<img[^>]*?src="data:([^;"]+);base64,([^"]*)"[^>]*?/?>`)

	// srcAttrRe matches the data-URL src attribute within a single tag.
	srcAttrRe = regexp.MustCompile(`\s?src="data:[^"]*"`)
)

// Extracted describes one embedded image found in description HTML, in
// left-to-right order of appearance.
type Extracted struct {
	MimeType   string
	Base64Data string
	Filename   string
	Order      int
}

// Engine rewrites subtask description HTML between its stored form (inline
// images referenced by id) and its display form (inline data URLs), backed by
// the image rows in the database and a read-through payload cache.
type Engine struct {
	db    *gorm.DB
	cache imagecache.Store
	log   *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(db *gorm.DB, cache imagecache.Store) (*Engine, error) {
	if db == nil {
		return nil, errors.New("images: db is required")
	}
	if cache == nil {
		return nil, errors.New("images: cache store is required")
	}
	return &Engine{db: db, cache: cache, log: logger.WithModule("images")}, nil
}

// Extract scans HTML for data-URL embedded images and validates every match.
// A single invalid image rejects the whole batch so nothing is persisted
// partially. Returns matches in order of appearance with 1-based order and
// synthesised image-<n>.<ext> filenames.
func Extract(html string) ([]Extracted, error) {
	matches := dataURLImgRe.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	extracted := make([]Extracted, 0, len(matches))
	for i, match := range matches {
		mimeType, payload := match[1], match[2]
		if err := ValidateImage(mimeType, payload); err != nil {
			return nil, err
		}
		extracted = append(extracted, Extracted{
			MimeType:   mimeType,
			Base64Data: payload,
			Filename:   fmt.Sprintf("image-%d.%s", i+1, extensionForMime(mimeType)),
			Order:      i + 1,
		})
	}
	return extracted, nil
}

// ExtractAndRegister runs the write path inside the caller's transaction:
// extract and validate embedded images, persist them as rows owned by the
// subtask, and rewrite the HTML so each data-URL tag carries a stable
// data-image-id reference instead of the raw payload.
//
// Tags are consumed left-to-right exactly once, so the k-th created row tags
// the k-th embedded image. The caller must invoke RegisterInCache with the
// returned rows only after its transaction commits.
func (e *Engine) ExtractAndRegister(ctx context.Context, tx *gorm.DB, subtaskID, html string) (string, []models.SubtaskImage, error) {
	extracted, err := Extract(html)
	if err != nil {
		return "", nil, err
	}
	if len(extracted) == 0 {
		return html, nil, nil
	}

	rows := make([]models.SubtaskImage, 0, len(extracted))
	for _, img := range extracted {
		rows = append(rows, models.SubtaskImage{
			SubtaskID:  subtaskID,
			Filename:   img.Filename,
			MimeType:   img.MimeType,
			Base64Data: img.Base64Data,
			Order:      img.Order,
		})
	}

	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return "", nil, fmt.Errorf("images: persist extracted images: %w", err)
	}

	metrics.ImagesExtracted.Add(float64(len(rows)))
	return tagReferences(html, rows), rows, nil
}

// RegisterInCache primes the payload cache for freshly persisted images so the
// first read is a hit. Call only after the owning transaction has committed.
func (e *Engine) RegisterInCache(rows []models.SubtaskImage) {
	for _, row := range rows {
		e.cache.Put(row.ID, row.Base64Data, row.MimeType, row.Filename)
	}
}

// Forget drops cache entries for deleted image rows. The cache has no
// foreign-key awareness, so every deletion path must enumerate affected ids.
func (e *Engine) Forget(ids ...string) {
	for _, id := range ids {
		e.cache.Remove(id)
	}
}

// tagReferences replaces, one at a time in ascending order, the first
// remaining data-URL img tag with the same tag carrying the persisted row's
// data-image-id. The payload is stripped from the stored HTML; it lives only
// in the image row and the cache.
func tagReferences(html string, rows []models.SubtaskImage) string {
	next := 0
	return dataURLImgRe.ReplaceAllStringFunc(html, func(tag string) string {
		if next >= len(rows) {
			return tag
		}
		id := rows[next].ID
		next++
		return srcAttrRe.ReplaceAllString(tag, fmt.Sprintf(` data-image-id="%s"`, id))
	})
}

// ResolveForDisplay rewrites stored description HTML into client-renderable
// form: every tag marked with a known data-image-id gets its src set to a full
// data URL. Payloads come from the cache, falling back to the database and
// repopulating the cache on miss.
//
// Resolution is independent per image. A metadata record whose payload no
// longer exists leaves its tag unresolved rather than failing the request.
func (e *Engine) ResolveForDisplay(ctx context.Context, html string, metas []models.SubtaskImage) string {
	if len(metas) == 0 {
		return html
	}

	for _, meta := range metas {
		payload, ok := e.resolvePayload(ctx, meta)
		if !ok {
			continue
		}
		html = substituteByID(html, meta.ID, meta.MimeType, payload)
	}
	return html
}

func (e *Engine) resolvePayload(ctx context.Context, meta models.SubtaskImage) (string, bool) {
	if entry, ok := e.cache.Get(meta.ID); ok {
		return entry.Base64Data, true
	}

	var row models.SubtaskImage
	err := e.db.WithContext(ctx).Take(&row, "id = ?", meta.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false
	}
	if err != nil {
		e.log.Warn("image payload fetch failed", zap.String("image_id", meta.ID), zap.Error(err))
		return "", false
	}

	e.cache.Put(row.ID, row.Base64Data, row.MimeType, row.Filename)
	return row.Base64Data, true
}

// substituteByID rewrites the src attribute (inserting one when absent) of the
// img tag carrying the given data-image-id, preserving all other attributes.
func substituteByID(html, id, mimeType, payload string) string {
	tagRe := regexp.MustCompile(`<img[^>]*?data-image-id="` + regexp.QuoteMeta(id) + `"[^>]*?/?>`)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, payload)

	return tagRe.ReplaceAllStringFunc(html, func(tag string) string {
		if anySrcRe.MatchString(tag) {
			return anySrcRe.ReplaceAllString(tag, fmt.Sprintf(` src="%s"`, dataURL))
		}
		return strings.Replace(tag, "<img", fmt.Sprintf(`<img src="%s"`, dataURL), 1)
	})
}

var anySrcRe = regexp.MustCompile(`\s?src="[^"]*"`)
