package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/images"
	"github.com/dcrane/planwise/internal/services"
	appErrors "github.com/dcrane/planwise/pkg/errors"
	"github.com/dcrane/planwise/pkg/response"
)

// ImageHandler serves raw image payloads and the cache admin endpoints.
type ImageHandler struct {
	service *services.SubtaskService
	cache   imagecache.Store
}

// NewImageHandler constructs an image handler.
func NewImageHandler(db *gorm.DB, engine *images.Engine, cache imagecache.Store) (*ImageHandler, error) {
	service, err := services.NewSubtaskService(db, engine)
	if err != nil {
		return nil, err
	}
	return &ImageHandler{service: service, cache: cache}, nil
}

// Get streams one image's decoded payload. The cache is consulted first; on a
// miss the database row is loaded and the cache repopulated.
func (h *ImageHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var (
		base64Data string
		mimeType   string
	)

	if entry, ok := h.cache.Get(id); ok {
		base64Data = entry.Base64Data
		mimeType = entry.MimeType
	} else {
		row, err := h.service.ImagePayload(requestContext(c), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		h.cache.Put(row.ID, row.Base64Data, row.MimeType, row.Filename)
		base64Data = row.Base64Data
		mimeType = row.MimeType
	}

	decoded, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "stored image payload is not valid base64"))
		return
	}

	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, mimeType, decoded)
}

// CacheStats reports entry count and approximate size of the image cache.
func (h *ImageHandler) CacheStats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.cache.Stats())
}

// CacheSweep evicts cache entries older than max_age_days (default 30).
func (h *ImageHandler) CacheSweep(c *gin.Context) {
	maxAgeDays := parseIntQuery(c, "max_age_days", imagecache.DefaultMaxAgeDays)
	if maxAgeDays <= 0 {
		response.Error(c, appErrors.NewBadRequest("max_age_days must be positive"))
		return
	}

	removed := h.cache.Sweep(maxAgeDays)
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}
