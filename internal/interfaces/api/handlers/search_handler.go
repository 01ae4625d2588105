package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/response"
	"driveingest/internal/search"
)

type SearchHandler struct {
	engine *search.Engine
}

func NewSearchHandler(e *search.Engine) *SearchHandler {
	return &SearchHandler{engine: e}
}

// Search handles the Search endpoint of spec §6's Public API surface.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	folderID, err := uuid.Parse(c.Query("folderId"))
	if err != nil {
		return apperr.New(apperr.InvalidInput, "folderId must be a uuid", err)
	}
	query := c.Query("query")
	if query == "" {
		return apperr.New(apperr.InvalidInput, "query is required", nil)
	}
	topK := 20
	if raw := c.Query("topK"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperr.New(apperr.InvalidInput, "topK must be an integer", err)
		}
		topK = parsed
	}

	start := time.Now()
	result, err := h.engine.Search(c.UserContext(), folderID, query, topK)
	if err != nil {
		return err
	}

	return response.SuccessResponse(c, "search completed", fiber.Map{
		"hits":       result.Hits,
		"searchType": result.SearchType,
		"timingMs":   time.Since(start).Milliseconds(),
	})
}
