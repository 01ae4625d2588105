// Package search implements C9: classifying a query as lexical or semantic,
// dispatching to the Store's filename or similarity search, and degrading
// gracefully when the vector backend is unavailable. Grounded on the
// teacher's infrastructure/postgres/face_repository_impl.go similarity-query
// pattern (reused via the Store) and the general "classify then dispatch"
// shape of its search-adjacent handlers; no direct teacher analogue for
// query classification since the teacher has no text search, so the
// classification rule and cleanCaption are built fresh to spec §4.9.
package search

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"driveingest/internal/domain/models"
	"driveingest/internal/infrastructure/caption"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/logger"
)

const (
	TypeSemantic = "semantic"
	TypeFilename = "filename"
)

// Hit is one ranked search result.
type Hit struct {
	ImageID      uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	ViewURL      string    `json:"viewUrl"`
	Caption      string    `json:"caption"`
	Tags         []string  `json:"tags"`
	Similarity   float64   `json:"similarity"`
}

// Result is the full search response, including which path served it.
type Result struct {
	Hits       []Hit  `json:"hits"`
	SearchType string `json:"searchType"`
}

type Engine struct {
	store   store.Store
	caption *caption.Adapter
}

func New(st store.Store, captionAdapter *caption.Adapter) *Engine {
	return &Engine{store: st, caption: captionAdapter}
}

// Search classifies the query per spec §4.9's rule (a dot, or length < 3,
// means lexical) and dispatches accordingly. topK is clamped to [1,50].
func (e *Engine) Search(ctx context.Context, folderID uuid.UUID, query string, topK int) (*Result, error) {
	if topK < 1 {
		topK = 1
	}
	if topK > 50 {
		topK = 50
	}

	trimmed := strings.TrimSpace(query)
	if isLexical(trimmed) {
		return e.searchLexical(ctx, folderID, trimmed, topK)
	}
	return e.searchSemantic(ctx, folderID, trimmed, topK)
}

func isLexical(trimmed string) bool {
	return strings.Contains(trimmed, ".") || len(trimmed) < 3
}

func (e *Engine) searchLexical(ctx context.Context, folderID uuid.UUID, query string, topK int) (*Result, error) {
	results, err := e.store.SearchByFilename(ctx, folderID, query, topK)
	if err != nil {
		return nil, err
	}
	return &Result{Hits: toHits(results), SearchType: TypeFilename}, nil
}

func (e *Engine) searchSemantic(ctx context.Context, folderID uuid.UUID, query string, topK int) (*Result, error) {
	if err := e.store.EnsureVectorInfra(ctx); err != nil {
		if apperr.Is(err, apperr.VectorBackendUnavailable) {
			logger.Search("degrade_to_lexical", "vector backend unavailable, degrading to lexical search", map[string]interface{}{
				"folderId": folderID.String(),
			})
			return e.searchLexical(ctx, folderID, query, topK)
		}
		return nil, err
	}

	normalized := caption.NormalizeText(query)
	vector, err := e.caption.Embed(ctx, normalized)
	if err != nil {
		return nil, err
	}

	results, err := e.store.SearchBySimilarity(ctx, folderID, vector, topK)
	if err != nil {
		if apperr.Is(err, apperr.VectorBackendUnavailable) {
			return e.searchLexical(ctx, folderID, query, topK)
		}
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, toHit(r.Image, r.Similarity))
	}
	return &Result{Hits: hits, SearchType: TypeSemantic}, nil
}

func toHits(results []store.FilenameSearchResult) []Hit {
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, toHit(r.Image, r.Similarity))
	}
	return hits
}

func toHit(image models.Image, similarity float64) Hit {
	return Hit{
		ImageID:      image.ID,
		Name:         image.Name,
		ThumbnailURL: image.ThumbnailURL,
		ViewURL:      image.ViewURL,
		Caption:      CleanCaption(derefString(image.Caption)),
		Tags:         image.TagList(),
		Similarity:   clampSimilarity(similarity),
	}
}

func clampSimilarity(s float64) float64 {
	return float64(int(s*1000+0.5)) / 1000
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var (
	fencedCodeMarker = regexp.MustCompile("```[a-zA-Z]*")
)

// CleanCaption implements spec §4.9/§9: decode &quot;, strip fenced-code
// markers, and unwrap a legacy {"caption":"..."} JSON-wrapped shape.
func CleanCaption(raw string) string {
	s := strings.ReplaceAll(raw, "&quot;", "\"")
	s = fencedCodeMarker.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")

	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, "\"caption\"") {
		var wrapped struct {
			Caption string `json:"caption"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && wrapped.Caption != "" {
			return wrapped.Caption
		}
	}

	return strings.TrimSpace(s)
}
