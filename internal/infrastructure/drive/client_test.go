package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"driveingest/internal/pkg/apperr"
)

func TestParseFolderURLAcceptsFoldersPath(t *testing.T) {
	id, err := ParseFolderURL("https://drive.google.com/drive/folders/1aBcD3fGhI")
	assert.NoError(t, err)
	assert.Equal(t, "1aBcD3fGhI", id)
}

func TestParseFolderURLAcceptsUserScopedFoldersPath(t *testing.T) {
	id, err := ParseFolderURL("https://drive.google.com/drive/u/2/folders/1aBcD3fGhI?usp=sharing")
	assert.NoError(t, err)
	assert.Equal(t, "1aBcD3fGhI", id)
}

func TestParseFolderURLAcceptsOpenIDQueryParam(t *testing.T) {
	id, err := ParseFolderURL("https://drive.google.com/open?id=1aBcD3fGhI")
	assert.NoError(t, err)
	assert.Equal(t, "1aBcD3fGhI", id)
}

func TestParseFolderURLRejectsUnrecognizedURL(t *testing.T) {
	_, err := ParseFolderURL("https://example.com/not-a-drive-url")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestParseFolderURLRejectsEmptyString(t *testing.T) {
	_, err := ParseFolderURL("")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}
