package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLexicalClassification(t *testing.T) {
	assert.True(t, isLexical("IMG_001.jpg"))
	assert.True(t, isLexical("a"))
	assert.True(t, isLexical("ok"))
	assert.False(t, isLexical("red bicycle"))
	assert.False(t, isLexical("a brick wall scene"))
}

func TestCleanCaptionDecodesEntitiesAndStripsMarkers(t *testing.T) {
	raw := "```\nA photo showing a &quot;red&quot; bicycle.\n```"
	assert.Equal(t, `A photo showing a "red" bicycle.`, CleanCaption(raw))
}

func TestCleanCaptionUnwrapsLegacyJSON(t *testing.T) {
	raw := `{"caption":"a red bicycle leaning against a wall"}`
	assert.Equal(t, "a red bicycle leaning against a wall", CleanCaption(raw))
}

func TestCleanCaptionPassesThroughPlainText(t *testing.T) {
	raw := "a red bicycle leaning against a wall"
	assert.Equal(t, raw, CleanCaption(raw))
}

func TestClampSimilarityRoundsToThreeDecimals(t *testing.T) {
	assert.Equal(t, 0.733, clampSimilarity(0.7333333))
	assert.Equal(t, 1.0, clampSimilarity(1.0))
}
