package caption

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `### Subjects
a red bicycle, a brick wall, a street

### Actions
leaning against the wall

### Setting
an urban street during the day

### Visual Attributes
bright red paint, rough brick texture, warm daylight

### Visible Text
none

### Notable Details
a small dent on the front wheel

### Search Keywords
bicycle, red bicycle, brick wall, street scene, urban
`

func TestParseCaptionResponseWellFormed(t *testing.T) {
	result := parseCaptionResponse(sampleResponse)
	require.NotNil(t, result)

	assert.Contains(t, result.Caption, "leaning against the wall")
	assert.NotContains(t, result.Caption, "###")
	assert.LessOrEqual(t, len(result.Caption), maxCaptionLen)

	assert.Contains(t, result.Tags, "bicycle")
	assert.Contains(t, result.Tags, "red-bicycle")
	assert.Contains(t, result.Tags, "a-brick-wall")
	assert.LessOrEqual(t, len(result.Tags), maxTags)
}

func TestParseCaptionResponseFallsBackOnUnstructuredText(t *testing.T) {
	raw := "A plain description with no headings at all, just prose about a cat sitting on a mat."
	result := parseCaptionResponse(raw)
	require.NotNil(t, result)

	assert.Equal(t, strings.Join(strings.Fields(raw), " "), result.Caption)
	assert.Contains(t, result.Tags, "cat")
	assert.LessOrEqual(t, len(result.Tags), 10)
}

func TestParseCaptionResponseTruncatesFallback(t *testing.T) {
	raw := strings.Repeat("word ", 200)
	result := parseCaptionResponse(raw)
	assert.LessOrEqual(t, len(result.Caption), maxFallbackLen)
}

func TestNormalizeTextMatchesAcrossCaseAndWhitespace(t *testing.T) {
	a := NormalizeText("RED  Bicycle")
	b := NormalizeText("red bicycle")
	assert.Equal(t, a, b)
	assert.Equal(t, "red bicycle", a)
}
