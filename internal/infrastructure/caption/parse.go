package caption

import (
	"regexp"
	"strings"
)

// sectionHeader matches a markdown heading of level 1-4, optionally wrapped
// in bold markers, so the parser
// tolerates minor formatting drift from the model (spec §9: "parse by
// locating labeled sections with a forgiving grammar").
var sectionHeader = regexp.MustCompile(`(?m)^#{1,4}\s*\*{0,2}([A-Za-z ]+?)\*{0,2}\s*$`)

const (
	maxCaptionLen  = 1500
	maxFallbackLen = 500
	maxTagLen      = 30
	maxTags        = 20
)

// parseCaptionResponse implements the §4.3 grammar: locate section headers,
// extract Search Keywords + first five Subjects tokens as tags, and the
// whole stripped/normalized markdown as the caption body. On any parse
// failure it falls back to a safe truncated-text + word-token extraction.
func parseCaptionResponse(raw string) *Result {
	sections := splitSections(raw)
	if len(sections) == 0 {
		return fallbackResult(raw)
	}

	keywords := sections["search keywords"]
	subjects := sections["subjects"]
	if keywords == "" && subjects == "" {
		return fallbackResult(raw)
	}

	tags := extractTags(keywords, subjects)

	body := stripMarkers(raw)
	body = normalizeWhitespace(body)
	if len(body) > maxCaptionLen {
		body = body[:maxCaptionLen]
	}

	return &Result{Caption: body, Tags: tags}
}

// splitSections returns a map of lowercased section name -> section body,
// by locating successive headings and taking the text between them.
func splitSections(raw string) map[string]string {
	locs := sectionHeader.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return nil
	}

	sections := make(map[string]string)
	for i, loc := range locs {
		name := strings.ToLower(strings.TrimSpace(raw[loc[2]:loc[3]]))
		contentStart := loc[1]
		contentEnd := len(raw)
		if i+1 < len(locs) {
			contentEnd = locs[i+1][0]
		}
		sections[name] = strings.TrimSpace(raw[contentStart:contentEnd])
	}
	return sections
}

// extractTags implements §4.3: comma-split + lowercase + spaces→hyphens +
// length filter on Search Keywords, union the first five Subjects tokens,
// dedup preserving order, cap at 20.
func extractTags(keywords, subjects string) []string {
	seen := make(map[string]bool)
	var tags []string

	addTag := func(raw string) {
		t := strings.ToLower(strings.TrimSpace(raw))
		t = strings.ReplaceAll(t, " ", "-")
		if t == "" || len(t) > maxTagLen {
			return
		}
		if seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}

	for _, part := range strings.Split(keywords, ",") {
		addTag(part)
	}

	subjectTokens := strings.Split(subjects, ",")
	for i, tok := range subjectTokens {
		if i >= 5 {
			break
		}
		addTag(tok)
	}

	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

// stripMarkers removes the markdown heading markers and bold markers the
// model emits, leaving prose.
func stripMarkers(raw string) string {
	s := sectionHeader.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "```", "")
	return s
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// fallbackResult is used when the response doesn't match the expected
// section grammar: truncate the raw text and extract plain word tokens.
func fallbackResult(raw string) *Result {
	normalized := normalizeWhitespace(raw)
	caption := normalized
	if len(caption) > maxFallbackLen {
		caption = caption[:maxFallbackLen]
	}

	seen := make(map[string]bool)
	var tags []string
	for _, word := range strings.Fields(strings.ToLower(normalized)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if len(word) < 3 || len(word) > 15 {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		tags = append(tags, word)
		if len(tags) >= 10 {
			break
		}
	}

	return &Result{Caption: caption, Tags: tags}
}
