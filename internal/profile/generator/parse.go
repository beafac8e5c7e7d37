package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
)

var errMalformed = errors.New("malformed profile")

// CleanJSON strips markdown code fences and any prose around the JSON payload
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)

	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	clean = strings.TrimSpace(clean)

	if start, end := strings.IndexAny(clean, "[{"), strings.LastIndexAny(clean, "]}"); start >= 0 && end > start {
		clean = clean[start : end+1]
	}
	return clean
}

type rawSection struct {
	Section string          `json:"section"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Sources json.RawMessage `json:"sources"`
}

// ParseSections decodes the model reply into ordered sections. The reply must
// be a JSON array (or an object with a "sections" array) of at least one
// section, and every section needs a title.
func ParseSections(reply string) ([]domain.ProfileSection, error) {
	payload := CleanJSON(reply)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty reply", errMalformed)
	}

	var raw []rawSection
	if strings.HasPrefix(payload, "{") {
		var wrapper struct {
			Sections []rawSection `json:"sections"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		raw = wrapper.Sections
	} else if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no sections", errMalformed)
	}

	sections := make([]domain.ProfileSection, 0, len(raw))
	for i, r := range raw {
		title := strings.TrimSpace(r.Section)
		if title == "" {
			title = strings.TrimSpace(r.Title)
		}
		if title == "" {
			return nil, fmt.Errorf("%w: section %d has no title", errMalformed, i+1)
		}
		sources, err := decodeSources(r.Sources)
		if err != nil {
			return nil, fmt.Errorf("%w: section %q: %v", errMalformed, title, err)
		}
		sections = append(sections, domain.ProfileSection{
			Title:   title,
			Content: strings.TrimSpace(r.Content),
			Sources: sources,
		})
	}
	return sections, nil
}

// decodeSources accepts either a string or a list of strings
func decodeSources(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", errors.New("sources must be a string or a list of strings")
	}
	return strings.Join(list, ", "), nil
}

var (
	tempFilePattern   = regexp.MustCompile(`tmp[a-zA-Z0-9]+\.[a-z]+`)
	tempParenPattern  = regexp.MustCompile(`\(tmp[^)]*\)`)
	doubleCommaRegexp = regexp.MustCompile(`,\s*,`)
	trailingComma     = regexp.MustCompile(`,\s*$`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
)

// CleanSources replaces uploaded file names with their citation labels and
// strips temporary file names the model may have echoed.
func CleanSources(sources string, labels map[string]string) string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		if name != "" {
			names = append(names, name)
		}
	}
	// Longest first so "cv.pdf" does not clobber "old_cv.pdf".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		sources = strings.ReplaceAll(sources, name, labels[name])
	}

	sources = tempFilePattern.ReplaceAllString(sources, "Document")
	sources = tempParenPattern.ReplaceAllString(sources, "")
	sources = doubleCommaRegexp.ReplaceAllString(sources, ",")
	sources = trailingComma.ReplaceAllString(sources, "")
	sources = whitespaceRun.ReplaceAllString(sources, " ")
	return strings.TrimSpace(sources)
}
