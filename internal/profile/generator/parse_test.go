package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain array", `[{"section":"A"}]`, `[{"section":"A"}]`},
		{"json fence", "```json\n[{\"section\":\"A\"}]\n```", `[{"section":"A"}]`},
		{"bare fence", "```\n[1]\n```", `[1]`},
		{"leading prose", "Here is the profile:\n[1, 2]\nHope it helps.", `[1, 2]`},
		{"object", "  {\"sections\": []}  ", `{"sections": []}`},
		{"trailing prose", "[1, 2]\n\nLet me know if you need more detail.", `[1, 2]`},
		{"fence then prose", "```json\n[1]\n```\nAnything else?", `[1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.input))
		})
	}
}

func TestParseSections(t *testing.T) {
	reply := "```json\n" + `[
		{"section": "Summary", "content": " Calm and methodical. ", "sources": "CV"},
		{"title": "Strengths", "content": "Planning", "sources": ["CV", "Interview Notes"]},
		{"section": "Risk Factors", "content": "None noted"}
	]` + "\n```"

	sections, err := ParseSections(reply)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, "Summary", sections[0].Title)
	assert.Equal(t, "Calm and methodical.", sections[0].Content)
	assert.Equal(t, "CV", sections[0].Sources)
	assert.Equal(t, "Strengths", sections[1].Title)
	assert.Equal(t, "CV, Interview Notes", sections[1].Sources)
	assert.Equal(t, "", sections[2].Sources)
}

func TestParseSections_WrappedObject(t *testing.T) {
	sections, err := ParseSections(`{"sections": [{"section": "Summary", "content": "x"}]}`)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "Summary", sections[0].Title)
}

func TestParseSections_TrailingProse(t *testing.T) {
	reply := `[{"section": "Summary", "content": "Steady"}]` + "\n\nLet me know if you need more detail."

	sections, err := ParseSections(reply)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "Steady", sections[0].Content)
}

func TestParseSections_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", "   "},
		{"prose only", "I cannot help with that."},
		{"no sections", "[]"},
		{"untitled section", `[{"content": "orphan"}]`},
		{"bad sources", `[{"section": "A", "sources": 42}]`},
		{"truncated", `[{"section": "A", "content": "cut`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSections(tt.reply)
			require.Error(t, err)
			assert.ErrorIs(t, err, errMalformed)
		})
	}
}

func TestCleanSources(t *testing.T) {
	labels := map[string]string{
		"cv.pdf":     "CV",
		"old_cv.pdf": "Previous CV",
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"replaces file names", "cv.pdf, old_cv.pdf", "CV, Previous CV"},
		{"temp file name", "tmpAb12x9.pdf", "Document"},
		{"temp in parentheses", "CV (tmpxyz.docx), Interview", "CV (Document), Interview"},
		{"temp label in parentheses", "CV (tmp_upload_1), Interview", "CV , Interview"},
		{"double comma", "CV, , Interview", "CV, Interview"},
		{"trailing comma", "CV, ", "CV"},
		{"whitespace", "  CV\n\tand   notes ", "CV and notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSources(tt.input, labels))
		})
	}
}
