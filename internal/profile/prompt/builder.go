// Package prompt assembles the deterministic model requests for profiles and questions.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
)

// Options carries the sampling settings copied into every request
type Options struct {
	Temperature      float32
	ProfileMaxTokens int
	AnswerMaxTokens  int
}

// Builder is stateless; the same input always yields the same request.
type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// BuildProfile renders the profile request. It fails with EMPTY_INPUT when no
// document carries text.
func (b *Builder) BuildProfile(docs []domain.SourceDocument, person map[string]string) (*domain.ProfileRequest, error) {
	texts := documentTexts(docs)
	if len(texts) == 0 {
		return nil, errors.EmptyInput("no document text to build a profile from")
	}

	detected := DetectProfileTypes(texts)

	var sb strings.Builder
	sb.WriteString("You have been provided with the following types of documents for your analysis:\n")
	for _, label := range uniqueLabels(docs) {
		sb.WriteString("- ")
		sb.WriteString(label)
		sb.WriteByte('\n')
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Based on content analysis, these appear to include: %s\n\n", joinDetected(detected))
	sb.WriteString(profileSourceGuidance)
	sb.WriteString("Based on the following psychology documents, generate a comprehensive psychology profile:\n\n")
	sb.WriteString("Person Information:\n")
	sb.WriteString(personBlock(person))
	sb.WriteString("\n\n")
	sb.WriteString(profileFormatting)
	sb.WriteString("Sections:\n")
	for i, title := range SectionTitles {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, title)
	}
	sb.WriteString("\n")
	sb.WriteString(profileExample)
	sb.WriteString(strings.Join(texts, "\n\n"))
	sb.WriteString("\n\n")
	sb.WriteString(profileTrailer)

	return &domain.ProfileRequest{
		Kind:          domain.KindProfile,
		SystemPrompt:  SystemPrompt,
		UserPrompt:    sb.String(),
		MaxTokens:     b.opts.ProfileMaxTokens,
		Temperature:   b.opts.Temperature,
		SourceLabels:  SourceLabels(docs),
		DetectedTypes: detected,
	}, nil
}

// BuildQuestion renders a question-answering request over the same documents
func (b *Builder) BuildQuestion(docs []domain.SourceDocument, question string) (*domain.ProfileRequest, error) {
	texts := documentTexts(docs)
	if len(texts) == 0 {
		return nil, errors.EmptyInput("no document text to answer a question from")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.Validation(map[string]string{"question": "this field is required"})
	}

	detected := DetectClinicalTypes(texts)

	var sb strings.Builder
	sb.WriteString("Based on the following patient documents, answer this special question from the mental health practitioner:\n\n")
	fmt.Fprintf(&sb, questionGuidance, joinDetected(detected))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(texts, "\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(questionTrailer)

	return &domain.ProfileRequest{
		Kind:          domain.KindAnswer,
		SystemPrompt:  SystemPrompt,
		UserPrompt:    sb.String(),
		MaxTokens:     b.opts.AnswerMaxTokens,
		Temperature:   b.opts.Temperature,
		SourceLabels:  SourceLabels(docs),
		DetectedTypes: detected,
	}, nil
}

func documentTexts(docs []domain.SourceDocument) []string {
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if t := strings.TrimSpace(d.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

func joinDetected(types []string) string {
	if len(types) == 0 {
		return FallbackDocumentType
	}
	return strings.Join(types, ", ")
}

// personBlock renders person information in sorted key order
func personBlock(person map[string]string) string {
	keys := make([]string, 0, len(person))
	for k := range person {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.TrimSpace(k), strings.TrimSpace(person[k])))
	}
	return strings.Join(lines, "\n")
}
