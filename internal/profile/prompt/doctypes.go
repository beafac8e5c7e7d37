package prompt

import (
	"strings"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
)

// FallbackDocumentType is used when no keyword list matches
const FallbackDocumentType = "Submitted Documents"

type keywordRule struct {
	label string
	terms []string
	// caseSensitive terms are matched against the raw text
	caseSensitive []string
}

// profileRules detect assessment kinds in profile source material, in report order
var profileRules = []keywordRule{
	{label: "Hogan Assessment", terms: []string{"hogan", "hpi", "hds", "mvpi", "motives values preferences", "personality inventory", "development survey"}},
	{label: "360° Feedback", terms: []string{"360-degree"}, caseSensitive: []string{"360"}},
	{label: "CV/Resume", terms: []string{"cv", "resume", "résumé", "curriculum vitae", "work history", "professional experience", "education:"}},
	{label: "Intercultural Development Assessment", terms: []string{"intercultural development inventory", "intercultural sensitivity", "cultural competence"}},
	{label: "Individual Directions Inventory", terms: []string{"individual directions inventory", "idi report", "directions inventory"}},
	{label: "Performance Review", terms: []string{"performance review", "annual review", "performance assessment", "performance rating"}},
	{label: "Interview Notes", terms: []string{"interview notes", "interview summary", "candidate interview"}},
}

// clinicalRules detect clinical material for question answering
var clinicalRules = []keywordRule{
	{label: "Psychological Assessment", terms: []string{"psychological assessment", "psych eval", "mental status", "diagnosis", "dsm", "icd", "symptoms"}},
	{label: "Treatment Notes", terms: []string{"treatment notes", "therapy notes", "session notes", "progress notes"}},
	{label: "Medical History", terms: []string{"medical history", "medication", "health history", "physical exam", "vitals"}},
	{label: "Clinical Interview", terms: []string{"clinical interview", "intake", "initial assessment", "client report"}},
	{label: "Standardized Tests", terms: []string{"mmpi", "wais", "wisc", "beck", "hamilton", "gaf", "phq", "gad"}},
	{label: "Personality Assessment", terms: []string{"hogan", "hpi", "hds", "mvpi", "personality inventory"}},
}

// DetectProfileTypes lists the assessment kinds found in the combined text
func DetectProfileTypes(texts []string) []string {
	return detect(profileRules, texts)
}

// DetectClinicalTypes lists the clinical document kinds found in the combined text
func DetectClinicalTypes(texts []string) []string {
	return detect(clinicalRules, texts)
}

func detect(rules []keywordRule, texts []string) []string {
	raw := strings.Join(texts, " ")
	lower := strings.ToLower(raw)

	var found []string
	for _, rule := range rules {
		if containsAny(lower, rule.terms) || containsAny(raw, rule.caseSensitive) {
			found = append(found, rule.label)
		}
	}
	return found
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

// SourceLabel derives the citation label of an uploaded file from its name
func SourceLabel(fileName string, format domain.Format) string {
	lower := strings.ToLower(fileName)
	switch {
	case strings.Contains(lower, "hogan"):
		return "Hogan Assessment"
	case strings.Contains(fileName, "360"):
		return "360° Feedback"
	case containsAny(lower, []string{"cv", "resume", "résumé"}):
		return "CV/Resume"
	case strings.Contains(lower, "idi"):
		return "IDI Assessment"
	default:
		return strings.ToUpper(string(format)) + " Document"
	}
}

// SourceLabels maps every file name to its label
func SourceLabels(docs []domain.SourceDocument) map[string]string {
	labels := make(map[string]string, len(docs))
	for _, d := range docs {
		labels[d.FileName] = SourceLabel(d.FileName, d.Format)
	}
	return labels
}

// uniqueLabels returns the source labels of docs in first-seen order
func uniqueLabels(docs []domain.SourceDocument) []string {
	seen := make(map[string]bool, len(docs))
	var out []string
	for _, d := range docs {
		label := SourceLabel(d.FileName, d.Format)
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}
