package domain

import "time"

// Format is a supported input document format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Valid reports whether f is one of the supported input formats
func (f Format) Valid() bool {
	return f == FormatPDF || f == FormatDOCX
}

// ExportFormat is a supported deck format
type ExportFormat string

const (
	ExportPPTX ExportFormat = "pptx"
	ExportPDF  ExportFormat = "pdf"
)

// UploadedDocument is a file as received from the client.
// Data is owned by the pipeline and zeroed once extraction finishes.
type UploadedDocument struct {
	FileName     string
	DeclaredType string // file_type form field, may be empty
	ContentType  string // multipart part Content-Type, may be empty
	Data         []byte
}

// ExtractedText is the plain text of one document
type ExtractedText struct {
	Format Format
	Text   string
	Pages  int
}

// DocumentInfo is the non-sensitive metadata of a stored document
type DocumentInfo struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	Format      Format    `json:"format"`
	SourceLabel string    `json:"source_label"`
	Pages       int       `json:"pages,omitempty"`
	Characters  int       `json:"characters"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// SourceDocument is an opened document handed to the prompt builder
type SourceDocument struct {
	FileName string
	Format   Format
	Text     string
}

// RequestKind distinguishes profile generation from question answering
type RequestKind string

const (
	KindProfile RequestKind = "profile"
	KindAnswer  RequestKind = "answer"
)

// ProfileRequest is the payload sent to the completion provider
type ProfileRequest struct {
	Kind         RequestKind
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32

	// SourceLabels maps uploaded file names to their citation label
	SourceLabels  map[string]string
	DetectedTypes []string
}

// Completion is the raw reply of a completion provider
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// ProfileSection is one named part of a generated profile
type ProfileSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Sources string `json:"sources"`
}

// GeneratedProfile is the parsed model output
type GeneratedProfile struct {
	Sections      []ProfileSection `json:"sections"`
	Model         string           `json:"model"`
	DetectedTypes []string         `json:"detected_types"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// ExportedDeck is a rendered slide deck ready for download
type ExportedDeck struct {
	FileName    string
	ContentType string
	Data        []byte
	Slides      int
}

// Answer is the model's reply to a free-form question
type Answer struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Model      string    `json:"model"`
	AnsweredAt time.Time `json:"answered_at"`
}

// SessionInfo summarizes a session without exposing document content
type SessionInfo struct {
	ID           string         `json:"session_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Documents    []DocumentInfo `json:"documents"`
	HasProfile   bool           `json:"has_profile"`
}
