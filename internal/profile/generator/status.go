package generator

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	goopenai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/psyprofile/psyprofile-backend/pkg/resilience"
	"google.golang.org/genai"
)

// providerStatus extracts the HTTP status a hosted provider answered with.
// It returns 0 when err carries none (network failure, cancellation).
func providerStatus(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return claudeErr.StatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	var geminiPtr *genai.APIError
	if errors.As(err, &geminiPtr) {
		return geminiPtr.Code
	}
	return 0
}

// withStatus attaches a resilience.StatusError so the executor can tell a
// rejected request from a provider outage. The provider error stays in the chain.
func withStatus(operation string, err error) error {
	code := providerStatus(err)
	if code == 0 {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return fmt.Errorf("%s: %w: %w", operation, err,
		&resilience.StatusError{Operation: operation, StatusCode: code})
}
