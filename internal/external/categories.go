// Package external provides clients for third-party APIs.
package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	geminiTimeout      = 15 * time.Second
	maxCategoryLength  = 40
	maxProductNameSize = 120
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("category suggestion not configured")

// Categories the model is steered towards. Free-form answers are accepted
// but these keep suggestions consistent across users.
var knownCategories = []string{
	"Alimentação", "Bebidas", "Limpeza", "Higiene", "Saúde",
	"Casa", "Escritório", "Eletrónica", "Ferramentas", "Outros",
}

// ---------------------------------------------------------------------------
// CategoryService wraps the Gemini generateContent API
// ---------------------------------------------------------------------------

// CategoryService suggests a category label for a product name.
type CategoryService struct {
	client *genai.Client // nil = not configured
	model  string
}

// NewCategoryService creates a category service. An empty apiKey yields an
// unconfigured service whose Suggest returns ErrNotConfigured.
func NewCategoryService(ctx context.Context, apiKey, model string) (*CategoryService, error) {
	return newCategoryService(ctx, apiKey, model, "")
}

// newCategoryService allows pointing the client at a test server.
func newCategoryService(ctx context.Context, apiKey, model, baseURL string) (*CategoryService, error) {
	s := &CategoryService{model: model}
	if apiKey == "" {
		return s, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: geminiTimeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	s.client = client
	return s, nil
}

// Configured reports whether an API key is set.
func (s *CategoryService) Configured() bool { return s != nil && s.client != nil }

// Suggest asks the model for a single category for productName.
func (s *CategoryService) Suggest(ctx context.Context, productName string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	productName = strings.TrimSpace(productName)
	if r := []rune(productName); len(r) > maxProductNameSize {
		productName = string(r[:maxProductNameSize])
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(buildPrompt(productName)), nil)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	category := CleanCategory(resp.Candidates[0].Content.Parts[0].Text)
	if category == "" {
		return "", fmt.Errorf("gemini returned an empty category")
	}
	return category, nil
}

func buildPrompt(productName string) string {
	return fmt.Sprintf(
		"Sugere uma única categoria de inventário doméstico para o produto %q. "+
			"Prefere uma destas: %s. Responde apenas com o nome da categoria.",
		productName, strings.Join(knownCategories, ", "))
}

// CleanCategory reduces a model answer to a single short label: first line,
// surrounding quotes and punctuation stripped, length capped.
func CleanCategory(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*.:- ")
	if r := []rune(line); len(r) > maxCategoryLength {
		line = strings.TrimSpace(string(r[:maxCategoryLength]))
	}
	return line
}
