package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"google.golang.org/genai"
)

// Translator turns a natural-language question into one SQLite statement
type Translator interface {
	Translate(ctx context.Context, question, schemaDescription string) (string, error)
}

// GeminiTranslator asks a Gemini model through the genai client
type GeminiTranslator struct {
	model   string
	client  *genai.Client
	initErr error
}

var translatorInstance Translator

// NewGeminiTranslator creates a Gemini client from cfg. An empty API key
// leaves the translator without a client; Translate then fails.
func NewGeminiTranslator(cfg *config.Config) *GeminiTranslator {
	g := &GeminiTranslator{model: cfg.GeminiModel}
	if cfg.GeminiAPIKey == "" {
		return g
	}

	g.client, g.initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
		},
	})
	if g.initErr != nil {
		config.GetLogger().WithError(g.initErr).Error("Failed to create Gemini client")
	}
	return g
}

// InitTranslator sets the global translator to a Gemini client
func InitTranslator(cfg *config.Config) Translator {
	translatorInstance = NewGeminiTranslator(cfg)
	return translatorInstance
}

// GetTranslator returns the global translator
func GetTranslator() Translator {
	return translatorInstance
}

// SetTranslator sets the global translator (primarily for testing)
func SetTranslator(t Translator) {
	translatorInstance = t
}

// ComposePrompt builds the instruction sent to the model
func ComposePrompt(schemaDescription, question string) string {
	return fmt.Sprintf(`You are an expert SQL assistant. Given the following database schema:
%s

Convert the following natural language question into a valid SQLite SQL query. Only return the SQL query, nothing else.

Question: %s

SQL:

Note: Ensure the SQL query is valid for SQLite and does not include any comments or explanations or is marked in markdown format.
`, strings.TrimSpace(schemaDescription), strings.TrimSpace(question))
}

// Translate asks the model for SQL answering question
func (g *GeminiTranslator) Translate(ctx context.Context, question, schemaDescription string) (string, error) {
	if g.client == nil {
		if g.initErr != nil {
			return "", newQueryError(KindTranslationFailure, "the Gemini client is not configured", g.initErr)
		}
		return "", newQueryError(KindTranslationFailure, "GEMINI_API_KEY is not set", nil)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(ComposePrompt(schemaDescription, question)), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", newQueryError(KindTranslationFailure, "the language model could not be reached", err)
	}

	statement := CleanSQL(resp.Text())
	if statement == "" {
		return "", newQueryError(KindTranslationFailure, "the language model returned no SQL", nil)
	}
	if !looksLikeSQL(statement) {
		return "", newQueryError(KindTranslationFailure, "the language model did not return SQL", fmt.Errorf("model output: %.200s", statement))
	}

	config.GetLogger().WithField("sql", statement).Debug("Generated SQL")
	return statement, nil
}

// CleanSQL strips markdown fences, a language tag and a leading "SQL:"
// label from model output
func CleanSQL(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// language tag on the opening fence line
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			tag := strings.TrimSpace(s[:nl])
			if tag == "" || isFenceTag(tag) {
				s = s[nl+1:]
			}
		} else if fields := strings.Fields(s); len(fields) > 1 && isFenceTag(fields[0]) {
			s = strings.TrimSpace(s)[len(fields[0]):]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.Trim(s, "` \t\r\n")

	if len(s) >= 4 && strings.EqualFold(s[:4], "sql:") {
		s = strings.TrimSpace(s[4:])
	}
	return strings.TrimSpace(s)
}

func isFenceTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "sql", "sqlite", "sqlite3":
		return true
	}
	return false
}

func looksLikeSQL(statement string) bool {
	s := strings.TrimLeft(statement, "( \t\r\n")
	end := 0
	for end < len(s) && isIdentPart(s[end]) {
		end++
	}
	verb := strings.ToUpper(s[:end])
	return readVerbs[verb] || writeVerbs[verb] || forbiddenVerbs[verb]
}
