package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"pdfreader/internal/config"
	"pdfreader/internal/index"
	"pdfreader/internal/models"
)

const systemPromptTemplate = `You are a helpful assistant answering questions about an uploaded PDF document. Use only the provided context to answer. If the context does not contain the answer, say so.

Context:
%s`

const contextSeparator = "\n---\n"

// GenerationError is returned when the model call failed on every
// attempt. The session's prior state is left unchanged by the caller.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }

// Service answers questions against a retriever using a chat model.
// It never mutates session state; appending the resulting turn to
// history is the caller's job.
type Service struct {
	model       llms.Model
	md          goldmark.Markdown
	temperature float64
	retrievalK  int
	maxRetries  int
	timeout     time.Duration
}

// New wires a Service around an existing model, which lets tests
// inject a deterministic generator.
func New(model llms.Model, cfg *config.Config) *Service {
	return &Service{
		model: model,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(ghtml.WithHardWraps()),
		),
		temperature: cfg.LLM.Temperature,
		retrievalK:  cfg.RAG.RetrievalK,
		maxRetries:  cfg.LLM.MaxRetries,
		timeout:     cfg.RequestTimeout(),
	}
}

// NewOpenAI builds the Service on an OpenAI-compatible chat model.
func NewOpenAI(cfg *config.Config) (*Service, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.LLM.Model),
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing chat model: %w", err)
	}
	return New(llm, cfg), nil
}

// Answer retrieves the top-k pages for question, assembles the prompt
// from context, bounded history and the question, and invokes the
// model with bounded retries and a per-attempt timeout.
func (s *Service) Answer(ctx context.Context, question string, history []models.ChatTurn, retriever index.Retriever) (models.RetrievalResult, error) {
	records, err := retriever.Retrieve(ctx, question, s.retrievalK)
	if err != nil {
		return models.RetrievalResult{}, err
	}

	messages := s.buildMessages(question, history, records)

	var resp *llms.ContentResponse
	attempts := 0
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err = s.model.GenerateContent(callCtx, messages, llms.WithTemperature(s.temperature))
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil || !isTransient(err) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempts).Msg("model call failed, retrying")
	}
	if err != nil {
		return models.RetrievalResult{}, &GenerationError{Attempts: attempts, Err: err}
	}
	if len(resp.Choices) == 0 {
		return models.RetrievalResult{}, &GenerationError{Attempts: attempts, Err: errors.New("model returned no choices")}
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	return models.RetrievalResult{
		Answer:     answer,
		AnswerHTML: s.renderHTML(answer),
		Sources:    records,
	}, nil
}

func (s *Service) buildMessages(question string, history []models.ChatTurn, records []models.PageRecord) []llms.MessageContent {
	var contextText strings.Builder
	for i, record := range records {
		if i > 0 {
			contextText.WriteString(contextSeparator)
		}
		contextText.WriteString(fmt.Sprintf("[page %d]\n%s", record.PageIndex+1, record.Text))
	}

	messages := make([]llms.MessageContent, 0, 2*len(history)+2)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem,
		fmt.Sprintf(systemPromptTemplate, contextText.String())))
	for _, turn := range history {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, turn.Question))
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeAI, turn.Answer))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, question))
	return messages
}

func (s *Service) renderHTML(answer string) string {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(answer), &buf); err != nil {
		// plain text still reaches the user via Answer
		log.Warn().Err(err).Msg("rendering answer markdown")
		return ""
	}
	return buf.String()
}

// isTransient reports whether err looks like a network or rate-limit
// failure worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"rate limit", "429", "502", "503", "timeout", "connection refused", "connection reset", "eof"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
