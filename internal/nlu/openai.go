package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumehq/lume/internal/conversation"
)

const instrumentationName = "github.com/lumehq/lume/internal/nlu"

// historyWindow is how many recent messages the classifier sees for context.
const historyWindow = 6

const systemPrompt = `You classify one user message for a productivity assistant that manages tasks, calendar events, onboarding, and productivity insights.

Respond with a single JSON object and nothing else:
{"intent": "...", "action": "...", "entities": {...}, "confidence": 0.0, "needs_clarification": false, "clarification_prompt": ""}

Intents: start_onboarding, add_task, show_tasks, view_calendar, calendar_query, schedule_task, view_insights, general_chat.
Actions (only when certain): create_task when the message fully specifies a task, onboarding when the user wants to start setup. Otherwise omit action.
Entities: extract title, priority, due_date, duration, pillar when present.
Set needs_clarification true, with a short question in clarification_prompt, when the request is genuinely ambiguous.
Confidence is your own calibration between 0 and 1.`

// ErrInvalidConfig indicates an unusable classifier configuration.
var ErrInvalidConfig = errors.New("invalid nlu configuration")

// Config holds configuration for the model-backed classifier. BaseURL accepts
// any OpenAI-compatible endpoint, so a local inference server works too.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string

	// Timeout bounds one classification call (default: 10s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the model endpoint (default: 5).
	RequestsPerSecond float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o-mini",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// OpenAIClassifier classifies messages with an OpenAI-compatible chat model.
type OpenAIClassifier struct {
	llm     llms.Model
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	callCounter metric.Int64Counter
}

// NewOpenAIClassifier creates a model-backed classifier.
func NewOpenAIClassifier(cfg *Config, logger *zap.Logger) (*OpenAIClassifier, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for local endpoints.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	c := &OpenAIClassifier{
		llm:     llm,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	c.callCounter, err = c.meter.Int64Counter(
		"lume.nlu.classifications_total",
		metric.WithDescription("Classification calls labeled by result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create classification counter", zap.Error(err))
	}
	return c, nil
}

// Classify sends the message and a bounded history window to the model and
// parses its JSON verdict.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string, history []conversation.Message, phase conversation.Phase) (*Classification, error) {
	ctx, span := c.tracer.Start(ctx, "nlu.classify",
		trace.WithAttributes(attribute.String("model", c.model)))
	defer span.End()

	if text == "" {
		return nil, errors.New("message text is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
	}
	for _, m := range conversation.Window(history, historyWindow) {
		role := schema.ChatMessageTypeHuman
		if m.Role == conversation.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Text))
	}
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman,
		fmt.Sprintf("Conversation phase: %s\nMessage: %s", phase, text)))

	resp, err := c.llm.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		c.count(ctx, "error")
		span.RecordError(err)
		return nil, fmt.Errorf("classifying message: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.count(ctx, "empty")
		return nil, errors.New("model returned no choices")
	}

	cls, err := parseClassification(resp.Choices[0].Content)
	if err != nil {
		c.count(ctx, "unparseable")
		span.RecordError(err)
		return nil, err
	}

	c.count(ctx, "ok")
	c.logger.Debug("classified message",
		zap.String("intent", cls.Intent),
		zap.String("action", cls.Action),
		zap.Float64("confidence", cls.Confidence))
	return cls, nil
}

func (c *OpenAIClassifier) count(ctx context.Context, result string) {
	if c.callCounter != nil {
		c.callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// parseClassification extracts the JSON object from a model reply, tolerating
// prose or code fences around it, and normalizes the result.
func parseClassification(raw string) (*Classification, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model reply: %q", raw)
	}

	var cls Classification
	if err := json.Unmarshal([]byte(raw[start:end+1]), &cls); err != nil {
		return nil, fmt.Errorf("decoding classification: %w", err)
	}

	if cls.Intent == "" {
		cls.Intent = IntentGeneralChat
	}
	if cls.Confidence < 0 {
		cls.Confidence = 0
	}
	if cls.Confidence > 1 {
		cls.Confidence = 1
	}
	return &cls, nil
}
