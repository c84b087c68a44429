package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

// Classifier decides whether an inbound email reports an actionable issue.
// A nil issue with a nil error means the message should be dropped silently.
type Classifier interface {
	Classify(ctx context.Context, subject, body, sender string) (*domain.Issue, error)
}

// notActionable is the sentinel the model fills into every field when the
// mail is not an issue report, or is a reply/follow-up.
const notActionable = "not_bug"

const promptTemplate = `You are a customer support assistant. Determine if the following email describes a software issue/bug.
If it is an issue, extract:
- Bug title
- User facing the bug (email or name)
- Bug summary
- Bug priority (Low, Medium, High)

Respond with JSON only, using the keys "title", "user_email", "summary" and "priority".
Let the default value of title be 'No title', user_email be 'Unknown user', summary be 'none' and priority be 'Medium'.
If the mail is not an issue/complaint, then register all the values as 'not_bug'.
Also register any kind of follow up emails or replies as 'not_bug'.

Email From: %s
Email Subject: %s
Email Body: %s`

// GeminiClassifier calls the Gemini API in JSON mode. The client is owned by
// the caller: construct once at startup, Close on shutdown.
type GeminiClassifier struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGemini opens a Gemini client.
func NewGemini(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, util.NewConfigError("GEMINI_API_KEY is required", nil)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, util.NewAdapterError("open gemini client", err)
	}
	return &GeminiClassifier{client: client, model: cfg.Model, logger: logger}, nil
}

// Close releases the underlying connection.
func (g *GeminiClassifier) Close() error {
	return g.client.Close()
}

// Classify asks the model to extract a structured issue from the email.
func (g *GeminiClassifier) Classify(ctx context.Context, subject, body, sender string) (*domain.Issue, error) {
	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"

	prompt := fmt.Sprintf(promptTemplate, sender, subject, body)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, util.NewAdapterError("gemini generate", err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return nil, util.NewAdapterError("gemini response", err)
	}
	g.logger.Debug("classifier response", zap.String("subject", subject), zap.Int("bytes", len(raw)))
	return parseIssue(raw)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text parts in response")
	}
	return sb.String(), nil
}

type issuePayload struct {
	Title     string `json:"title"`
	UserEmail string `json:"user_email"`
	Summary   string `json:"summary"`
	Priority  string `json:"priority"`
}

// parseIssue decodes the model output, applies the not-actionable sentinel
// and enforces the closed priority set.
func parseIssue(raw string) (*domain.Issue, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))

	var payload issuePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, util.NewAdapterError("decode classifier output", err)
	}

	if payload.Title == notActionable &&
		payload.UserEmail == notActionable &&
		payload.Summary == notActionable &&
		payload.Priority == notActionable {
		return nil, nil
	}

	priority := domain.TicketPriority(payload.Priority)
	if !domain.ValidPriority(priority) {
		return nil, util.NewAdapterError(
			fmt.Sprintf("classifier returned priority %q outside Low/Medium/High", payload.Priority), nil)
	}

	return &domain.Issue{
		Title:         payload.Title,
		ReporterEmail: payload.UserEmail,
		Summary:       payload.Summary,
		Priority:      priority,
	}, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
