// Package scoring calls the Groq chat-completions API to assess
// transaction risk.
//
// The scorer never fails the webhook pipeline: every error path yields a
// degraded risk result with recommended action "review" so the caller can
// always respond with an assessment.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/riskwatch/internal/metrics"
	"github.com/mbd888/riskwatch/internal/risk"
	"github.com/mbd888/riskwatch/internal/traces"
	"github.com/mbd888/riskwatch/internal/transaction"
)

// Scorer produces a risk result for a validated transaction.
type Scorer interface {
	Score(ctx context.Context, tx *transaction.Transaction) *risk.Result
}

// Config holds the provider settings for a GroqScorer.
type Config struct {
	APIKey  string
	APIURL  string
	Model   string
	Timeout time.Duration
}

// GroqScorer scores transactions through the Groq chat-completions API.
type GroqScorer struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
	logger *slog.Logger
}

// NewGroqScorer creates a scorer. A zero Timeout defaults to 30 seconds.
func NewGroqScorer(cfg Config, logger *slog.Logger) *GroqScorer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GroqScorer{
		apiKey: cfg.APIKey,
		apiURL: cfg.APIURL,
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Score assesses a transaction. It never returns nil.
func (s *GroqScorer) Score(ctx context.Context, tx *transaction.Transaction) *risk.Result {
	ctx, span := traces.StartSpan(ctx, "scoring.groq",
		traces.TransactionID(tx.TransactionID),
		traces.Model(s.model),
	)
	defer span.End()

	start := time.Now()
	result, outcome := s.call(ctx, tx)
	metrics.ProviderDuration.Observe(time.Since(start).Seconds())
	metrics.ProviderRequests.WithLabelValues(outcome).Inc()

	span.SetAttributes(
		traces.RiskScore(result.RiskScore),
		traces.RecommendedAction(string(result.RecommendedAction)),
	)
	return result
}

func (s *GroqScorer) call(ctx context.Context, tx *transaction.Transaction) (*risk.Result, string) {
	if s.apiKey == "" {
		s.logger.Warn("scoring provider key not configured")
		return configErrorResult(), metrics.ProviderResultConfig
	}

	body, err := json.Marshal(buildRequest(s.model, tx))
	if err != nil {
		return processingErrorResult(err), metrics.ProviderResultShape
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return transportErrorResult(err), metrics.ProviderResultTransport
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("scoring provider request failed", "error", err)
		return transportErrorResult(err), metrics.ProviderResultTransport
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("provider returned status %d", resp.StatusCode)
		s.logger.Error("scoring provider request failed", "status", resp.StatusCode)
		return transportErrorResult(err), metrics.ProviderResultTransport
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		s.logger.Error("scoring provider response undecodable", "error", err)
		return processingErrorResult(err), metrics.ProviderResultShape
	}
	if len(parsed.Choices) == 0 {
		err := fmt.Errorf("unexpected response format from scoring provider")
		s.logger.Error("scoring provider response malformed")
		return processingErrorResult(err), metrics.ProviderResultShape
	}

	content := stripFences(parsed.Choices[0].Message.Content)

	var raw struct {
		RiskScore         interface{} `json:"risk_score"`
		RiskFactors       interface{} `json:"risk_factors"`
		Reasoning         string      `json:"reasoning"`
		RecommendedAction string      `json:"recommended_action"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		s.logger.Error("failed to parse model response", "error", err)
		return parseErrorResult(content), metrics.ProviderResultParse
	}

	return sanitize(raw.RiskScore, raw.RiskFactors, raw.Reasoning, raw.RecommendedAction), metrics.ProviderResultOK
}

// stripFences removes an optional markdown code fence around model output.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// sanitize coerces loosely typed model output into a well-formed result.
func sanitize(score, factors interface{}, reasoning, action string) *risk.Result {
	out := &risk.Result{
		RiskScore:         0.5,
		RiskFactors:       []string{"Analysis completed"},
		Reasoning:         "Risk analysis completed",
		RecommendedAction: risk.ActionReview,
	}

	switch v := score.(type) {
	case float64:
		out.RiskScore = risk.Clamp(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			out.RiskScore = risk.Clamp(f)
		}
	}

	if list, ok := factors.([]interface{}); ok {
		coerced := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				coerced = append(coerced, s)
			} else {
				coerced = append(coerced, fmt.Sprint(item))
			}
		}
		out.RiskFactors = coerced
	}

	if reasoning != "" {
		out.Reasoning = reasoning
	}

	if a := risk.Action(strings.ToLower(action)); a.Valid() {
		out.RecommendedAction = a
	}

	return out
}

// Degraded results. All carry action "review" so a human looks at the
// transaction when automated scoring could not.

func configErrorResult() *risk.Result {
	return &risk.Result{
		RiskScore:         0.5,
		RiskFactors:       []string{"API configuration error"},
		Reasoning:         "GROQ API key not configured",
		RecommendedAction: risk.ActionReview,
	}
}

func transportErrorResult(err error) *risk.Result {
	return &risk.Result{
		RiskScore:         0.5,
		RiskFactors:       []string{"API error"},
		Reasoning:         "Failed to analyze: " + err.Error(),
		RecommendedAction: risk.ActionReview,
	}
}

func processingErrorResult(err error) *risk.Result {
	return &risk.Result{
		RiskScore:         0.7,
		RiskFactors:       []string{"Processing error"},
		Reasoning:         "Error during analysis: " + err.Error(),
		RecommendedAction: risk.ActionReview,
	}
}

func parseErrorResult(content string) *risk.Result {
	excerpt := []rune(content)
	if len(excerpt) > 100 {
		excerpt = excerpt[:100]
	}
	return &risk.Result{
		RiskScore:         0.5,
		RiskFactors:       []string{"LLM parsing error"},
		Reasoning:         "Could not parse model response: " + string(excerpt) + "...",
		RecommendedAction: risk.ActionReview,
	}
}
