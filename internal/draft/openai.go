package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultResponsesURL = "https://api.openai.com/v1/responses"

// Client calls an OpenAI-compatible responses endpoint. The zero value is not
// usable; construct with NewClient.
type Client struct {
	ResponsesURL string
	APIKey       string
	Model        string
	HTTPClient   *http.Client
}

// NewClient returns a Client for the given model. An empty responsesURL falls
// back to the public OpenAI endpoint.
func NewClient(apiKey, model, responsesURL string) *Client {
	if responsesURL == "" {
		responsesURL = defaultResponsesURL
	}
	return &Client{
		ResponsesURL: responsesURL,
		APIKey:       apiKey,
		Model:        model,
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) invoke(ctx context.Context, input string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model": c.Model,
		"input": input,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ResponsesURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call model endpoint: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var parsed struct {
		Output []struct {
			Type    string `json:"type"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	var b strings.Builder
	for _, out := range parsed.Output {
		if out.Type != "message" {
			continue
		}
		for _, part := range out.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("model endpoint returned no text output")
	}
	return text, nil
}

// RefineRequest implements Service.
func (c *Client) RefineRequest(ctx context.Context, rc RequestContext) (string, error) {
	var b strings.Builder
	b.WriteString("Rewrite the following consultation request as a concise, well-structured brief a consultant can act on. Keep all factual details, remove filler. Respond with the brief only.\n\n")
	writeRequestContext(&b, rc)
	return c.invoke(ctx, b.String())
}

// DraftPack implements Service. The model is asked for a JSON object; if the
// reply is not valid JSON the whole text is used as the summary so the draft
// is never lost.
func (c *Client) DraftPack(ctx context.Context, pc PackContext) (Pack, error) {
	var b strings.Builder
	b.WriteString("Draft a knowledge-transfer pack for the consultation below. Respond with a single JSON object with string fields: summary, key_decisions, runbook, next_steps, internalization_checklist. No markdown fences.\n\n")
	writeRequestContext(&b, pc.Request)
	if len(pc.Messages) > 0 {
		b.WriteString("\nConversation:\n")
		for _, m := range pc.Messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Author, m.Body)
		}
	}
	if len(pc.Notes) > 0 {
		b.WriteString("\nShared notes:\n")
		for _, n := range pc.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	if len(pc.Checklist) > 0 {
		b.WriteString("\nChecklist:\n")
		for _, item := range pc.Checklist {
			mark := " "
			if item.Done {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, item.Text)
		}
	}

	text, err := c.invoke(ctx, b.String())
	if err != nil {
		return Pack{}, err
	}
	var pack Pack
	if err := json.Unmarshal([]byte(extractJSON(text)), &pack); err != nil || pack.Summary == "" {
		return Pack{Summary: text}, nil
	}
	return pack, nil
}

// ExplainMatches implements Service. One line per candidate is requested; a
// short reply pads remaining candidates with a generic explanation rather
// than failing the whole match call.
func (c *Client) ExplainMatches(ctx context.Context, rc RequestContext, candidates []Candidate) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "For the consultation request below, explain in one sentence per candidate why each consultant fits. Respond with exactly %d lines, one per candidate, in order, no numbering.\n\n", len(candidates))
	writeRequestContext(&b, rc)
	b.WriteString("\nCandidates:\n")
	for i, cand := range candidates {
		fmt.Fprintf(&b, "%d. %s (skills: %s)\n", i+1, cand.Headline, strings.Join(cand.Skills, ", "))
	}
	text, err := c.invoke(ctx, b.String())
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(candidates))
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	for len(lines) < len(candidates) {
		lines = append(lines, "Relevant skill overlap with the request.")
	}
	return lines[:len(candidates)], nil
}

func writeRequestContext(b *strings.Builder, rc RequestContext) {
	fmt.Fprintf(b, "Title: %s\n", rc.Title)
	fmt.Fprintf(b, "Description: %s\n", rc.RawDescription)
	if rc.Constraints != "" {
		fmt.Fprintf(b, "Constraints: %s\n", rc.Constraints)
	}
	if rc.DesiredOutcome != "" {
		fmt.Fprintf(b, "Desired outcome: %s\n", rc.DesiredOutcome)
	}
	if rc.Urgency != "" {
		fmt.Fprintf(b, "Urgency: %s\n", rc.Urgency)
	}
	if len(rc.Skills) > 0 {
		fmt.Fprintf(b, "Skills: %s\n", strings.Join(rc.Skills, ", "))
	}
}

// extractJSON trims anything around the outermost JSON object, tolerating
// models that wrap the reply in code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
