// Package assistant is the boundary to the conversational AI
// collaborator. The pipeline and guide layers only ever see the Client
// interface; every call is a fallible remote operation.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/config"
)

// Citation is a grounding source returned alongside an assistant reply.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is one assistant reply.
type Message struct {
	Text               string     `json:"text"`
	GroundingCitations []Citation `json:"groundingCitations,omitempty"`
}

// Place is a structured place suggestion extracted from free text.
type Place struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
}

// Client is the opaque collaborator interface.
type Client interface {
	// SendMessage sends a chat turn and returns the reply with any
	// grounding citations.
	SendMessage(ctx context.Context, text string) (*Message, error)
	// AnalyzeImage describes an image given its base64 payload and MIME
	// type.
	AnalyzeImage(ctx context.Context, imageBase64, mimeType string) (string, error)
	// ExtractPlace pulls a structured place from free text. A nil Place
	// with nil error means no place was identified.
	ExtractPlace(ctx context.Context, text string) (*Place, error)
}

// HTTPClient talks to a generative-model REST endpoint.
type HTTPClient struct {
	cfg  config.AssistantConfig
	http *http.Client
}

// NewHTTPClient builds a client from configuration.
func NewHTTPClient(cfg config.AssistantConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// Wire types for the generateContent call.
type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []generatePart `json:"parts"`
	} `json:"contents"`
	Tools []map[string]any `json:"tools,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

func (c *HTTPClient) SendMessage(ctx context.Context, text string) (*Message, error) {
	resp, err := c.generate(ctx, []generatePart{{Text: text}}, true)
	if err != nil {
		return nil, err
	}

	msg := &Message{Text: joinParts(resp)}
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				msg.GroundingCitations = append(msg.GroundingCitations, Citation{
					Title: chunk.Web.Title,
					URI:   chunk.Web.URI,
				})
			}
		}
	}
	return msg, nil
}

const analyzePrompt = "Describe this travel photo in one or two sentences, " +
	"focusing on the place it shows."

func (c *HTTPClient) AnalyzeImage(ctx context.Context, imageBase64, mimeType string) (string, error) {
	parts := []generatePart{
		{Text: analyzePrompt},
		{InlineData: &inlineData{MimeType: mimeType, Data: imageBase64}},
	}
	resp, err := c.generate(ctx, parts, false)
	if err != nil {
		return "", err
	}
	return joinParts(resp), nil
}

const extractPrompt = `From the following text, extract one real-world place as JSON with
exactly the keys "name", "description" and "address". Reply with JSON only.
If no concrete place is mentioned, reply with null.

Text: %s`

func (c *HTTPClient) ExtractPlace(ctx context.Context, text string) (*Place, error) {
	resp, err := c.generate(ctx, []generatePart{{Text: fmt.Sprintf(extractPrompt, text)}}, false)
	if err != nil {
		return nil, err
	}
	return ParsePlace(joinParts(resp)), nil
}

func (c *HTTPClient) generate(ctx context.Context, parts []generatePart, grounded bool) (*generateResponse, error) {
	var req generateRequest
	req.Contents = append(req.Contents, struct {
		Parts []generatePart `json:"parts"`
	}{Parts: parts})
	if grounded {
		req.Tools = []map[string]any{{"googleSearch": map[string]any{}}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("assistant: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("assistant: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assistant: call failed: %w", err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("assistant: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assistant: status %d: %s", httpResp.StatusCode, truncate(string(payload), 200))
	}

	var resp generateResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("assistant: decode response: %w", err)
	}
	return &resp, nil
}

func joinParts(resp *generateResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ParsePlace interprets model output as a place suggestion. Markdown code
// fences are tolerated. Malformed JSON or a nameless object means no
// place was identified, not an error.
func ParsePlace(raw string) *Place {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if raw == "" || raw == "null" {
		return nil
	}

	var place Place
	if err := json.Unmarshal([]byte(raw), &place); err != nil {
		return nil
	}
	if strings.TrimSpace(place.Name) == "" {
		return nil
	}
	return &place
}
