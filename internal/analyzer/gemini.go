package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"incident-service/internal/domain/incident"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

const analysisPrompt = `You are a traffic safety analyst. Analyze this traffic camera image for incidents: vehicle collisions, vehicles on fire or smoking, overturned or broken-down vehicles, debris on the road, pedestrians in dangerous situations.

Respond with ONLY a JSON object:
{
  "has_incident": boolean,
  "incident_type": "collision|fire|breakdown|pedestrian_danger|debris|other|none",
  "severity": "low|medium|high|critical",
  "description": "brief description of what you observe",
  "confidence": float between 0.0 and 1.0,
  "vehicles_detected": integer,
  "pedestrians_detected": integer,
  "emergency_vehicles_detected": integer
}

Be conservative: only flag clear incidents. If nothing is wrong, set has_incident to false and incident_type to "none".`

// GeminiClient calls a Gemini-style generateContent endpoint with the frame
// attached inline as JPEG.
type GeminiClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewGeminiClient(endpoint, apiKey, model string, timeout time.Duration) *GeminiClient {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &GeminiClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type generatePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *generateInline `json:"inline_data,omitempty"`
}

type generateInline struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []generatePart `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the frame for semantic analysis. Any transport or payload
// failure returns DefaultJudgment along with the error.
func (c *GeminiClient) Analyze(ctx context.Context, frameJPEG []byte, sceneContext string) (incident.Judgment, error) {
	prompt := analysisPrompt
	if sceneContext != "" {
		prompt += "\n\nContext: " + sceneContext
	}

	var reqBody generateRequest
	reqBody.Contents = append(reqBody.Contents, struct {
		Parts []generatePart `json:"parts"`
	}{
		Parts: []generatePart{
			{Text: prompt},
			{InlineData: &generateInline{
				MimeType: "image/jpeg",
				Data:     base64.StdEncoding.EncodeToString(frameJPEG),
			}},
		},
	})

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return DefaultJudgment(), fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return DefaultJudgment(), fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return DefaultJudgment(), fmt.Errorf("analyzer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return DefaultJudgment(), fmt.Errorf("analyzer status %s: %s", resp.Status, body)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return DefaultJudgment(), fmt.Errorf("decode analyzer response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return DefaultJudgment(), fmt.Errorf("analyzer returned no candidates")
	}

	return ParseJudgment(parsed.Candidates[0].Content.Parts[0].Text), nil
}
