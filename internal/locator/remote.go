package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"incident-service/internal/domain/incident"
)

// RemoteClient talks to a model-serving endpoint that accepts a JPEG frame as
// multipart form data on /predict and returns a JSON detection list.
type RemoteClient struct {
	baseURL string
	client  *http.Client
}

func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RemoteClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type remoteDetection struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type predictResponse struct {
	Detections []remoteDetection `json:"detections"`
}

func (c *RemoteClient) Detect(ctx context.Context, frameJPEG []byte, minConfidence float64) ([]incident.Detection, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(frameJPEG); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("bad status: %s, error: %s", resp.Status, body)
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	detections := make([]incident.Detection, 0, len(parsed.Detections))
	for _, d := range parsed.Detections {
		if d.Confidence < minConfidence || d.Width <= 0 || d.Height <= 0 {
			continue
		}
		detections = append(detections, incident.Detection{
			X:          d.X,
			Y:          d.Y,
			Width:      d.Width,
			Height:     d.Height,
			Label:      d.Label,
			Confidence: d.Confidence,
			Category:   incident.CategoryForLabel(d.Label),
		})
	}
	return detections, nil
}
