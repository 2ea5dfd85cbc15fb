package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"incident-service/internal/domain/incident"
)

func candidateResponse(text string) generateResponse {
	var resp generateResponse
	resp.Candidates = append(resp.Candidates, struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	}{})
	resp.Candidates[0].Content.Parts = []generatePart{{Text: text}}
	return resp
}

func TestGeminiClientAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not forwarded")
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("request does not carry prompt plus inline image")
		}

		json.NewEncoder(w).Encode(candidateResponse(
			"```json\n{\"has_incident\": true, \"incident_type\": \"collision\", \"severity\": \"high\", \"description\": \"two cars collided\", \"confidence\": 0.82, \"vehicles_detected\": 2}\n```",
		))
	}))
	defer srv.Close()

	client := NewGeminiClient(srv.URL, "test-key", "gemini-2.0-flash", 0)
	j, err := client.Analyze(context.Background(), []byte("jpeg-bytes"), "highway camera 12")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if !j.HasIncident || j.IncidentType != incident.TypeCollision {
		t.Errorf("judgment = %+v, want collision incident", j)
	}
	if j.Confidence != 0.82 {
		t.Errorf("confidence = %v, want 0.82", j.Confidence)
	}
	if j.Vehicles != 2 {
		t.Errorf("vehicles = %d, want 2", j.Vehicles)
	}
}

func TestGeminiClientFailureReturnsDefault(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			},
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(generateResponse{})
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewGeminiClient(srv.URL, "test-key", "gemini-2.0-flash", 0)
			j, err := client.Analyze(context.Background(), []byte("jpeg-bytes"), "")
			if err == nil {
				t.Fatal("Analyze() expected error")
			}
			if j != DefaultJudgment() {
				t.Errorf("judgment = %+v, want the default no-incident judgment", j)
			}
		})
	}
}

func TestDisabledAnalyzer(t *testing.T) {
	j, err := Disabled{}.Analyze(context.Background(), []byte("jpeg-bytes"), "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if j.HasIncident {
		t.Error("disabled analyzer must never report an incident")
	}
}
