package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPSink submits flushed chunks to the platform's transcript endpoint.
type HTTPSink struct {
	baseURL   string
	roomID    uuid.UUID
	token     string
	character string
	client    *http.Client
}

// NewHTTPSink creates a sink posting to baseURL's transcript endpoint for
// the given room, authenticating with a bearer token.
func NewHTTPSink(baseURL string, roomID uuid.UUID, token, character string) *HTTPSink {
	return &HTTPSink{
		baseURL:   baseURL,
		roomID:    roomID,
		token:     token,
		character: character,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type sinkChunk struct {
	Character   string  `json:"character,omitempty"`
	StartedAtMs int64   `json:"started_at_ms"`
	EndedAtMs   int64   `json:"ended_at_ms"`
	Text        string  `json:"text"`
	Language    string  `json:"language,omitempty"`
	Confidence  float64 `json:"confidence"`
	Provider    string  `json:"provider,omitempty"`
}

// SubmitChunk implements Sink.
func (s *HTTPSink) SubmitChunk(ctx context.Context, chunk Chunk) error {
	body, err := json.Marshal(map[string][]sinkChunk{
		"chunks": {{
			Character:   s.character,
			StartedAtMs: chunk.StartedAtMs,
			EndedAtMs:   chunk.EndedAtMs,
			Text:        chunk.Text,
			Language:    chunk.Language,
			Confidence:  chunk.Confidence,
			Provider:    chunk.Provider,
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}

	url := fmt.Sprintf("%s/rooms/%s/transcripts", s.baseURL, s.roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit transcripts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transcript endpoint returned %d", resp.StatusCode)
	}
	return nil
}
