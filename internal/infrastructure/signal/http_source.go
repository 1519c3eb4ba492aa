package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSource queries the prediction service: GET {baseURL}/api/predict?strategy={id}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

type predictionResponse struct {
	Text    string `json:"text"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Prediction(ctx context.Context, strategyID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/predict?strategy=%s", s.baseURL, url.QueryEscape(strategyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read prediction: %w", err)
	}

	var pr predictionResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return "", fmt.Errorf("decode prediction (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := pr.Error
		if msg == "" {
			msg = pr.Message
		}
		return "", fmt.Errorf("prediction service returned %d: %s", resp.StatusCode, msg)
	}

	// The service answers with "message"; "text" is the newer field name.
	if pr.Text != "" {
		return pr.Text, nil
	}
	return pr.Message, nil
}
