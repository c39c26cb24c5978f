package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

// ItemSource provides the callable pool for a themed round. Rooms accept it
// as an opaque collaborator so tests and offline hosts can supply their own.
type ItemSource interface {
	ThemedItems(theme string) ([]string, error)
}

const defaultThemeEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// ThemeClient fetches short themed strings from a hosted text-generation
// service.
type ThemeClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewThemeClient(endpoint, apiKey string) *ThemeClient {
	if endpoint == "" {
		endpoint = defaultThemeEndpoint
	}
	return &ThemeClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// ThemedItems asks the service for a pool of short items for the theme. The
// caller decides whether the pool is big enough for a round.
func (tc *ThemeClient) ThemedItems(theme string) ([]string, error) {
	if tc.apiKey == "" {
		return nil, fmt.Errorf("missing theme service API key")
	}

	prompt := fmt.Sprintf(
		"List 30 distinct short items (1-3 words each) for a bingo game themed %q. Respond with one item per line, no numbering and no commentary.",
		theme,
	)
	reqBody := map[string]any{
		"contents": []map[string]any{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
	}
	data, _ := json.Marshal(reqBody)

	req, err := http.NewRequest(http.MethodPost, tc.endpoint+"?key="+tc.apiKey, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("theme service request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("theme service status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("theme service response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("theme service responded with no text")
	}

	items := splitItems(parsed.Candidates[0].Content.Parts[0].Text)
	logger.Infof("[themes] %d usable items for theme %q", len(items), theme)
	return items, nil
}

// splitItems turns raw model output into a clean, duplicate-free item list.
// Bullets and numbering are stripped; blank and overlong lines are dropped.
func splitItems(text string) []string {
	seen := make(map[string]bool)
	items := make([]string, 0, 32)
	for _, line := range strings.Split(text, "\n") {
		item := strings.TrimSpace(line)
		item = strings.TrimLeft(item, "-*•0123456789.) ")
		item = strings.TrimSpace(item)
		if item == "" || len(item) > 60 {
			continue
		}
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, item)
	}
	return items
}
