package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Article is a single result from the NewsAPI everything endpoint.
type Article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type response struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
}

// NewsAPI is a thin client for https://newsapi.org/v2/everything.
type NewsAPI struct {
	APIKey   string
	Endpoint string
	PageSize int
}

// Everything queries recent articles matching q. pageSize <= 0 falls back
// to the client default.
func (n NewsAPI) Everything(ctx context.Context, q, language, sortBy string, pageSize int) ([]Article, error) {
	if pageSize <= 0 {
		pageSize = n.PageSize
	}
	if pageSize <= 0 {
		pageSize = 2
	}

	params := url.Values{}
	params.Add("q", q)
	if language != "" {
		params.Add("language", language)
	}
	if sortBy != "" {
		params.Add("sortBy", sortBy) // options: relevancy, popularity, publishedAt
	}
	params.Add("pageSize", fmt.Sprintf("%d", pageSize))
	params.Add("apiKey", n.APIKey)

	reqURL := fmt.Sprintf("%s?%s", n.Endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi error: %s", resp.Status)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Articles, nil
}
