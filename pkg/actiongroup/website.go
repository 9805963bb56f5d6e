package actiongroup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

const (
	defaultReaderURL = "https://r.jina.ai/"
	maxPageSize      = 8 << 20
	summaryMaxTokens = 4096
)

// WebsiteFunction fetches a page as plain text through a reader proxy and
// answers the user's request about it with a model.
type WebsiteFunction struct {
	httpClient *http.Client
	readerURL  string
	apiKey     string
	client     llm.Client
	model      string
}

// WebsiteOption configures a WebsiteFunction.
type WebsiteOption func(*WebsiteFunction)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) WebsiteOption {
	return func(f *WebsiteFunction) { f.httpClient = c }
}

// WithReaderURL sets the proxy prefix; the page URL is appended to it.
func WithReaderURL(u string) WebsiteOption {
	return func(f *WebsiteFunction) { f.readerURL = u }
}

// WithAPIKey sets the bearer token sent to the proxy.
func WithAPIKey(key string) WebsiteOption {
	return func(f *WebsiteFunction) { f.apiKey = key }
}

// NewWebsiteFunction creates website_to_text.
func NewWebsiteFunction(client llm.Client, model string, opts ...WebsiteOption) *WebsiteFunction {
	f := &WebsiteFunction{
		httpClient: http.DefaultClient,
		readerURL:  defaultReaderURL,
		client:     client,
		model:      model,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *WebsiteFunction) Name() string { return "website_to_text" }

func (f *WebsiteFunction) Invoke(ctx context.Context, req Request) (string, error) {
	url, ok := req.Param("url")
	if !ok || url == "" {
		return "", &MissingParameterError{Function: f.Name(), Name: "url"}
	}
	text, err := f.fetch(ctx, url)
	if err != nil {
		return "", failf(err, "Error fetching %s", url)
	}

	prompt := fmt.Sprintf("%s <website text>%s</website_text>", req.InputText, text)
	resp, err := f.client.Complete(ctx, llm.GenerateRequest{
		Model:     f.model,
		Messages:  []llm.Message{llm.TextMessage(llm.RoleUser, prompt)},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", failf(err, "Error processing website")
	}
	return resp.Text(), nil
}

func (f *WebsiteFunction) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.readerURL+url, nil)
	if err != nil {
		return "", err
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("reader returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
