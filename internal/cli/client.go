package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Copy is the wire shape the CLI consumes.
type Copy struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Author        string            `json:"author"`
	Version       string            `json:"version"`
	Category      string            `json:"category"`
	Skills        []string          `json:"skills"`
	Tags          []string          `json:"tags"`
	Files         map[string]string `json:"files"`
	Memory        string            `json:"memory"`
	RatingAverage float64           `json:"rating_average"`
	RatingCount   int               `json:"rating_count"`
	InstallCount  int               `json:"install_count"`
	IsPrivate     int               `json:"is_private"`
}

// CopyDetail is the detail-endpoint envelope around a Copy.
type CopyDetail struct {
	Copy Copy `json:"copy"`
}

// CategoryCount mirrors the categories endpoint rows.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type authResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

type apiError struct {
	Message string `json:"error"`
}

// Client is a thin bearer-token HTTP client for the registry API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL: cfg.APIURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) ListCopies() ([]Copy, error) {
	var copies []Copy
	err := c.do(http.MethodGet, "/api/copies", nil, &copies)
	return copies, err
}

func (c *Client) Search(query string) ([]Copy, error) {
	var copies []Copy
	err := c.do(http.MethodGet, "/api/search?q="+url.QueryEscape(query), nil, &copies)
	return copies, err
}

func (c *Client) GetCopy(id string) (*Copy, error) {
	var detail CopyDetail
	if err := c.do(http.MethodGet, "/api/copies/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail.Copy, nil
}

func (c *Client) Categories() ([]CategoryCount, error) {
	var counts []CategoryCount
	err := c.do(http.MethodGet, "/api/categories", nil, &counts)
	return counts, err
}

// UploadInput is the POST /api/copies payload.
type UploadInput struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	Version     string            `json:"version,omitempty"`
	Category    string            `json:"category,omitempty"`
	Skills      []string          `json:"skills,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Files       map[string]string `json:"files,omitempty"`
	Memory      string            `json:"memory,omitempty"`
	IsPrivate   bool              `json:"is_private,omitempty"`
	IsPublic    bool              `json:"is_public,omitempty"`
}

// UploadResult mirrors the upload response.
type UploadResult struct {
	Success         bool   `json:"success"`
	ID              string `json:"id"`
	IsUpdate        bool   `json:"isUpdate"`
	PreviousVersion string `json:"previousVersion"`
}

func (c *Client) Upload(input UploadInput) (*UploadResult, error) {
	var result UploadResult
	if err := c.do(http.MethodPost, "/api/copies", input, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TrackInstall reports an install to the registry. Failures are the caller's
// to ignore; an install that cannot be counted still succeeded locally.
func (c *Client) TrackInstall(id string) error {
	return c.do(http.MethodPost, "/api/copies/"+url.PathEscape(id)+"/install", struct{}{}, nil)
}

// MyCopies lists the authenticated user's copies, private ones included.
func (c *Client) MyCopies(userID uint) ([]Copy, error) {
	var copies []Copy
	err := c.do(http.MethodGet, fmt.Sprintf("/api/users/%d/copies", userID), nil, &copies)
	return copies, err
}

func (c *Client) Register(username, password, email string) (string, uint, error) {
	var resp authResponse
	body := map[string]string{"username": username, "password": password, "email": email}
	if email == "" {
		delete(body, "email")
	}
	if err := c.do(http.MethodPost, "/api/auth/register", body, &resp); err != nil {
		return "", 0, err
	}
	return resp.Token, resp.User.ID, nil
}

func (c *Client) Login(username, password string) (string, uint, error) {
	var resp authResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return "", 0, err
	}
	return resp.Token, resp.User.ID, nil
}
