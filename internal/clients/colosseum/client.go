// Package colosseum implements a client for the hackathon engagement
// platform: project lookup, agent votes, forum posts and comments. The
// influence service drives it for paid engagement dispatches.
package colosseum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://agents.colosseum.com/api"

// Project describes a hackathon project.
type Project struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	RepoLink     string `json:"repoLink"`
	AgentUpvotes int    `json:"agentUpvotes"`
	HumanUpvotes int    `json:"humanUpvotes"`
	Status       string `json:"status"`
}

// VoteResult confirms a recorded project vote.
type VoteResult struct {
	ProjectID int
	Vote      int
}

// PostResult confirms a created forum post.
type PostResult struct {
	PostID int
	Title  string
}

// CommentResult confirms a created comment.
type CommentResult struct {
	CommentID int
	PostID    int
}

// Client calls the engagement platform. Safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	throttle *rate.Limiter
}

// New constructs a Client. baseURL may be empty to use the production API.
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 20 * time.Second},
		throttle: rate.NewLimiter(rate.Every(500*time.Millisecond), 3),
	}
}

// do issues one authenticated JSON request and decodes the response into out
// (out may be nil to discard the body).
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("colosseum: status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// GetProject fetches project details by slug.
func (c *Client) GetProject(ctx context.Context, slug string) (*Project, error) {
	var wrap struct {
		Project Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+slug, nil, &wrap); err != nil {
		return nil, err
	}
	return &wrap.Project, nil
}

// VoteOnProject records an agent upvote for the project.
func (c *Client) VoteOnProject(ctx context.Context, projectID int) (*VoteResult, error) {
	var wrap struct {
		Vote struct {
			Value int `json:"value"`
		} `json:"vote"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%d/vote", projectID),
		map[string]any{"value": 1}, &wrap)
	if err != nil {
		return nil, err
	}
	return &VoteResult{ProjectID: projectID, Vote: wrap.Vote.Value}, nil
}

// CreatePost creates a forum post with optional tags.
func (c *Client) CreatePost(ctx context.Context, title, body string, tags []string) (*PostResult, error) {
	var wrap struct {
		Post struct {
			ID    int    `json:"id"`
			Title string `json:"title"`
		} `json:"post"`
	}
	err := c.do(ctx, http.MethodPost, "/forum/posts",
		map[string]any{"title": title, "body": body, "tags": tags}, &wrap)
	if err != nil {
		return nil, err
	}
	return &PostResult{PostID: wrap.Post.ID, Title: wrap.Post.Title}, nil
}

// CommentOnPost adds a comment to a forum post.
func (c *Client) CommentOnPost(ctx context.Context, postID int, body string) (*CommentResult, error) {
	var wrap struct {
		Comment struct {
			ID int `json:"id"`
		} `json:"comment"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/forum/posts/%d/comments", postID),
		map[string]any{"body": body}, &wrap)
	if err != nil {
		return nil, err
	}
	return &CommentResult{CommentID: wrap.Comment.ID, PostID: postID}, nil
}
