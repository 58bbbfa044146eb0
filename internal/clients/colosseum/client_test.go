package colosseum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, "api-key"), mux
}

func TestGetProject_UnwrapsEnvelope(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("/projects/my-agent", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer api-key" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"project": map[string]any{
				"id": 42, "name": "My Agent", "slug": "my-agent",
				"agentUpvotes": 7, "humanUpvotes": 2,
			},
		})
	})

	p, err := c.GetProject(context.Background(), "my-agent")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.ID != 42 || p.Name != "My Agent" || p.AgentUpvotes != 7 {
		t.Fatalf("project = %+v", p)
	}
}

func TestVoteOnProject(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("/projects/42/vote", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body map[string]int
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["value"] != 1 {
			t.Errorf("vote value = %d", body["value"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"vote": map[string]int{"value": 1}})
	})

	v, err := c.VoteOnProject(context.Background(), 42)
	if err != nil {
		t.Fatalf("VoteOnProject: %v", err)
	}
	if v.ProjectID != 42 || v.Vote != 1 {
		t.Fatalf("vote = %+v", v)
	}
}

func TestCreatePostAndComment(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("/forum/posts", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["title"] == "" || body["body"] == "" {
			t.Errorf("post body = %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"post": map[string]any{"id": 9, "title": body["title"]},
		})
	})
	mux.HandleFunc("/forum/posts/9/comments", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"comment": map[string]int{"id": 3}})
	})

	post, err := c.CreatePost(context.Background(), "Big News", "We shipped.", []string{"progress"})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if post.PostID != 9 || post.Title != "Big News" {
		t.Fatalf("post = %+v", post)
	}

	comment, err := c.CommentOnPost(context.Background(), post.PostID, "congrats")
	if err != nil {
		t.Fatalf("CommentOnPost: %v", err)
	}
	if comment.CommentID != 3 || comment.PostID != 9 {
		t.Fatalf("comment = %+v", comment)
	}
}

func TestErrorIncludesStatusAndBody(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("/projects/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such project"}`))
	})

	_, err := c.GetProject(context.Background(), "gone")
	if err == nil || !strings.Contains(err.Error(), "status 404") || !strings.Contains(err.Error(), "no such project") {
		t.Fatalf("err = %v", err)
	}
}
