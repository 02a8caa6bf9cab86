package github

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/platform/errors"
	platformtesting "github.com/devops-agent/gateway/internal/platform/testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.GitHubConfig{
		Token:      "test-token",
		Owner:      "test-owner",
		APIBase:    srv.URL,
		GraphQLURL: srv.URL + "/graphql",
	}, platformtesting.SetupTestLogger(t))
	return client, srv
}

func TestFullRepo(t *testing.T) {
	tests := []struct {
		name     string
		owner    string
		repo     string
		expected string
	}{
		{"short name with owner", "test-owner", "my-repo", "test-owner/my-repo"},
		{"full name unchanged", "test-owner", "other/repo", "other/repo"},
		{"short name no owner", "", "my-repo", "my-repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(config.GitHubConfig{Token: "t", Owner: tt.owner},
				platformtesting.SetupTestLogger(t))
			if got := c.FullRepo(tt.repo); got != tt.expected {
				t.Errorf("FullRepo(%q) = %q, expected %q", tt.repo, got, tt.expected)
			}
		})
	}
}

func TestGetCommitsParams(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))

	_, err := client.GetCommits(context.Background(), "my-repo", CommitOptions{Branch: "dev"})
	if err != nil {
		t.Fatalf("GetCommits error: %v", err)
	}

	if gotPath != "/repos/test-owner/my-repo/commits" {
		t.Errorf("path = %q", gotPath)
	}
	if got := gotQuery["sha"]; len(got) != 1 || got[0] != "dev" {
		t.Errorf("sha param = %v, expected [dev]", got)
	}
	// 留空的筛选条件不能作为空参数发送
	for _, key := range []string{"since", "until"} {
		if _, ok := gotQuery[key]; ok {
			t.Errorf("empty filter %q must not be sent", key)
		}
	}
}

func TestGetCommitsAuthHeaders(t *testing.T) {
	var auth, version string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		version = r.Header.Get("X-GitHub-Api-Version")
		w.Write([]byte(`[]`))
	}))

	if _, err := client.GetCommits(context.Background(), "my-repo", CommitOptions{}); err != nil {
		t.Fatalf("GetCommits error: %v", err)
	}
	if auth != "Bearer test-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if version != apiVersion {
		t.Errorf("X-GitHub-Api-Version = %q", version)
	}
}

func TestGetIssuesFiltersPullRequests(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"number": 1, "title": "real issue"},
			{"number": 2, "title": "actually a PR", "pull_request": {"url": "..."}},
			{"number": 3, "title": "another issue"}
		]`))
	}))

	issues, err := client.GetIssues(context.Background(), "my-repo", "", "", 20)
	if err != nil {
		t.Fatalf("GetIssues error: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("got %d issues, expected 2", len(issues))
	}
	// 相对顺序必须保留
	if issues[0].Number != 1 || issues[1].Number != 3 {
		t.Errorf("unexpected order: #%d, #%d", issues[0].Number, issues[1].Number)
	}
}

func TestCreateIssueOmitsEmptyFields(t *testing.T) {
	var body map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeJSONBody(t, r, &body)
		w.Write([]byte(`{"number": 10, "title": "Bug", "state": "open"}`))
	}))

	issue, err := client.CreateIssue(context.Background(), "my-repo", "Bug", IssueOptions{
		Labels: []string{"bug", "urgent"},
	})
	if err != nil {
		t.Fatalf("CreateIssue error: %v", err)
	}
	if issue.Number != 10 {
		t.Errorf("Number = %d, expected 10", issue.Number)
	}
	if _, ok := body["body"]; ok {
		t.Error("empty body field must be omitted")
	}
	if _, ok := body["assignees"]; ok {
		t.Error("empty assignees field must be omitted")
	}
	labels, ok := body["labels"].([]any)
	if !ok || len(labels) != 2 {
		t.Errorf("labels = %v", body["labels"])
	}
}

func TestGetFileDecodesBase64WithNewlines(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	// GitHub 返回的 base64 带换行
	wrapped := encoded[:12] + "\n" + encoded[12:24] + "\n" + encoded[24:]

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"name":     "main.go",
			"path":     "cmd/main.go",
			"size":     len(content),
			"content":  wrapped,
			"encoding": "base64",
		})
	}))

	file, err := client.GetFile(context.Background(), "my-repo", "cmd/main.go", "")
	if err != nil {
		t.Fatalf("GetFile error: %v", err)
	}
	if file.Content != content {
		t.Errorf("Content = %q, expected %q", file.Content, content)
	}
}

func TestGetFileReplacesInvalidUTF8(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte{'h', 'i', 0xff, 0xfe, '!'})
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"name":     "blob.bin",
			"content":  encoded,
			"encoding": "base64",
		})
	}))

	file, err := client.GetFile(context.Background(), "my-repo", "blob.bin", "")
	if err != nil {
		t.Fatalf("GetFile error: %v", err)
	}
	if file.Content == "" || file.Content[:2] != "hi" {
		t.Errorf("Content = %q, expected prefix hi", file.Content)
	}
	for _, r := range file.Content {
		if r == 0xff || r == 0xfe {
			t.Errorf("invalid bytes must be replaced, got %q", file.Content)
		}
	}
}

func TestRequestErrorCarriesStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetRepo(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.IsKind(err, errors.KindTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
	if got := errors.StatusOf(err); got != http.StatusNotFound {
		t.Errorf("StatusOf = %d, expected 404", got)
	}
}

func TestGetRepositoryTreeSingleObject(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "README.md", "path": "README.md", "type": "file"}`))
	}))

	entries, err := client.GetRepositoryTree(context.Background(), "my-repo", "README.md", "")
	if err != nil {
		t.Fatalf("GetRepositoryTree error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "README.md" {
		t.Errorf("entries = %+v", entries)
	}
}
