package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/platform/errors"
	"github.com/devops-agent/gateway/internal/platform/logging"
)

const apiVersion = "2022-11-28"

// Client is a stateless bearer-token client for the GitHub REST API, with a
// secondary GraphQL endpoint for project board operations. Safe for
// concurrent use: it holds no mutable state beyond the shared http.Client.
type Client struct {
	apiBase    string
	graphqlURL string
	token      string
	owner      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient 初始化 GitHub 客户端。owner 为默认仓库拥有者，短仓库名会自动补全。
func NewClient(cfg config.GitHubConfig, logger *logging.Logger) *Client {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	graphqlURL := cfg.GraphQLURL
	if graphqlURL == "" {
		graphqlURL = apiBase + "/graphql"
	}
	return &Client{
		apiBase:    apiBase,
		graphqlURL: graphqlURL,
		token:      cfg.Token,
		owner:      cfg.Owner,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Owner 返回配置的默认仓库归属者。
func (c *Client) Owner() string {
	return c.owner
}

// FullRepo 补全仓库全名（owner/repo）。短名拼接默认 owner，完整名直接返回。
func (c *Client) FullRepo(repo string) string {
	if strings.Contains(repo, "/") {
		return repo
	}
	if c.owner != "" {
		return c.owner + "/" + repo
	}
	return repo
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, body, out any) error {
	reqURL := c.apiBase + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.KindTransport, "request", "编码请求体失败", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "request", "创建请求失败", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "request", fmt.Sprintf("%s %s 失败", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "request", "读取响应失败", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewStatus("request",
			fmt.Sprintf("%s %s: %s", method, path, strings.TrimSpace(string(data))),
			resp.StatusCode)
	}

	if out != nil {
		if err := sonic.Unmarshal(data, out); err != nil {
			return errors.Wrap(errors.KindBackend, "request", "解析响应失败", err)
		}
	}
	return nil
}

// Repo 仓库概要信息。
type Repo struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	UpdatedAt     string `json:"updated_at"`
	Private       bool   `json:"private"`
}

// ListRepos 获取当前用户的仓库列表（按更新时间倒序）。
func (c *Client) ListRepos(ctx context.Context, perPage int) ([]Repo, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("sort", "updated")
	params.Set("direction", "desc")

	var repos []Repo
	if err := c.request(ctx, http.MethodGet, "/user/repos", params, nil, &repos); err != nil {
		return nil, err
	}
	c.logger.DebugTag("GitHub", "获取到 %d 个仓库", len(repos))
	return repos, nil
}

// SearchRepos 搜索仓库。
func (c *Client) SearchRepos(ctx context.Context, query string, perPage int) ([]Repo, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("sort", "updated")

	var result struct {
		Items []Repo `json:"items"`
	}
	if err := c.request(ctx, http.MethodGet, "/search/repositories", params, nil, &result); err != nil {
		return nil, err
	}
	c.logger.DebugTag("GitHub", "搜索到 %d 个仓库", len(result.Items))
	return result.Items, nil
}

// GetRepo 获取仓库详情。
func (c *Client) GetRepo(ctx context.Context, repo string) (*Repo, error) {
	full := c.FullRepo(repo)
	var result Repo
	if err := c.request(ctx, http.MethodGet, "/repos/"+full, nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Account 用户引用。
type Account struct {
	Login string `json:"login"`
}

// CommitFile 单个文件的变更信息。
type CommitFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// Commit 提交记录。
type Commit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Files []CommitFile `json:"files"`
}

// CommitOptions 提交查询的可选筛选条件，零值表示不限。
type CommitOptions struct {
	Branch  string
	Since   string
	Until   string
	PerPage int
}

// GetCommits 获取提交记录。留空的筛选条件不会出现在请求参数中。
func (c *Client) GetCommits(ctx context.Context, repo string, opts CommitOptions) ([]Commit, error) {
	full := c.FullRepo(repo)
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 20
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	if opts.Branch != "" {
		params.Set("sha", opts.Branch)
	}
	if opts.Since != "" {
		params.Set("since", opts.Since)
	}
	if opts.Until != "" {
		params.Set("until", opts.Until)
	}

	var commits []Commit
	if err := c.request(ctx, http.MethodGet, "/repos/"+full+"/commits", params, nil, &commits); err != nil {
		return nil, err
	}
	c.logger.InfoTag("GitHub", "获取到 %d 条提交记录 (仓库=%s)", len(commits), full)
	return commits, nil
}

// GetCommitDetail 获取某次提交的详情（含 Diff）。
func (c *Client) GetCommitDetail(ctx context.Context, repo, sha string) (*Commit, error) {
	full := c.FullRepo(repo)
	var commit Commit
	if err := c.request(ctx, http.MethodGet, "/repos/"+full+"/commits/"+sha, nil, nil, &commit); err != nil {
		return nil, err
	}
	c.logger.InfoTag("GitHub", "获取到提交 %.8s 的详情 (%d 个文件变更)", sha, len(commit.Files))
	return &commit, nil
}

// PullRequest PR 概要信息。
type PullRequest struct {
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	State     string  `json:"state"`
	User      Account `json:"user"`
	CreatedAt string  `json:"created_at"`
	HTMLURL   string  `json:"html_url"`
	Head      struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// GetPullRequests 获取 Pull Request 列表。state 取值 open / closed / all。
func (c *Client) GetPullRequests(ctx context.Context, repo, state string, perPage int) ([]PullRequest, error) {
	full := c.FullRepo(repo)
	if state == "" {
		state = "open"
	}
	if perPage <= 0 {
		perPage = 20
	}

	params := url.Values{}
	params.Set("state", state)
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("sort", "updated")

	var prs []PullRequest
	if err := c.request(ctx, http.MethodGet, "/repos/"+full+"/pulls", params, nil, &prs); err != nil {
		return nil, err
	}
	c.logger.InfoTag("GitHub", "获取到 %d 个 PR (仓库=%s, 状态=%s)", len(prs), full, state)
	return prs, nil
}

// Label Issue 标签。
type Label struct {
	Name string `json:"name"`
}

// Issue 条目。PullRequest 字段非空说明该条目实际上是一个 PR。
type Issue struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	State       string          `json:"state"`
	User        Account         `json:"user"`
	Assignees   []Account       `json:"assignees"`
	Labels      []Label         `json:"labels"`
	CreatedAt   string          `json:"created_at"`
	HTMLURL     string          `json:"html_url"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

// GetIssues 获取 Issue 列表。GitHub 会把 PR 也当作 Issue 返回，这里会过滤掉。
func (c *Client) GetIssues(ctx context.Context, repo, state, labels string, perPage int) ([]Issue, error) {
	full := c.FullRepo(repo)
	if state == "" {
		state = "open"
	}
	if perPage <= 0 {
		perPage = 20
	}

	params := url.Values{}
	params.Set("state", state)
	params.Set("per_page", strconv.Itoa(perPage))
	if labels != "" {
		params.Set("labels", labels)
	}

	var raw []Issue
	if err := c.request(ctx, http.MethodGet, "/repos/"+full+"/issues", params, nil, &raw); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(raw))
	for _, issue := range raw {
		if issue.PullRequest != nil {
			continue
		}
		issues = append(issues, issue)
	}
	c.logger.InfoTag("GitHub", "获取到 %d 个 Issue (仓库=%s, 状态=%s)", len(issues), full, state)
	return issues, nil
}

// IssueOptions 创建/更新 Issue 的可选字段，零值不会出现在请求体中。
type IssueOptions struct {
	Body      string
	State     string
	Labels    []string
	Assignees []string
}

// CreateIssue 创建 Issue。
func (c *Client) CreateIssue(ctx context.Context, repo, title string, opts IssueOptions) (*Issue, error) {
	full := c.FullRepo(repo)
	body := map[string]any{"title": title}
	if opts.Body != "" {
		body["body"] = opts.Body
	}
	if len(opts.Labels) > 0 {
		body["labels"] = opts.Labels
	}
	if len(opts.Assignees) > 0 {
		body["assignees"] = opts.Assignees
	}

	var issue Issue
	if err := c.request(ctx, http.MethodPost, "/repos/"+full+"/issues", nil, body, &issue); err != nil {
		return nil, err
	}
	c.logger.InfoTag("GitHub", "创建 Issue #%d: %s (仓库=%s)", issue.Number, title, full)
	return &issue, nil
}

// UpdateIssue 更新 Issue。留空字段不修改。
func (c *Client) UpdateIssue(ctx context.Context, repo string, issueNumber int, title string, opts IssueOptions) (*Issue, error) {
	full := c.FullRepo(repo)
	body := map[string]any{}
	if title != "" {
		body["title"] = title
	}
	if opts.Body != "" {
		body["body"] = opts.Body
	}
	if opts.State != "" {
		body["state"] = opts.State
	}
	if opts.Labels != nil {
		body["labels"] = opts.Labels
	}

	path := fmt.Sprintf("/repos/%s/issues/%d", full, issueNumber)
	var issue Issue
	if err := c.request(ctx, http.MethodPatch, path, nil, body, &issue); err != nil {
		return nil, err
	}
	c.logger.InfoTag("GitHub", "更新 Issue #%d (仓库=%s)", issueNumber, full)
	return &issue, nil
}

// FileContent 文件内容。Content 已解码为文本。
type FileContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int    `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetFile 读取仓库中的文件内容。GitHub 返回的 content 是 base64 编码的，
// 且可能含换行符；解码后无效的 UTF-8 字节以占位符替换。
func (c *Client) GetFile(ctx context.Context, repo, filePath, ref string) (*FileContent, error) {
	full := c.FullRepo(repo)
	params := url.Values{}
	if ref != "" {
		params.Set("ref", ref)
	}

	var file FileContent
	if err := c.request(ctx, http.MethodGet, "/repos/"+full+"/contents/"+filePath, params, nil, &file); err != nil {
		return nil, err
	}

	if file.Content != "" && file.Encoding == "base64" {
		raw := strings.ReplaceAll(file.Content, "\n", "")
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, errors.Wrap(errors.KindBackend, "get_file", "解码文件内容失败", err)
		}
		file.Content = strings.ToValidUTF8(string(decoded), "�")
		file.Encoding = "utf-8"
	}
	c.logger.InfoTag("GitHub", "读取文件: %s (仓库=%s)", filePath, full)
	return &file, nil
}

// TreeEntry 目录下的条目。
type TreeEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Type    string `json:"type"`
	Size    int    `json:"size"`
	HTMLURL string `json:"html_url"`
}

// GetRepositoryTree 获取仓库目录内容。path 留空获取根目录。
// 当路径指向单个文件时，GitHub 返回对象而非数组，这里统一成数组。
func (c *Client) GetRepositoryTree(ctx context.Context, repo, path, ref string) ([]TreeEntry, error) {
	full := c.FullRepo(repo)
	apiPath := "/repos/" + full + "/contents"
	if path != "" {
		apiPath += "/" + path
	}
	params := url.Values{}
	if ref != "" {
		params.Set("ref", ref)
	}

	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, apiPath, params, nil, &raw); err != nil {
		return nil, err
	}

	var entries []TreeEntry
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		var single TreeEntry
		if err := sonic.Unmarshal(raw, &single); err != nil {
			return nil, errors.Wrap(errors.KindBackend, "get_tree", "解析目录内容失败", err)
		}
		entries = []TreeEntry{single}
	}

	display := path
	if display == "" {
		display = "/"
	}
	c.logger.InfoTag("GitHub", "获取目录: %s (仓库=%s, %d 项)", display, full, len(entries))
	return entries, nil
}

// CodeMatch 代码搜索命中。
type CodeMatch struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	HTMLURL string `json:"html_url"`
}

// SearchCode 在仓库中搜索代码。
func (c *Client) SearchCode(ctx context.Context, repo, query string) ([]CodeMatch, error) {
	full := c.FullRepo(repo)
	params := url.Values{}
	params.Set("q", query+" repo:"+full)
	params.Set("per_page", "20")

	var result struct {
		Items []CodeMatch `json:"items"`
	}
	if err := c.request(ctx, http.MethodGet, "/search/code", params, nil, &result); err != nil {
		return nil, err
	}
	c.logger.InfoTag("GitHub", "代码搜索: '%s' 在 %s 中找到 %d 个结果", query, full, len(result.Items))
	return result.Items, nil
}

// WorkflowRun Actions 工作流运行记录。
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HeadBranch string `json:"head_branch"`
	CreatedAt  string `json:"created_at"`
	HTMLURL    string `json:"html_url"`
}

// GetWorkflowRuns 获取 GitHub Actions 工作流运行记录。
func (c *Client) GetWorkflowRuns(ctx context.Context, repo, status string, perPage int) ([]WorkflowRun, error) {
	full := c.FullRepo(repo)
	if perPage <= 0 {
		perPage = 10
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	if status != "" {
		params.Set("status", status)
	}

	var result struct {
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	if err := c.request(ctx, http.MethodGet, "/repos/"+full+"/actions/runs", params, nil, &result); err != nil {
		return nil, err
	}
	c.logger.InfoTag("GitHub", "获取到 %d 条 Actions 记录 (仓库=%s)", len(result.WorkflowRuns), full)
	return result.WorkflowRuns, nil
}
