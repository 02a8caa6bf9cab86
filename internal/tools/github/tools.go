// Package github 注册 GitHub 相关工具：仓库、提交、PR、Issue、代码文件、
// Actions 和项目看板。
package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	gh "github.com/devops-agent/gateway/internal/clients/github"
	"github.com/devops-agent/gateway/internal/tools"
)

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Register 将 GitHub 工具注册到 registry。
func Register(r *tools.Registry, client *gh.Client) {
	r.Register(mcp.NewTool("github_list_repos",
		mcp.WithDescription("搜索 GitHub 仓库列表。搜索词留空则返回自己最近更新的仓库。"),
		mcp.WithString("search", mcp.Description("搜索关键词，留空则返回自己最近更新的仓库")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		search := args.String("search", "")

		var (
			repos []gh.Repo
			err   error
		)
		if search != "" {
			repos, err = client.SearchRepos(ctx, search, 0)
		} else {
			repos, err = client.ListRepos(ctx, 0)
		}
		if err != nil {
			return nil, err
		}

		result := make([]map[string]any, 0, len(repos))
		for _, repo := range repos {
			branch := repo.DefaultBranch
			if branch == "" {
				branch = "main"
			}
			result = append(result, map[string]any{
				"full_name":      repo.FullName,
				"description":    repo.Description,
				"html_url":       repo.HTMLURL,
				"default_branch": branch,
				"language":       repo.Language,
				"updated_at":     repo.UpdatedAt,
				"private":        repo.Private,
			})
		}
		return result, nil
	})

	r.Register(mcp.NewTool("github_get_commits",
		mcp.WithDescription("获取 GitHub 仓库的代码提交记录。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo 或短名，短名自动拼接默认 owner）")),
		mcp.WithString("branch", mcp.Description("分支名，留空使用默认分支")),
		mcp.WithString("since", mcp.Description("起始时间（ISO 8601 格式，如 2026-02-26T00:00:00+08:00），留空不限")),
		mcp.WithString("until", mcp.Description("截止时间（ISO 8601 格式），留空不限")),
		mcp.WithNumber("per_page", mcp.Description("返回条数，默认 20")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		commits, err := client.GetCommits(ctx, args.String("repo", ""), gh.CommitOptions{
			Branch:  args.String("branch", ""),
			Since:   args.String("since", ""),
			Until:   args.String("until", ""),
			PerPage: args.Int("per_page", 20),
		})
		if err != nil {
			return nil, err
		}

		result := make([]map[string]any, 0, len(commits))
		for _, c := range commits {
			result = append(result, map[string]any{
				"sha":      truncate(c.SHA, 8),
				"message":  strings.TrimSpace(c.Commit.Message),
				"author":   c.Commit.Author.Name,
				"date":     c.Commit.Author.Date,
				"html_url": c.HTMLURL,
			})
		}
		return result, nil
	})

	r.Register(mcp.NewTool("github_get_commit_diff",
		mcp.WithDescription("查看某次提交的代码变更（Diff）。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithString("sha", mcp.Required(), mcp.Description("提交的 SHA 值")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		detail, err := client.GetCommitDetail(ctx, args.String("repo", ""), args.String("sha", ""))
		if err != nil {
			return nil, err
		}

		result := make([]map[string]any, 0, len(detail.Files))
		for _, f := range detail.Files {
			result = append(result, map[string]any{
				"filename":  f.Filename,
				"status":    f.Status,
				"additions": f.Additions,
				"deletions": f.Deletions,
				"patch":     truncate(f.Patch, 500),
			})
		}
		return result, nil
	})

	r.Register(mcp.NewTool("github_get_pull_requests",
		mcp.WithDescription("获取 GitHub 仓库的 Pull Request 列表。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithString("state", mcp.Description("状态筛选：open / closed / all，默认 open")),
		mcp.WithNumber("per_page", mcp.Description("返回条数，默认 20")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		prs, err := client.GetPullRequests(ctx,
			args.String("repo", ""), args.String("state", "open"), args.Int("per_page", 20))
		if err != nil {
			return nil, err
		}

		result := make([]map[string]any, 0, len(prs))
		for _, pr := range prs {
			result = append(result, map[string]any{
				"number":     pr.Number,
				"title":      pr.Title,
				"state":      pr.State,
				"user":       pr.User.Login,
				"head":       pr.Head.Ref,
				"base":       pr.Base.Ref,
				"created_at": pr.CreatedAt,
				"html_url":   pr.HTMLURL,
			})
		}
		return result, nil
	})

	r.Register(mcp.NewTool("github_get_issues",
		mcp.WithDescription("获取 GitHub 仓库的 Issue 列表（不含 Pull Request）。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithString("state", mcp.Description("状态筛选：open / closed / all，默认 open")),
		mcp.WithString("labels", mcp.Description("标签筛选（逗号分隔），留空不限")),
		mcp.WithNumber("per_page", mcp.Description("返回条数，默认 20")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		issues, err := client.GetIssues(ctx,
			args.String("repo", ""), args.String("state", "open"),
			args.String("labels", ""), args.Int("per_page", 20))
		if err != nil {
			return nil, err
		}

		result := make([]map[string]any, 0, len(issues))
		for _, issue := range issues {
			assignees := make([]string, 0, len(issue.Assignees))
			for _, a := range issue.Assignees {
				assignees = append(assignees, a.Login)
			}
			labels := make([]string, 0, len(issue.Labels))
			for _, l := range issue.Labels {
				labels = append(labels, l.Name)
			}
			result = append(result, map[string]any{
				"number":     issue.Number,
				"title":      issue.Title,
				"state":      issue.State,
				"user":       issue.User.Login,
				"assignees":  assignees,
				"labels":     labels,
				"created_at": issue.CreatedAt,
				"html_url":   issue.HTMLURL,
			})
		}
		return result, nil
	})

	r.Register(mcp.NewTool("github_create_issue",
		mcp.WithDescription("在 GitHub 仓库上创建一个新 Issue。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue 标题")),
		mcp.WithString("body", mcp.Description("Issue 描述（支持 Markdown 格式）")),
		mcp.WithString("labels", mcp.Description(`标签（逗号分隔，如 "bug,urgent"）`)),
		mcp.WithString("assignees", mcp.Description("指派人用户名（逗号分隔）")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		title := args.String("title", "")
		issue, err := client.CreateIssue(ctx, args.String("repo", ""), title, gh.IssueOptions{
			Body:      args.String("body", ""),
			Labels:    splitCSV(args.String("labels", "")),
			Assignees: splitCSV(args.String("assignees", "")),
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"number":   issue.Number,
			"title":    issue.Title,
			"state":    issue.State,
			"html_url": issue.HTMLURL,
			"message":  fmt.Sprintf("Issue #%d 已创建: %s", issue.Number, title),
		}, nil
	})

	r.Register(mcp.NewTool("github_update_issue",
		mcp.WithDescription("更新 GitHub 仓库上已有的 Issue。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithNumber("issue_number", mcp.Required(), mcp.Description("Issue 编号")),
		mcp.WithString("title", mcp.Description("新标题（留空不修改）")),
		mcp.WithString("body", mcp.Description("新描述（留空不修改）")),
		mcp.WithString("state", mcp.Description("新状态：open / closed（留空不修改）")),
		mcp.WithString("labels", mcp.Description("新标签（逗号分隔，留空不修改）")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		issue, err := client.UpdateIssue(ctx,
			args.String("repo", ""), args.Int("issue_number", 0),
			args.String("title", ""), gh.IssueOptions{
				Body:   args.String("body", ""),
				State:  args.String("state", ""),
				Labels: splitCSV(args.String("labels", "")),
			})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"number":   issue.Number,
			"title":    issue.Title,
			"state":    issue.State,
			"html_url": issue.HTMLURL,
			"message":  fmt.Sprintf("Issue #%d 已更新", issue.Number),
		}, nil
	})

	r.Register(mcp.NewTool("github_get_file",
		mcp.WithDescription("读取 GitHub 仓库中的代码文件内容。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("文件路径（如 cmd/main.go）")),
		mcp.WithString("ref", mcp.Description("分支名或 commit SHA，留空使用默认分支")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		file, err := client.GetFile(ctx,
			args.String("repo", ""), args.String("file_path", ""), args.String("ref", ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"name":    file.Name,
			"path":    file.Path,
			"size":    file.Size,
			"content": file.Content,
		}, nil
	})

	r.Register(mcp.NewTool("github_search_code",
		mcp.WithDescription("在 GitHub 仓库代码中搜索关键词。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithString("query", mcp.Required(), mcp.Description("搜索关键词")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		matches, err := client.SearchCode(ctx, args.String("repo", ""), args.String("query", ""))
		if err != nil {
			return nil, err
		}

		result := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			result = append(result, map[string]any{
				"name":     m.Name,
				"path":     m.Path,
				"html_url": m.HTMLURL,
			})
		}
		return result, nil
	})

	r.Register(mcp.NewTool("github_get_actions",
		mcp.WithDescription("获取 GitHub Actions 工作流运行记录。"),
		mcp.WithString("repo", mcp.Required(), mcp.Description("仓库名（如 owner/repo）")),
		mcp.WithString("status", mcp.Description("状态筛选：completed / in_progress / queued，留空返回全部")),
		mcp.WithNumber("per_page", mcp.Description("返回条数，默认 10")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		runs, err := client.GetWorkflowRuns(ctx,
			args.String("repo", ""), args.String("status", ""), args.Int("per_page", 10))
		if err != nil {
			return nil, err
		}

		result := make([]map[string]any, 0, len(runs))
		for _, run := range runs {
			result = append(result, map[string]any{
				"id":         run.ID,
				"name":       run.Name,
				"status":     run.Status,
				"conclusion": run.Conclusion,
				"branch":     run.HeadBranch,
				"created_at": run.CreatedAt,
				"html_url":   run.HTMLURL,
			})
		}
		return result, nil
	})

	r.Register(mcp.NewTool("github_list_project_items",
		mcp.WithDescription("获取 GitHub 项目看板（Projects v2）中的条目。看板名支持模糊匹配。"),
		mcp.WithString("project", mcp.Required(), mcp.Description("看板名称（如 Roadmap），大小写不敏感，支持模糊匹配")),
		mcp.WithString("owner", mcp.Description("看板归属者，留空使用默认 owner")),
		mcp.WithNumber("limit", mcp.Description("返回条数，默认 50")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		owner := args.String("owner", "")
		if owner == "" {
			owner = client.Owner()
		}

		name := args.String("project", "")
		project, found, err := client.ResolveProject(ctx, owner, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return tools.Reject(fmt.Sprintf("未找到项目看板 '%s'（owner=%s）", name, owner)), nil
		}

		items, err := client.ListProjectItems(ctx, project.ID, args.Int("limit", 50))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"project": project.Title,
			"number":  project.Number,
			"items":   items,
		}, nil
	})
}
