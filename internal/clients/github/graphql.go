package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/devops-agent/gateway/internal/platform/errors"
)

// GraphQL issues a query against the GraphQL endpoint and unmarshals the
// data payload into out. A response carrying an errors array is fatal: the
// first error's message is raised as a backend error.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	data, err := sonic.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "graphql", "编码查询失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(errors.KindTransport, "graphql", "创建请求失败", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "graphql", "请求失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "graphql", "读取响应失败", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewStatus("graphql",
			fmt.Sprintf("POST %s: %s", c.graphqlURL, strings.TrimSpace(string(body))),
			resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return errors.Wrap(errors.KindBackend, "graphql", "解析响应失败", err)
	}
	if len(envelope.Errors) > 0 {
		return errors.New(errors.KindBackend, "graphql", envelope.Errors[0].Message)
	}

	if out != nil && envelope.Data != nil {
		if err := sonic.Unmarshal(envelope.Data, out); err != nil {
			return errors.Wrap(errors.KindBackend, "graphql", "解析数据失败", err)
		}
	}
	return nil
}

// Project 项目看板（Projects V2）。
type Project struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Number int    `json:"number"`
}

const listProjectsQuery = `
query($owner: String!) {
  repositoryOwner(login: $owner) {
    projectsV2(first: 50) {
      nodes {
        id
        title
        number
      }
    }
  }
}`

// ResolveProject 按名称查找项目看板（大小写不敏感，精确匹配优先于包含匹配，
// 多个命中时返回列表顺序中的第一个）。未命中返回 ok=false，不视为错误。
func (c *Client) ResolveProject(ctx context.Context, owner, name string) (Project, bool, error) {
	if owner == "" {
		owner = c.owner
	}

	var result struct {
		RepositoryOwner struct {
			ProjectsV2 struct {
				Nodes []Project `json:"nodes"`
			} `json:"projectsV2"`
		} `json:"repositoryOwner"`
	}
	err := c.GraphQL(ctx, listProjectsQuery, map[string]any{"owner": owner}, &result)
	if err != nil {
		return Project{}, false, err
	}

	projects := result.RepositoryOwner.ProjectsV2.Nodes
	target := strings.ToLower(strings.TrimSpace(name))

	for _, p := range projects {
		if strings.ToLower(p.Title) == target {
			c.logger.InfoTag("GitHub", "精确匹配项目: %s → %s (#%d)", name, p.Title, p.Number)
			return p, true, nil
		}
	}
	for _, p := range projects {
		if strings.Contains(strings.ToLower(p.Title), target) {
			c.logger.InfoTag("GitHub", "模糊匹配项目: %s → %s (#%d)", name, p.Title, p.Number)
			return p, true, nil
		}
	}
	c.logger.WarnTag("GitHub", "未找到项目: %s", name)
	return Project{}, false, nil
}

// ProjectItem 项目看板中的条目。
type ProjectItem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Number int    `json:"number"`
	State  string `json:"state"`
}

const listProjectItemsQuery = `
query($project: ID!, $first: Int!) {
  node(id: $project) {
    ... on ProjectV2 {
      items(first: $first) {
        nodes {
          type
          content {
            ... on Issue {
              title
              number
              state
            }
            ... on PullRequest {
              title
              number
              state
            }
            ... on DraftIssue {
              title
            }
          }
        }
      }
    }
  }
}`

// ListProjectItems 获取项目看板的条目列表。
func (c *Client) ListProjectItems(ctx context.Context, projectID string, limit int) ([]ProjectItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var result struct {
		Node struct {
			Items struct {
				Nodes []struct {
					Type    string `json:"type"`
					Content struct {
						Title  string `json:"title"`
						Number int    `json:"number"`
						State  string `json:"state"`
					} `json:"content"`
				} `json:"nodes"`
			} `json:"items"`
		} `json:"node"`
	}
	err := c.GraphQL(ctx, listProjectItemsQuery, map[string]any{
		"project": projectID,
		"first":   limit,
	}, &result)
	if err != nil {
		return nil, err
	}

	items := make([]ProjectItem, 0, len(result.Node.Items.Nodes))
	for _, node := range result.Node.Items.Nodes {
		items = append(items, ProjectItem{
			Type:   node.Type,
			Title:  node.Content.Title,
			Number: node.Content.Number,
			State:  node.Content.State,
		})
	}
	c.logger.InfoTag("GitHub", "获取到 %d 个看板条目 (项目=%s)", len(items), projectID)
	return items, nil
}
