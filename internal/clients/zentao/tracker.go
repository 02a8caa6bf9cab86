package zentao

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Person 人员引用。禅道在不同接口里把人员渲染成对象（含 realname）、
// 账号字符串、数字 ID 或 null，统一归一化为显示名。
type Person string

func (p *Person) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		*p = ""
		return nil
	}

	switch trimmed[0] {
	case '{':
		var obj struct {
			Account  string `json:"account"`
			Realname string `json:"realname"`
		}
		if err := sonic.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Realname != "" {
			*p = Person(obj.Realname)
		} else {
			*p = Person(obj.Account)
		}
	case '"':
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Person(s)
	default:
		// 数字 ID，保留十进制文本
		*p = Person(trimmed)
	}
	return nil
}

func (p Person) String() string { return string(p) }

// Product 产品记录。
type Product struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Bugs       int    `json:"bugs"`
	Unresolved int    `json:"unResolved"`
}

// Project 项目记录。
type Project struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Begin  string `json:"begin"`
	End    string `json:"end"`
	PM     Person `json:"PM"`
}

// Bug Bug 记录。列表和详情接口共用，详情多出的字段留在 Steps 等里。
type Bug struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Severity   int    `json:"severity"`
	Pri        int    `json:"pri"`
	Type       string `json:"type"`
	Steps      string `json:"steps"`
	Resolution string `json:"resolution"`
	AssignedTo Person `json:"assignedTo"`
	OpenedBy   Person `json:"openedBy"`
	OpenedDate string `json:"openedDate"`
}

// Task 任务记录。
type Task struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Pri        int     `json:"pri"`
	Desc       string  `json:"desc"`
	AssignedTo Person  `json:"assignedTo"`
	Deadline   string  `json:"deadline"`
	Estimate   float64 `json:"estimate"`
	Consumed   float64 `json:"consumed"`
	Left       float64 `json:"left"`
}

// Story 需求记录。
type Story struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Pri        int    `json:"pri"`
	Stage      string `json:"stage"`
	AssignedTo Person `json:"assignedTo"`
}

func limitParams(limit int, fallback int) url.Values {
	if limit <= 0 {
		limit = fallback
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	return params
}

// ListProducts 获取产品列表。
func (c *Client) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	var result struct {
		Products []Product `json:"products"`
	}
	if err := c.request(ctx, http.MethodGet, "/products", limitParams(limit, 50), nil, &result); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "获取到 %d 个产品", len(result.Products))
	return result.Products, nil
}

// ListProjects 获取项目列表。
func (c *Client) ListProjects(ctx context.Context, limit int) ([]Project, error) {
	var result struct {
		Projects []Project `json:"projects"`
	}
	if err := c.request(ctx, http.MethodGet, "/projects", limitParams(limit, 50), nil, &result); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "获取到 %d 个项目", len(result.Projects))
	return result.Projects, nil
}

// BugFilter Bug 列表筛选条件，零值字段不参与查询。
type BugFilter struct {
	Status     string // active | resolved | closed
	AssignedTo string
	Limit      int
}

// ListBugs 获取产品下的 Bug 列表。
func (c *Client) ListBugs(ctx context.Context, productID int, filter BugFilter) ([]Bug, error) {
	params := limitParams(filter.Limit, 20)
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.AssignedTo != "" {
		params.Set("assignedTo", filter.AssignedTo)
	}

	var result struct {
		Bugs []Bug `json:"bugs"`
	}
	path := fmt.Sprintf("/products/%d/bugs", productID)
	if err := c.request(ctx, http.MethodGet, path, params, nil, &result); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "获取到 %d 个 Bug（产品 %d）", len(result.Bugs), productID)
	return result.Bugs, nil
}

// GetBug 获取 Bug 详情。
func (c *Client) GetBug(ctx context.Context, bugID int) (*Bug, error) {
	var bug Bug
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/bugs/%d", bugID), nil, nil, &bug); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "获取 Bug 详情: #%d %s", bugID, bug.Title)
	return &bug, nil
}

// NewBug 创建 Bug 的输入。Severity/Pri/Type 为零值时套用默认。
type NewBug struct {
	Title      string
	Steps      string
	Severity   int
	Pri        int
	Type       string
	AssignedTo string
}

// CreateBug 在产品下创建 Bug，返回创建后的记录。
func (c *Client) CreateBug(ctx context.Context, productID int, in NewBug) (*Bug, error) {
	if in.Severity == 0 {
		in.Severity = 3
	}
	if in.Pri == 0 {
		in.Pri = 3
	}
	if in.Type == "" {
		in.Type = "codeerror"
	}

	body := map[string]any{
		"product":  productID,
		"title":    in.Title,
		"steps":    in.Steps,
		"severity": in.Severity,
		"pri":      in.Pri,
		"type":     in.Type,
	}
	if in.AssignedTo != "" {
		body["assignedTo"] = in.AssignedTo
	}

	var bug Bug
	path := fmt.Sprintf("/products/%d/bugs", productID)
	if err := c.request(ctx, http.MethodPost, path, nil, body, &bug); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "Bug 已创建: #%d %s", bug.ID, in.Title)
	return &bug, nil
}

// UpdateBug 更新 Bug，fields 原样提交（如 status、assignedTo、severity）。
func (c *Client) UpdateBug(ctx context.Context, bugID int, fields map[string]any) (*Bug, error) {
	var bug Bug
	if err := c.request(ctx, http.MethodPut, fmt.Sprintf("/bugs/%d", bugID), nil, fields, &bug); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "Bug #%d 已更新", bugID)
	return &bug, nil
}

// GetTask 获取任务详情。
func (c *Client) GetTask(ctx context.Context, taskID int) (*Task, error) {
	var task Task
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), nil, nil, &task); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "已获取任务 #%d 详情", taskID)
	return &task, nil
}

// ListTasks 获取执行（迭代）下的任务列表。
func (c *Client) ListTasks(ctx context.Context, executionID int, status string, limit int) ([]Task, error) {
	params := limitParams(limit, 20)
	if status != "" {
		params.Set("status", status)
	}

	var result struct {
		Tasks []Task `json:"tasks"`
	}
	path := fmt.Sprintf("/executions/%d/tasks", executionID)
	if err := c.request(ctx, http.MethodGet, path, params, nil, &result); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "获取到 %d 个任务（执行 %d）", len(result.Tasks), executionID)
	return result.Tasks, nil
}

// NewTask 创建任务的输入。
type NewTask struct {
	Name       string
	AssignedTo string
	Estimate   float64
	Pri        int
	Desc       string
}

// CreateTask 在执行下创建任务，返回创建后的记录。
func (c *Client) CreateTask(ctx context.Context, executionID int, in NewTask) (*Task, error) {
	if in.Pri == 0 {
		in.Pri = 3
	}

	body := map[string]any{
		"name":     in.Name,
		"pri":      in.Pri,
		"estimate": in.Estimate,
	}
	if in.AssignedTo != "" {
		body["assignedTo"] = in.AssignedTo
	}
	if in.Desc != "" {
		body["desc"] = in.Desc
	}

	var task Task
	path := fmt.Sprintf("/executions/%d/tasks", executionID)
	if err := c.request(ctx, http.MethodPost, path, nil, body, &task); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "任务已创建: #%d %s", task.ID, in.Name)
	return &task, nil
}

// ListStories 获取产品下的需求列表。
func (c *Client) ListStories(ctx context.Context, productID int, status string, limit int) ([]Story, error) {
	params := limitParams(limit, 20)
	if status != "" {
		params.Set("status", status)
	}

	var result struct {
		Stories []Story `json:"stories"`
	}
	path := fmt.Sprintf("/products/%d/stories", productID)
	if err := c.request(ctx, http.MethodGet, path, params, nil, &result); err != nil {
		return nil, err
	}
	c.logger.InfoTag("ZenTao", "获取到 %d 个需求（产品 %d）", len(result.Stories), productID)
	return result.Stories, nil
}
