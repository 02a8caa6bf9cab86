// Package zentao 注册禅道相关工具：Bug 管理、任务管理、需求查询。
package zentao

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	zt "github.com/devops-agent/gateway/internal/clients/zentao"
	"github.com/devops-agent/gateway/internal/tools"
)

// Register 将禅道工具注册到 registry。
func Register(r *tools.Registry, client *zt.Client) {
	r.Register(mcp.NewTool("zentao_list_products",
		mcp.WithDescription("获取禅道产品列表。"),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.ListProducts(ctx, 0)
	})

	r.Register(mcp.NewTool("zentao_list_projects",
		mcp.WithDescription("获取禅道项目列表。"),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.ListProjects(ctx, 0)
	})

	r.Register(mcp.NewTool("zentao_list_bugs",
		mcp.WithDescription("获取禅道 Bug 列表。"),
		mcp.WithNumber("product_id", mcp.Required(), mcp.Description("产品 ID（可通过 zentao_list_products 获取）")),
		mcp.WithString("status", mcp.Description("状态筛选（active/resolved/closed），留空返回全部")),
		mcp.WithString("assignedTo", mcp.Description("指派人筛选，留空返回全部")),
		mcp.WithNumber("per_page", mcp.Description("返回条数，默认 20")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.ListBugs(ctx, args.Int("product_id", 0), zt.BugFilter{
			Status:     args.String("status", ""),
			AssignedTo: args.String("assignedTo", ""),
			Limit:      args.Int("per_page", 20),
		})
	})

	r.Register(mcp.NewTool("zentao_get_bug",
		mcp.WithDescription("获取禅道 Bug 详情。"),
		mcp.WithNumber("bug_id", mcp.Required(), mcp.Description("Bug ID")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.GetBug(ctx, args.Int("bug_id", 0))
	})

	r.Register(mcp.NewTool("zentao_create_bug",
		mcp.WithDescription("在禅道创建一个 Bug。"),
		mcp.WithNumber("product_id", mcp.Required(), mcp.Description("产品 ID")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Bug 标题")),
		mcp.WithString("steps", mcp.Description("重现步骤（支持 HTML 格式）")),
		mcp.WithNumber("severity", mcp.Description("严重程度（1=致命, 2=严重, 3=一般, 4=轻微），默认 3")),
		mcp.WithNumber("pri", mcp.Description("优先级（1=紧急, 2=高, 3=中, 4=低），默认 3")),
		mcp.WithString("bug_type", mcp.Description("Bug 类型（codeerror/designdefect/config/install/security/performance/standard/automation/other）")),
		mcp.WithString("assignedTo", mcp.Description("指派人账号名")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.CreateBug(ctx, args.Int("product_id", 0), zt.NewBug{
			Title:      args.String("title", ""),
			Steps:      args.String("steps", ""),
			Severity:   args.Int("severity", 3),
			Pri:        args.Int("pri", 3),
			Type:       args.String("bug_type", "codeerror"),
			AssignedTo: args.String("assignedTo", ""),
		})
	})

	r.Register(mcp.NewTool("zentao_update_bug",
		mcp.WithDescription("更新禅道 Bug（如状态、指派人、严重程度）。"),
		mcp.WithNumber("bug_id", mcp.Required(), mcp.Description("Bug ID")),
		mcp.WithString("status", mcp.Description("新状态（active/resolved/closed），留空不修改")),
		mcp.WithString("assignedTo", mcp.Description("新指派人账号名，留空不修改")),
		mcp.WithNumber("severity", mcp.Description("新严重程度，0 表示不修改")),
		mcp.WithNumber("pri", mcp.Description("新优先级，0 表示不修改")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		fields := map[string]any{}
		if v := args.String("status", ""); v != "" {
			fields["status"] = v
		}
		if v := args.String("assignedTo", ""); v != "" {
			fields["assignedTo"] = v
		}
		if v := args.Int("severity", 0); v > 0 {
			fields["severity"] = v
		}
		if v := args.Int("pri", 0); v > 0 {
			fields["pri"] = v
		}
		if len(fields) == 0 {
			return tools.Reject("没有要更新的字段"), nil
		}
		return client.UpdateBug(ctx, args.Int("bug_id", 0), fields)
	})

	r.Register(mcp.NewTool("zentao_get_task",
		mcp.WithDescription("获取禅道任务详情。"),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("任务 ID")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.GetTask(ctx, args.Int("task_id", 0))
	})

	r.Register(mcp.NewTool("zentao_list_tasks",
		mcp.WithDescription("获取禅道任务列表。"),
		mcp.WithNumber("execution_id", mcp.Required(), mcp.Description("执行（迭代）ID")),
		mcp.WithString("status", mcp.Description("状态筛选（wait/doing/done/closed），留空返回全部")),
		mcp.WithNumber("per_page", mcp.Description("返回条数，默认 20")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.ListTasks(ctx,
			args.Int("execution_id", 0), args.String("status", ""), args.Int("per_page", 20))
	})

	r.Register(mcp.NewTool("zentao_create_task",
		mcp.WithDescription("在禅道创建一个任务。"),
		mcp.WithNumber("execution_id", mcp.Required(), mcp.Description("执行（迭代）ID")),
		mcp.WithString("name", mcp.Required(), mcp.Description("任务名称")),
		mcp.WithString("assignedTo", mcp.Description("指派人账号名")),
		mcp.WithNumber("estimate", mcp.Description("预计工时（小时）")),
		mcp.WithNumber("pri", mcp.Description("优先级（1=紧急, 2=高, 3=中, 4=低），默认 3")),
		mcp.WithString("desc", mcp.Description("任务描述")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.CreateTask(ctx, args.Int("execution_id", 0), zt.NewTask{
			Name:       args.String("name", ""),
			AssignedTo: args.String("assignedTo", ""),
			Estimate:   args.Float("estimate", 0),
			Pri:        args.Int("pri", 3),
			Desc:       args.String("desc", ""),
		})
	})

	r.Register(mcp.NewTool("zentao_list_stories",
		mcp.WithDescription("获取禅道需求列表。"),
		mcp.WithNumber("product_id", mcp.Required(), mcp.Description("产品 ID（可通过 zentao_list_products 获取）")),
		mcp.WithString("status", mcp.Description("状态筛选（draft/active/closed/changed），留空返回全部")),
		mcp.WithNumber("per_page", mcp.Description("返回条数，默认 20")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		return client.ListStories(ctx,
			args.Int("product_id", 0), args.String("status", ""), args.Int("per_page", 20))
	})
}
