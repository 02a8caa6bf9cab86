// Package slack 注册 Slack 相关工具：消息发送、任务卡片、频道查询。
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	sl "github.com/devops-agent/gateway/internal/clients/slack"
	"github.com/devops-agent/gateway/internal/tools"
)

// mention 将负责人名字解析成 <@ID> 提及；查不到时保留原文。
func mention(ctx context.Context, client *sl.Client, assignee string) string {
	if assignee == "" || strings.HasPrefix(assignee, "<@") {
		return assignee
	}
	user, ok, err := client.FindUserByName(ctx, assignee)
	if err != nil || !ok {
		return assignee
	}
	return "<@" + user.ID + ">"
}

// Register 将 Slack 工具注册到 registry。
func Register(r *tools.Registry, client *sl.Client) {
	r.Register(mcp.NewTool("slack_send_message",
		mcp.WithDescription("发送消息到 Slack 频道。"),
		mcp.WithString("text", mcp.Required(), mcp.Description("消息内容（支持 Slack mrkdwn 格式，如 *加粗*、`代码`、> 引用）")),
		mcp.WithString("channel", mcp.Description("目标频道（如 #general），留空则使用默认频道")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		channel := args.String("channel", "")
		target := ""
		if channel != "" {
			id, errMsg, err := client.ValidateAndResolveChannel(ctx, channel)
			if err != nil {
				return nil, err
			}
			if errMsg != "" {
				return tools.Reject(errMsg), nil
			}
			target = id
		}

		receipt, err := client.SendMessage(ctx, args.String("text", ""), target)
		if err != nil {
			return nil, err
		}
		return receipt, nil
	})

	r.Register(mcp.NewTool("slack_create_task",
		mcp.WithDescription("在 Slack 频道创建一个需求任务卡片。创建后会返回 channel 和 ts（消息 ID），后续可通过 slack_update_task 更新状态。"),
		mcp.WithString("title", mcp.Required(), mcp.Description("任务标题")),
		mcp.WithString("description", mcp.Description("任务描述")),
		mcp.WithString("assignee", mcp.Description("负责人用户名，留空不限")),
		mcp.WithString("priority", mcp.Description("优先级（紧急 / 高 / 普通 / 低），默认普通")),
		mcp.WithString("channel", mcp.Description("目标频道（如 #general），留空则使用默认频道")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		channel := args.String("channel", "")
		target := ""
		if channel != "" {
			id, errMsg, err := client.ValidateAndResolveChannel(ctx, channel)
			if err != nil {
				return nil, err
			}
			if errMsg != "" {
				return tools.Reject(errMsg), nil
			}
			target = id
		}

		title := args.String("title", "")
		blocks := sl.BuildTaskBlocks(
			title,
			args.String("description", ""),
			mention(ctx, client, args.String("assignee", "")),
			"📋 待处理",
			args.String("priority", "普通"),
		)

		receipt, err := client.SendBlocks(ctx, blocks, "📌 新任务: "+title, target)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"ok":      receipt.OK,
			"channel": receipt.Channel,
			"ts":      receipt.TS,
			"message": fmt.Sprintf("任务 '%s' 已创建。请保存 channel=%s 和 ts=%s，用于后续更新任务状态。",
				title, receipt.Channel, receipt.TS),
		}, nil
	})

	r.Register(mcp.NewTool("slack_update_task",
		mcp.WithDescription("更新 Slack 上已有的任务卡片状态。需要提供创建任务时返回的 channel 和 ts。"),
		mcp.WithString("channel", mcp.Required(), mcp.Description("任务消息所在的频道 ID")),
		mcp.WithString("ts", mcp.Required(), mcp.Description("任务消息的时间戳 ID（创建任务时返回的 ts 值）")),
		mcp.WithString("title", mcp.Required(), mcp.Description("任务标题")),
		mcp.WithString("status", mcp.Required(), mcp.Description("新的任务状态（如：📋 待处理 / 🔄 进行中 / ✅ 已完成 / ❌ 已取消）")),
		mcp.WithString("description", mcp.Description("任务描述")),
		mcp.WithString("assignee", mcp.Description("负责人")),
		mcp.WithString("priority", mcp.Description("优先级，默认普通")),
	), func(ctx context.Context, args tools.Args) (any, error) {
		title := args.String("title", "")
		status := args.String("status", "")
		blocks := sl.BuildTaskBlocks(
			title,
			args.String("description", ""),
			mention(ctx, client, args.String("assignee", "")),
			status,
			args.String("priority", "普通"),
		)

		receipt, err := client.UpdateMessage(ctx,
			args.String("channel", ""), args.String("ts", ""),
			fmt.Sprintf("📌 任务更新: %s - %s", title, status), blocks)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"ok":      receipt.OK,
			"channel": receipt.Channel,
			"ts":      receipt.TS,
			"message": fmt.Sprintf("任务 '%s' 状态已更新为: %s", title, status),
		}, nil
	})

	r.Register(mcp.NewTool("slack_list_channels",
		mcp.WithDescription("获取 Slack 工作区的公共频道列表。"),
	), func(ctx context.Context, args tools.Args) (any, error) {
		channels, err := client.ListChannels(ctx, 0)
		if err != nil {
			return nil, err
		}
		return channels, nil
	})
}
