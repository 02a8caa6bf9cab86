package tools

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sashabaranov/go-openai"

	"github.com/devops-agent/gateway/internal/platform/errors"
	"github.com/devops-agent/gateway/internal/platform/logging"
)

// Handler 工具处理函数。返回值为 string 时直接作为文本结果，
// 否则序列化为带缩进的 JSON。
type Handler func(ctx context.Context, args Args) (any, error)

// Registry registers tools on the MCP server and keeps an openai.Tool
// mirror so the status API and LLM hosts can inspect the catalogue
// without talking MCP.
type Registry struct {
	server *server.MCPServer
	logger *logging.Logger

	mu     sync.RWMutex
	mirror map[string]openai.Tool
}

func NewRegistry(s *server.MCPServer, logger *logging.Logger) *Registry {
	return &Registry{
		server: s,
		logger: logger,
		mirror: make(map[string]openai.Tool),
	}
}

// Register wires a tool definition to its handler. Every invocation gets a
// short correlation ID carried through the log lines of the call.
func (r *Registry) Register(tool mcp.Tool, handler Handler) {
	r.server.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID := uuid.NewString()[:8]
		r.logger.InfoTag("Tool", "调用 %s (call=%s)", tool.Name, callID)

		result, err := handler(ctx, Args(request.GetArguments()))
		if err != nil {
			r.logger.ErrorTag("Tool", "%s 失败 (call=%s): %v", tool.Name, callID, err)
			return mcp.NewToolResultError(err.Error()), nil
		}

		text, err := renderResult(result)
		if err != nil {
			r.logger.ErrorTag("Tool", "%s 结果序列化失败 (call=%s): %v", tool.Name, callID, err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		r.logger.DebugTag("Tool", "%s 完成 (call=%s)", tool.Name, callID)
		return mcp.NewToolResultText(text), nil
	})

	r.mu.Lock()
	r.mirror[tool.Name] = openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		},
	}
	r.mu.Unlock()
}

// GetAvailableTools 返回 openai 函数调用格式的工具镜像。
func (r *Registry) GetAvailableTools() []openai.Tool {
	r.mu.RLock()
	cloned := maps.Clone(r.mirror)
	r.mu.RUnlock()

	names := make([]string, 0, len(cloned))
	for name := range cloned {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]openai.Tool, 0, len(cloned))
	for _, name := range names {
		out = append(out, cloned[name])
	}
	return out
}

// Names 返回已注册工具名（有序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.mirror))
	for name := range r.mirror {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func renderResult(result any) (string, error) {
	if text, ok := result.(string); ok {
		return text, nil
	}
	data, err := sonic.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.KindUnknown, "render", "序列化工具结果失败", err)
	}
	return string(data), nil
}

// Reject 构造工具级失败载荷（不作为协议错误返回，由调用方自行纠正）。
func Reject(message string) map[string]any {
	return map[string]any{"ok": false, "error": message}
}
