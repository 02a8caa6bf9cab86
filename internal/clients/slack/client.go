package slack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/platform/errors"
	"github.com/devops-agent/gateway/internal/platform/logging"
)

// Client is a bearer-token client for the Slack Web API, layered with two
// process-lifetime directory caches (users and channels) used to resolve
// human-readable names to stable IDs. Caches are populated once by a full
// paginated scan on first use and never refreshed.
type Client struct {
	apiBase        string
	token          string
	defaultChannel string
	httpClient     *http.Client
	logger         *logging.Logger

	mu             sync.RWMutex
	users          []User
	usersLoaded    bool
	channels       []Channel
	channelsLoaded bool
	sf             singleflight.Group
}

// NewClient 初始化 Slack 客户端。defaultChannel 为未指定频道时的目标。
func NewClient(cfg config.SlackConfig, logger *logging.Logger) *Client {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = "https://slack.com/api"
	}
	defaultChannel := cfg.DefaultChannel
	if defaultChannel == "" {
		defaultChannel = "#general"
	}
	return &Client{
		apiBase:        apiBase,
		token:          cfg.BotToken,
		defaultChannel: defaultChannel,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger,
	}
}

// call issues a Web API method and verifies the ok/error envelope before
// handing back the raw payload. ok:false surfaces as a backend error
// carrying the Slack error code.
func (c *Client) call(ctx context.Context, apiMethod string, params url.Values, body any) ([]byte, error) {
	reqURL := c.apiBase + "/" + apiMethod
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	httpMethod := http.MethodGet
	var reader io.Reader
	if body != nil {
		httpMethod = http.MethodPost
		data, err := sonic.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(errors.KindTransport, apiMethod, "编码请求体失败", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, reqURL, reader)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, apiMethod, "创建请求失败", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, apiMethod, "请求失败", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, apiMethod, "读取响应失败", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewStatus(apiMethod,
			fmt.Sprintf("%s: %s", apiMethod, strings.TrimSpace(string(data))),
			resp.StatusCode)
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrap(errors.KindBackend, apiMethod, "解析响应失败", err)
	}
	if !envelope.OK {
		return nil, errors.New(errors.KindBackend, apiMethod, envelope.Error)
	}
	return data, nil
}

// MessageReceipt 发送/更新消息的结果，ts 用于后续寻址更新。
type MessageReceipt struct {
	OK      bool   `json:"ok"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// SendMessage 发送文本消息。channel 留空使用默认频道。
func (c *Client) SendMessage(ctx context.Context, text, channel string) (*MessageReceipt, error) {
	ch := channel
	if ch == "" {
		ch = c.defaultChannel
	}

	data, err := c.call(ctx, "chat.postMessage", nil, map[string]any{
		"channel": ch,
		"text":    text,
	})
	if err != nil {
		c.logger.ErrorTag("Slack", "发送消息失败: %v", err)
		return nil, err
	}

	var receipt MessageReceipt
	if err := sonic.Unmarshal(data, &receipt); err != nil {
		return nil, errors.Wrap(errors.KindBackend, "chat.postMessage", "解析响应失败", err)
	}
	c.logger.InfoTag("Slack", "消息已发送到 %s", ch)
	return &receipt, nil
}

// SendBlocks 发送 Block Kit 富文本消息。text 为通知栏的降级文本。
func (c *Client) SendBlocks(ctx context.Context, blocks []Block, text, channel string) (*MessageReceipt, error) {
	ch := channel
	if ch == "" {
		ch = c.defaultChannel
	}

	data, err := c.call(ctx, "chat.postMessage", nil, map[string]any{
		"channel": ch,
		"blocks":  blocks,
		"text":    text,
	})
	if err != nil {
		c.logger.ErrorTag("Slack", "发送 Block 消息失败: %v", err)
		return nil, err
	}

	var receipt MessageReceipt
	if err := sonic.Unmarshal(data, &receipt); err != nil {
		return nil, errors.Wrap(errors.KindBackend, "chat.postMessage", "解析响应失败", err)
	}
	c.logger.InfoTag("Slack", "Block 消息已发送到 %s", ch)
	return &receipt, nil
}

// UpdateMessage 更新已发送的消息，由 (channel, ts) 定位。
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []Block) (*MessageReceipt, error) {
	body := map[string]any{
		"channel": channel,
		"ts":      ts,
		"text":    text,
	}
	if len(blocks) > 0 {
		body["blocks"] = blocks
	}

	data, err := c.call(ctx, "chat.update", nil, body)
	if err != nil {
		c.logger.ErrorTag("Slack", "更新消息失败: %v", err)
		return nil, err
	}

	var receipt MessageReceipt
	if err := sonic.Unmarshal(data, &receipt); err != nil {
		return nil, errors.Wrap(errors.KindBackend, "chat.update", "解析响应失败", err)
	}
	c.logger.InfoTag("Slack", "消息已更新: channel=%s, ts=%s", channel, ts)
	return &receipt, nil
}

// Channel 频道记录。
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListChannels 获取公共频道列表（一次性查询，不走缓存）。
func (c *Client) ListChannels(ctx context.Context, limit int) ([]Channel, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("types", "public_channel")
	params.Set("limit", strconv.Itoa(limit))

	data, err := c.call(ctx, "conversations.list", params, nil)
	if err != nil {
		c.logger.ErrorTag("Slack", "获取频道列表失败: %v", err)
		return nil, err
	}

	var result struct {
		Channels []Channel `json:"channels"`
	}
	if err := sonic.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(errors.KindBackend, "conversations.list", "解析响应失败", err)
	}
	c.logger.DebugTag("Slack", "获取到 %d 个频道", len(result.Channels))
	return result.Channels, nil
}
