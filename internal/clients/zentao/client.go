package zentao

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/platform/errors"
	"github.com/devops-agent/gateway/internal/platform/logging"
)

// Client 禅道 REST API 客户端。会话令牌在第一次需要时懒加载，
// 过期（401）后清除并重新登录，同一请求最多重试一次。
type Client struct {
	baseURL    string
	account    string
	password   string
	httpClient *http.Client
	logger     *logging.Logger

	mu    sync.Mutex
	token string
}

// NewClient 初始化客户端。url 为禅道站点根地址，API 前缀自动补齐。
func NewClient(cfg config.ZenTaoConfig, logger *logging.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/api.php/v1",
		account:    cfg.Account,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// login exchanges the account credentials for a session token.
func (c *Client) login(ctx context.Context) (string, error) {
	data, err := sonic.Marshal(map[string]string{
		"account":  c.account,
		"password": c.password,
	})
	if err != nil {
		return "", errors.Wrap(errors.KindAuth, "login", "编码登录请求失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tokens", bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(errors.KindAuth, "login", "创建登录请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindAuth, "login", "禅道登录失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(errors.KindAuth, "login", "读取登录响应失败", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New(errors.KindAuth, "login",
			fmt.Sprintf("禅道登录失败 (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := sonic.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(errors.KindAuth, "login", "解析登录响应失败", err)
	}
	if result.Token == "" {
		return "", errors.New(errors.KindAuth, "login", "登录响应缺少 token 字段")
	}

	c.logger.InfoTag("ZenTao", "登录成功: %s", c.account)
	return result.Token, nil
}

// ensureToken returns the cached session token, logging in when absent.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// clearToken drops the cached token so the next call logs in again,
// but only when it still matches the one that just got a 401.
func (c *Client) clearToken(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.mu.Unlock()
}

// request issues an authenticated call. On 401 the token is refreshed and
// the original request replayed exactly once; a second 401 propagates.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.KindTransport, path, "编码请求体失败", err)
		}
		payload = data
	}

	data, err := c.do(ctx, method, path, params, payload, false)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.KindBackend, path, "解析响应失败", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload []byte, retried bool) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, path, "创建请求失败", err)
	}
	req.Header.Set("Token", token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, path, "请求失败", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, path, "读取响应失败", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		c.logger.WarnTag("ZenTao", "会话已过期，重新登录: %s %s", method, path)
		c.clearToken(token)
		return c.do(ctx, method, path, params, payload, true)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewStatus(path,
			fmt.Sprintf("%s %s: %s", method, path, strings.TrimSpace(string(data))),
			resp.StatusCode)
	}
	return data, nil
}
