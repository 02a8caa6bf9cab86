package slack

import (
	"context"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/devops-agent/gateway/internal/platform/errors"
)

// User 用户记录，三个名字变体都参与匹配。
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RealName    string `json:"real_name"`
	DisplayName string `json:"display_name"`
}

type memberRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Deleted  bool   `json:"deleted"`
	IsBot    bool   `json:"is_bot"`
	Profile  struct {
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

// loadAllUsers populates the user cache with one full paginated scan.
// First call wins; the scan is coalesced through singleflight so concurrent
// first uses do not each walk the whole workspace.
func (c *Client) loadAllUsers(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.usersLoaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := c.sf.Do("users", func() (any, error) {
		c.mu.RLock()
		loaded := c.usersLoaded
		c.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		var users []User
		cursor := ""
		for {
			params := url.Values{}
			params.Set("limit", "200")
			if cursor != "" {
				params.Set("cursor", cursor)
			}

			data, err := c.call(ctx, "users.list", params, nil)
			if err != nil {
				c.logger.ErrorTag("Slack", "加载用户列表失败: %v", err)
				return nil, err
			}

			var page struct {
				Members          []memberRecord `json:"members"`
				ResponseMetadata struct {
					NextCursor string `json:"next_cursor"`
				} `json:"response_metadata"`
			}
			if err := sonic.Unmarshal(data, &page); err != nil {
				return nil, errors.Wrap(errors.KindBackend, "users.list", "解析响应失败", err)
			}

			for _, member := range page.Members {
				if member.Deleted || member.IsBot {
					continue
				}
				users = append(users, User{
					ID:          member.ID,
					Name:        member.Name,
					RealName:    member.RealName,
					DisplayName: member.Profile.DisplayName,
				})
			}

			cursor = page.ResponseMetadata.NextCursor
			if cursor == "" {
				break
			}
		}

		c.mu.Lock()
		c.users = users
		c.usersLoaded = true
		c.mu.Unlock()
		c.logger.InfoTag("Slack", "已加载 %d 个用户到缓存", len(users))
		return nil, nil
	})
	return err
}

// loadAllChannels populates the channel cache, same pattern as loadAllUsers.
func (c *Client) loadAllChannels(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.channelsLoaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := c.sf.Do("channels", func() (any, error) {
		c.mu.RLock()
		loaded := c.channelsLoaded
		c.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		var channels []Channel
		cursor := ""
		for {
			params := url.Values{}
			params.Set("types", "public_channel")
			params.Set("exclude_archived", "true")
			params.Set("limit", "200")
			if cursor != "" {
				params.Set("cursor", cursor)
			}

			data, err := c.call(ctx, "conversations.list", params, nil)
			if err != nil {
				c.logger.ErrorTag("Slack", "加载频道列表失败: %v", err)
				return nil, err
			}

			var page struct {
				Channels         []Channel `json:"channels"`
				ResponseMetadata struct {
					NextCursor string `json:"next_cursor"`
				} `json:"response_metadata"`
			}
			if err := sonic.Unmarshal(data, &page); err != nil {
				return nil, errors.Wrap(errors.KindBackend, "conversations.list", "解析响应失败", err)
			}

			channels = append(channels, page.Channels...)

			cursor = page.ResponseMetadata.NextCursor
			if cursor == "" {
				break
			}
		}

		c.mu.Lock()
		c.channels = channels
		c.channelsLoaded = true
		c.mu.Unlock()
		c.logger.InfoTag("Slack", "已加载 %d 个频道到缓存", len(channels))
		return nil, nil
	})
	return err
}

// FindUserByName 通过名字查找用户（支持中文名、英文名、用户名）。
// 精确匹配（大小写不敏感）先于模糊包含匹配，未找到返回 ok=false。
func (c *Client) FindUserByName(ctx context.Context, name string) (User, bool, error) {
	if err := c.loadAllUsers(ctx); err != nil {
		return User{}, false, err
	}

	target := strings.ToLower(strings.TrimSpace(name))

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, user := range c.users {
		if target == strings.ToLower(user.RealName) ||
			target == strings.ToLower(user.DisplayName) ||
			target == strings.ToLower(user.Name) {
			c.logger.InfoTag("Slack", "精确匹配用户: %s → %s (ID: %s)", name, user.RealName, user.ID)
			return user, true, nil
		}
	}
	for _, user := range c.users {
		if strings.Contains(strings.ToLower(user.RealName), target) ||
			strings.Contains(strings.ToLower(user.DisplayName), target) ||
			strings.Contains(strings.ToLower(user.Name), target) {
			c.logger.InfoTag("Slack", "模糊匹配用户: %s → %s (ID: %s)", name, user.RealName, user.ID)
			return user, true, nil
		}
	}

	c.logger.WarnTag("Slack", "未找到用户: %s", name)
	return User{}, false, nil
}

// ListWorkspaceMembers 获取工作区所有成员（触发缓存加载）。
func (c *Client) ListWorkspaceMembers(ctx context.Context) ([]User, error) {
	if err := c.loadAllUsers(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	members := make([]User, len(c.users))
	copy(members, c.users)
	return members, nil
}

// ResolveChannel 将频道名解析为频道 ID。输入去掉前导 # 并转小写后，
// 精确匹配先于模糊包含匹配；未找到返回 ok=false。
func (c *Client) ResolveChannel(ctx context.Context, name string) (string, bool, error) {
	if err := c.loadAllChannels(ctx); err != nil {
		return "", false, err
	}

	target := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.channels {
		if strings.ToLower(ch.Name) == target {
			return ch.ID, true, nil
		}
	}
	for _, ch := range c.channels {
		if strings.Contains(strings.ToLower(ch.Name), target) {
			c.logger.InfoTag("Slack", "模糊匹配频道: %s → #%s (ID: %s)", name, ch.Name, ch.ID)
			return ch.ID, true, nil
		}
	}

	c.logger.WarnTag("Slack", "未找到频道: %s", name)
	return "", false, nil
}

// ValidateAndResolveChannel 解析频道名；失败时返回列出所有已缓存频道的
// 提示文本，便于调用方自行纠正。返回值 (id, errMsg) 恰好一个非空。
func (c *Client) ValidateAndResolveChannel(ctx context.Context, name string) (string, string, error) {
	id, ok, err := c.ResolveChannel(ctx, name)
	if err != nil {
		return "", "", err
	}
	if ok {
		return id, "", nil
	}

	c.mu.RLock()
	names := make([]string, 0, len(c.channels))
	for _, ch := range c.channels {
		names = append(names, "#"+ch.Name)
	}
	c.mu.RUnlock()

	msg := "未找到频道 '" + name + "'，可用频道: " + strings.Join(names, ", ")
	return "", msg, nil
}
