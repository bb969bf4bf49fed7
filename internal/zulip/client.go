package zulip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tg_zulip_bridge/internal/config"
)

// Client Zulip REST API 客户端
// 只封装桥接器用到的两个操作：在 Stream 中创建消息、按 ID 编辑消息
type Client struct {
	site       string
	email      string
	apiKey     string
	stream     string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端（测试用）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient 创建 Zulip 客户端
func NewClient(cfg config.ZulipConfig, opts ...Option) (*Client, error) {
	site := strings.TrimRight(strings.TrimSpace(cfg.Site), "/")
	if site == "" {
		return nil, fmt.Errorf("zulip site is empty")
	}
	if cfg.Email == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("zulip email and api key are required")
	}

	client := &Client{
		site:   site,
		email:  cfg.Email,
		apiKey: cfg.APIKey,
		stream: cfg.Stream,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// APIError Zulip API 返回的错误（HTTP 层或 result=error）
type APIError struct {
	StatusCode int
	Code       string
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zulip api error: status=%d, code=%s, msg=%s", e.StatusCode, e.Code, e.Msg)
}

// IsRetryable 判断错误是否值得重试
// 限流和服务端故障是暂时性的；参数错误、认证失败等 API 错误重试无意义；
// 传输层错误（连接失败、超时）一律视为暂时性
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

type apiResponse struct {
	Result string `json:"result"`
	Msg    string `json:"msg"`
	Code   string `json:"code"`
	ID     int64  `json:"id"`
}

// SendMessage 在 Stream 中创建一条消息，返回 Zulip 分配的消息 ID
func (c *Client) SendMessage(ctx context.Context, stream, topic, content string) (int64, error) {
	form := url.Values{}
	form.Set("type", "stream")
	form.Set("to", stream)
	form.Set("topic", topic)
	form.Set("content", content)

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/messages", form)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// UpdateMessage 按消息 ID 编辑已有消息的内容
func (c *Client) UpdateMessage(ctx context.Context, messageID int64, content string) error {
	form := url.Values{}
	form.Set("content", content)

	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/messages/%d", messageID), form)
	return err
}

// Stream 返回配置的目标 Stream 名称
func (c *Client) Stream() string {
	return c.stream
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.site+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create zulip request failed: %w", err)
	}

	req.SetBasicAuth(c.email, c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request zulip api failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read zulip response failed: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// 响应不是 JSON 时只能依赖 HTTP 状态码
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("parse zulip response failed: %w", err)
	}

	if parsed.Result != "success" {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: parsed.Code, Msg: parsed.Msg}
	}

	return &parsed, nil
}
