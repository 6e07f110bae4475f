package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RESTClient is a thin typed client for the delivery service's REST API.
// It is both the polling fallback's fetch source and the outbound send
// path's fallback transport.
type RESTClient struct {
	base  string
	token string
	http  *http.Client
}

// NewRESTClient constructs a RESTClient for the given API base URL and
// bearer credential.
func NewRESTClient(base, token string) *RESTClient {
	return &RESTClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ListOptions narrows a notification listing.
type ListOptions struct {
	IsRead *bool
	Page   int
	Size   int
	Sort   string
}

// NotificationPage is one page of the authoritative notification list.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
	UnreadCount   int64          `json:"unread_count"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
}

// Notifications fetches one page of the caller's notifications.
func (c *RESTClient) Notifications(ctx context.Context, opts ListOptions) (NotificationPage, error) {
	q := url.Values{}
	if opts.IsRead != nil {
		q.Set("isRead", strconv.FormatBool(*opts.IsRead))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Size > 0 {
		q.Set("size", strconv.Itoa(opts.Size))
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	path := "/notifications"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page NotificationPage
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// MarkRead flags one notification as read.
func (c *RESTClient) MarkRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/notifications/%d/read", id), nil, nil)
}

// MarkAllRead flags every notification as read in a single bulk call.
func (c *RESTClient) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

// DeleteNotification removes one notification.
func (c *RESTClient) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil, nil)
}

// Conversation fetches the ordered message history between two users.
func (c *RESTClient) Conversation(ctx context.Context, userA, userB int64) ([]ChatMessage, error) {
	var resp struct {
		Messages []ChatMessage `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chat/conversation/%d/%d", userA, userB), nil, &resp)
	return resp.Messages, err
}

// SendMessage persists a chat message over REST and returns the
// server-confirmed record.
func (c *RESTClient) SendMessage(ctx context.Context, senderID, receiverID int64, content string) (ChatMessage, error) {
	body := map[string]interface{}{
		"senderId":   senderID,
		"receiverId": receiverID,
		"content":    content,
	}
	var msg ChatMessage
	err := c.do(ctx, http.MethodPost, "/chat/send", body, &msg)
	return msg, err
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("realtime: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
