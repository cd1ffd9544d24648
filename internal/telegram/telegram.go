// Package telegram is a minimal Telegram Bot API client: long-poll updates,
// chunked message sending, chat actions, and the getMe identity probe.
package telegram

import (
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

// MaxMessageRunes is the outbound chunk size. Telegram rejects messages over
// 4096 characters; 4000 leaves headroom.
const MaxMessageRunes = 4000

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a client for the given API base (e.g.
// "https://api.telegram.org") and bot token. requestTimeout must exceed the
// long-poll timeout passed to GetUpdates.
func NewClient(apiBase, token string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: strings.TrimRight(apiBase, "/") + "/bot" + token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Update represents one incoming update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents an incoming message.
type Message struct {
	Chat Chat    `json:"chat"`
	Text *string `json:"text,omitempty"`
	Date int64   `json:"date"`
}

// Chat identifies a conversation. For private chats the chat ID is the user.
type Chat struct {
	ID int64 `json:"id"`
}

// User is the bot identity returned by getMe.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// GetUpdates long-polls the getUpdates API. Updates without a message
// payload (edits, joins) are skipped; their update_id still advances the
// caller's offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	result, err := decodeResponse(resp.Body, "getUpdates")
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates result: %w", err)
	}
	return updates, nil
}

// SendMessage sends text to the given chat, split on rune boundaries into
// chunks Telegram accepts. Chunks are sent in order; the first failure
// aborts the rest.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitChunks(text, MaxMessageRunes) {
		payload := fmt.Sprintf(`{"chat_id":%d,"text":%s}`, chatID, jsonString(chunk))
		if _, err := c.post(ctx, "sendMessage", payload); err != nil {
			return err
		}
	}
	return nil
}

// SendChatAction reports a chat action ("typing") to the given chat. The
// indicator is cosmetic; failures are returned for logging but are not worth
// aborting a generation over.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	payload := fmt.Sprintf(`{"chat_id":%d,"action":%s}`, chatID, jsonString(action))
	_, err := c.post(ctx, "sendChatAction", payload)
	return err
}

// GetMe fetches the bot's own identity, verifying the token works.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	result, err := c.post(ctx, "getMe", `{}`)
	if err != nil {
		return User{}, err
	}
	var me User
	if err := json.Unmarshal(result, &me); err != nil {
		return User{}, fmt.Errorf("failed to parse getMe result: %w", err)
	}
	return me, nil
}

func (c *Client) post(ctx context.Context, method, payload string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp.Body, method)
}

func decodeResponse(r io.Reader, method string) (json.RawMessage, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}
	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if !tgResp.OK {
		return nil, fmt.Errorf("telegram %s failed: %d %s", method, tgResp.ErrorCode, tgResp.Description)
	}
	return tgResp.Result, nil
}

// splitChunks splits s on rune boundaries into pieces of at most maxRunes.
// An empty string yields no chunks.
func splitChunks(s string, maxRunes int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return []string{s}
	}
	chunks := make([]string, 0, (len(runes)+maxRunes-1)/maxRunes)
	for start := 0; start < len(runes); start += maxRunes {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
