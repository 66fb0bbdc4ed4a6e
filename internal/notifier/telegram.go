package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Telegram talks to the Bot API directly over HTTP. HTTP is exported so
// tests can swap in a fake transport.
type Telegram struct {
	Token  string
	ChatID string
	HTTP   *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		Token:  token,
		ChatID: chatID,
		HTTP:   &http.Client{Timeout: 35 * time.Second},
	}
}

func (t *Telegram) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

func (t *Telegram) Update(token, chatID string) {
	t.Token = token
	t.ChatID = chatID
}

// Send delivers a Markdown message to the configured chat.
func (t *Telegram) Send(ctx context.Context, msg string) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram not configured")
	}
	return t.SendTo(ctx, t.ChatID, msg)
}

func (t *Telegram) SendTo(ctx context.Context, chatID, msg string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     msg,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL("sendMessage"), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}

// Message mirrors the subset of the Bot API update payload the command bot
// consumes.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
}

type TelegramUpdate struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// GetUpdates long-polls the Bot API for incoming messages past offset.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]TelegramUpdate, error) {
	if t.Token == "" {
		return nil, fmt.Errorf("telegram not configured")
	}
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	q.Set("allowed_updates", `["message"]`)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.apiURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := t.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram status %d: %s", res.StatusCode, string(body))
	}
	var out struct {
		OK     bool             `json:"ok"`
		Result []TelegramUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok: %s", string(body))
	}
	return out.Result, nil
}

func (t *Telegram) apiURL(method string) string {
	return fmt.Sprintf("https://api.telegram.org/bot%s/%s", t.Token, method)
}
