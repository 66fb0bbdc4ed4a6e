package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/metrics"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func fakeClient(f roundTripFunc) *http.Client {
	return &http.Client{Transport: f}
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestSendPayload(t *testing.T) {
	var captured map[string]any
	tg := NewTelegram("tok123", "42")
	tg.HTTP = fakeClient(func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, "bottok123/sendMessage") {
			t.Errorf("unexpected url %s", r.URL)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		return textResponse(200, `{"ok":true}`), nil
	})

	if err := tg.Send(context.Background(), "hello *world*"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if captured["chat_id"] != "42" || captured["text"] != "hello *world*" {
		t.Fatalf("payload = %v", captured)
	}
	if captured["parse_mode"] != "Markdown" {
		t.Fatalf("parse_mode = %v", captured["parse_mode"])
	}
}

func TestSendUnconfigured(t *testing.T) {
	tg := NewTelegram("", "")
	if err := tg.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestSendErrorStatus(t *testing.T) {
	tg := NewTelegram("tok", "1")
	tg.HTTP = fakeClient(func(r *http.Request) (*http.Response, error) {
		return textResponse(401, `{"ok":false,"description":"Unauthorized"}`), nil
	})
	err := tg.Send(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status 401", err)
	}
}

func TestGetUpdates(t *testing.T) {
	tg := NewTelegram("tok", "1")
	tg.HTTP = fakeClient(func(r *http.Request) (*http.Response, error) {
		if got := r.URL.Query().Get("offset"); got != "7" {
			t.Errorf("offset = %s, want 7", got)
		}
		return textResponse(200, `{"ok":true,"result":[
			{"update_id":8,"message":{"message_id":1,"text":"/start","chat":{"id":42}}}
		]}`), nil
	})

	ups, err := tg.GetUpdates(context.Background(), 7, 30*time.Second)
	if err != nil {
		t.Fatalf("getUpdates: %v", err)
	}
	if len(ups) != 1 || ups[0].UpdateID != 8 || ups[0].Message.Text != "/start" {
		t.Fatalf("updates = %+v", ups)
	}
	if ups[0].Message.Chat.ID != 42 {
		t.Fatalf("chat id = %d", ups[0].Message.Chat.ID)
	}
}

func TestDispatchRetries(t *testing.T) {
	var calls int
	tg := NewTelegram("tok", "1")
	tg.HTTP = fakeClient(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return textResponse(502, "bad gateway"), nil
		}
		return textResponse(200, `{"ok":true}`), nil
	})
	d := NewDispatcher(tg, zap.NewNop(), metrics.New(nil))
	d.sleep = func(time.Duration) {}

	d.Dispatch(context.Background(), alerts.Notification{
		Kind: alerts.KindInitial, Key: alerts.KeyCPU, Message: "cpu high",
	})
	if calls != 3 {
		t.Fatalf("send attempts = %d, want 3", calls)
	}
}

func TestDispatchGivesUp(t *testing.T) {
	var calls, sleeps int
	tg := NewTelegram("tok", "1")
	tg.HTTP = fakeClient(func(r *http.Request) (*http.Response, error) {
		calls++
		return textResponse(500, "nope"), nil
	})
	d := NewDispatcher(tg, zap.NewNop(), metrics.New(nil))
	d.sleep = func(time.Duration) { sleeps++ }

	d.Dispatch(context.Background(), alerts.Notification{
		Kind: alerts.KindReminder, Key: alerts.KeyRAM, Message: "ram high", ReminderCount: 2,
	})
	if calls != 3 {
		t.Fatalf("send attempts = %d, want 3 before giving up", calls)
	}
	// Only between attempts; no pointless wait after the last failure.
	if sleeps != 2 {
		t.Fatalf("backoff sleeps = %d, want 2", sleeps)
	}
}

func TestDispatchSkipsNone(t *testing.T) {
	tg := NewTelegram("tok", "1")
	tg.HTTP = fakeClient(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for KindNone")
		return nil, nil
	})
	d := NewDispatcher(tg, zap.NewNop(), metrics.New(nil))
	d.Dispatch(context.Background(), alerts.Notification{Kind: alerts.KindNone})
}

func TestRender(t *testing.T) {
	cases := []struct {
		n    alerts.Notification
		want string
	}{
		{
			alerts.Notification{Kind: alerts.KindInitial, Message: "⚠️ *CPU high*: 95.0% (threshold 90%)"},
			"⚠️ *CPU high*: 95.0% (threshold 90%)",
		},
		{
			alerts.Notification{Kind: alerts.KindReminder, Message: "⚠️ *CPU high*: 95.0% (threshold 90%)", ReminderCount: 3},
			"🔄 REMINDER (3) - ⚠️ *CPU high*: 95.0% (threshold 90%)",
		},
		{
			alerts.Notification{Kind: alerts.KindRecovery, Message: "CPU back below threshold: 40.0%", Duration: 2*time.Hour + 3*time.Minute + 4*time.Second},
			"✅ RESOLVED - CPU back below threshold: 40.0% (duration: 2h 3m 4s)",
		},
	}
	for _, c := range cases {
		if got := Render(c.n); got != c.want {
			t.Errorf("Render(%s) = %q, want %q", c.n.Kind, got, c.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                               "0s",
		45 * time.Second:                "45s",
		time.Minute + 5*time.Second:     "1m 5s",
		time.Hour:                       "1h 0m 0s",
		26*time.Hour + 10*time.Minute:   "26h 10m 0s",
		-5 * time.Second:                "0s",
		90*time.Minute + 30*time.Second: "1h 30m 30s",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}
