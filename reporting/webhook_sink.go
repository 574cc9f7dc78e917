package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFailureSilence is how long further failures are not announced after
// one failure was posted.
const DefaultFailureSilence = 12 * time.Hour

const (
	maxDescriptionLen = 4096
	colorFailed       = 0xd32f2f
	colorRecovered    = 0x388e3c
)

// WebhookSink posts rich reports to a Discord-compatible webhook. After a
// failure has been posted, further failures stay silent for Silence; the
// first successful report after a posted failure is announced as recovery.
// Successful reports are not posted otherwise.
type WebhookSink struct {
	URL     string        // Webhook URL
	Silence time.Duration // Quiet period after a posted failure
	Client  *http.Client

	mu            sync.Mutex
	failureSentAt time.Time // Zero unless a failure is awaiting recovery
}

// NewWebhookSink creates a WebhookSink posting to url.
func NewWebhookSink(url string, silence time.Duration) *WebhookSink {
	if silence <= 0 {
		silence = DefaultFailureSilence
	}
	return &WebhookSink{
		URL:     url,
		Silence: silence,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookSink) Name() string {
	return "webhook"
}

type webhookEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type webhookMessage struct {
	Embeds []webhookEmbed `json:"embeds"`
}

func (w *WebhookSink) Send(ctx context.Context, event Event) error {
	if !w.shouldPost(event) {
		logrus.WithField("report", event.Report.Kind().String()).Debug("webhook notification suppressed")
		return nil
	}

	title, body := event.Report.FormatRich()
	color := colorFailed
	if event.Report.IsOK() {
		color = colorRecovered
	}
	if runes := []rune(body); len(runes) > maxDescriptionLen {
		body = string(runes[:maxDescriptionLen-3]) + "..."
	}
	msg := webhookMessage{Embeds: []webhookEmbed{{
		Title:       title,
		Description: body,
		Color:       color,
		Timestamp:   event.Time.UTC().Format(time.RFC3339),
	}}}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(request)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	w.markPosted(event)
	return nil
}

func (w *WebhookSink) shouldPost(event Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if event.Report.IsOK() {
		return !w.failureSentAt.IsZero()
	}
	return w.failureSentAt.IsZero() || event.Time.Sub(w.failureSentAt) >= w.Silence
}

func (w *WebhookSink) markPosted(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if event.Report.IsOK() {
		w.failureSentAt = time.Time{}
		return
	}
	w.failureSentAt = event.Time
}
