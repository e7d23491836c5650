package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"towncrier/pkg/clients"
	"towncrier/pkg/logging"
)

// CycleReport summarizes one finished content cycle for operators.
type CycleReport struct {
	Service   string        `json:"service"`
	Topic     string        `json:"topic,omitempty"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Posts     []PostReport  `json:"posts,omitempty"`
}

type PostReport struct {
	Platform    string `json:"platform"`
	Status      string `json:"status"`
	PostID      string `json:"post_id,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	Characters  int    `json:"characters"`
}

// Webhook posts cycle reports to an operator-configured URL. An empty URL
// disables notification entirely; delivery failures are logged and never
// affect the cycle outcome.
type Webhook struct {
	url    string
	client *http.Client
	logger logging.Logger
}

func NewWebhook(url string, logger logging.Logger) *Webhook {
	return &Webhook{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: clients.DefaultTransport(),
		},
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool {
	return w.url != ""
}

func (w *Webhook) Notify(ctx context.Context, report CycleReport) {
	if !w.Enabled() {
		return
	}

	payload, err := json.Marshal(report)
	if err != nil {
		w.logger.WithError(err).Warn("Webhook: failed to encode cycle report")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.WithError(err).Warn("Webhook: failed to create request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.WithError(err).Warn("Webhook: delivery failed")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		w.logger.WithField("status", resp.StatusCode).Warn(fmt.Sprintf("Webhook: endpoint returned %d", resp.StatusCode))
		return
	}

	w.logger.WithField("status", resp.StatusCode).Debug("Webhook: cycle report delivered")
}
