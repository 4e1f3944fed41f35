package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier delivers alert/status messages. Delivery is best-effort at
// every call site: a failed notification never fails a run.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string) error
}

// SlackNotifier posts messages to an incoming-webhook URL.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

var severityColors = map[Severity]string{
	SeverityInfo:    "#36a64f",
	SeverityWarning: "#ff9500",
	SeverityError:   "#ff0000",
}

type slackAttachment struct {
	Color     string `json:"color"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

func (s *SlackNotifier) Notify(ctx context.Context, severity Severity, message string) error {
	color, ok := severityColors[severity]
	if !ok {
		color = severityColors[SeverityInfo]
	}
	payload := slackPayload{
		Attachments: []slackAttachment{{
			Color:     color,
			Title:     "jobscout - scrape status",
			Text:      message,
			Timestamp: time.Now().Unix(),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier is the fallback channel when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, severity Severity, message string) error {
	switch severity {
	case SeverityError:
		l.logger.Error("notification", zap.String("message", message))
	case SeverityWarning:
		l.logger.Warn("notification", zap.String("message", message))
	default:
		l.logger.Info("notification", zap.String("message", message))
	}
	return nil
}
