package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imagebit/internal/config"
)

const userAgent = "imagebit/0.1"

// Event identifies the run outcome being reported.
type Event string

const (
	EventRunCompleted Event = "run_completed"
	EventRunCancelled Event = "run_cancelled"
	EventRunFailed    Event = "run_failed"
)

// RunReport carries the facts a notification renders.
type RunReport struct {
	RunID     string
	InputDir  string
	Total     int
	Converted int
	Failed    int
	Duration  time.Duration
	Err       error
}

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyRun(ctx context.Context, event Event, report RunReport) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		notifySuccess: cfg.Notifications.NotifySuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	notifySuccess bool
}

func (n *ntfyService) NotifyRun(ctx context.Context, event Event, report RunReport) error {
	data, ok := n.render(event, report)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) render(event Event, r RunReport) (payload, bool) {
	where := strings.TrimSpace(r.InputDir)
	if where == "" {
		where = r.RunID
	}
	duration := r.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	switch event {
	case EventRunCompleted:
		if r.Failed == 0 {
			if !n.notifySuccess {
				return payload{}, false
			}
			return payload{
				title:   "imagebit - Conversion Complete",
				message: fmt.Sprintf("Converted %d of %d images from %s in %s", r.Converted, r.Total, where, duration),
				tags:    []string{"imagebit", "conversion", "completed"},
			}, true
		}
		return payload{
			title:   "imagebit - Conversion Complete (with errors)",
			message: fmt.Sprintf("Converted %d of %d images from %s; %d failed", r.Converted, r.Total, where, r.Failed),
			tags:    []string{"imagebit", "conversion", "warning"},
		}, true
	case EventRunCancelled:
		return payload{
			title:   "imagebit - Conversion Cancelled",
			message: fmt.Sprintf("Cancelled %s after %d of %d images", where, r.Converted+r.Failed, r.Total),
			tags:    []string{"imagebit", "conversion", "cancelled"},
		}, true
	case EventRunFailed:
		reason := "unknown error"
		if r.Err != nil {
			reason = strings.TrimSpace(r.Err.Error())
		}
		return payload{
			title:    "imagebit - Conversion Failed",
			message:  fmt.Sprintf("Conversion of %s failed: %s", where, reason),
			tags:     []string{"imagebit", "error", "alert"},
			priority: "high",
		}, true
	default:
		return payload{}, false
	}
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "imagebit - Test",
		message:  "Notification system test",
		tags:     []string{"imagebit", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRun(context.Context, Event, RunReport) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }

// Enabled reports whether svc delivers anything.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}
