package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"imagebit/internal/config"
	"imagebit/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if notifications.Enabled(svc) {
		t.Fatal("expected noop service without a topic")
	}
	if err := svc.NotifyRun(context.Background(), notifications.EventRunFailed, notifications.RunReport{}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsRunOutcomes(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		report         notifications.RunReport
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "completed",
			event:         notifications.EventRunCompleted,
			report:        notifications.RunReport{InputDir: "/photos", Total: 3, Converted: 3, Duration: 2 * time.Second},
			expectTitle:   "imagebit - Conversion Complete",
			expectMessage: "Converted 3 of 3 images from /photos in 2s",
			expectTags:    "imagebit,conversion,completed",
		},
		{
			name:          "completed with failures",
			event:         notifications.EventRunCompleted,
			report:        notifications.RunReport{InputDir: "/photos", Total: 3, Converted: 2, Failed: 1},
			expectTitle:   "imagebit - Conversion Complete (with errors)",
			expectMessage: "Converted 2 of 3 images from /photos; 1 failed",
			expectTags:    "imagebit,conversion,warning",
		},
		{
			name:          "cancelled",
			event:         notifications.EventRunCancelled,
			report:        notifications.RunReport{InputDir: "/photos", Total: 10, Converted: 3, Failed: 1},
			expectTitle:   "imagebit - Conversion Cancelled",
			expectMessage: "Cancelled /photos after 4 of 10 images",
			expectTags:    "imagebit,conversion,cancelled",
		},
		{
			name:           "failed",
			event:          notifications.EventRunFailed,
			report:         notifications.RunReport{RunID: "abc", Err: errors.New("encoder missing")},
			expectTitle:    "imagebit - Conversion Failed",
			expectMessage:  "Conversion of abc failed: encoder missing",
			expectTags:     "imagebit,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, received := newCaptureServer(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			svc := notifications.NewService(&cfg)

			if err := svc.NotifyRun(context.Background(), tc.event, tc.report); err != nil {
				t.Fatalf("NotifyRun: %v", err)
			}
			got := received()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", got[0].title, tc.expectTitle)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("body = %q, want %q", got[0].body, tc.expectMessage)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", got[0].tags, tc.expectTags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", got[0].priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceSkipsCleanRunsWhenSuccessMuted(t *testing.T) {
	srv, received := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.NotifySuccess = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyRun(context.Background(), notifications.EventRunCompleted, notifications.RunReport{Total: 1, Converted: 1}); err != nil {
		t.Fatalf("NotifyRun: %v", err)
	}
	if err := svc.NotifyRun(context.Background(), notifications.EventRunCompleted, notifications.RunReport{Total: 1, Failed: 1}); err != nil {
		t.Fatalf("NotifyRun: %v", err)
	}
	if got := received(); len(got) != 1 || !strings.Contains(got[0].title, "with errors") {
		t.Fatalf("expected only the failure notification, got %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
