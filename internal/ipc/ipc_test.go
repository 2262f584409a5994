//go:build unix

package ipc_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imagebit/internal/conversion"
	"imagebit/internal/daemon"
	"imagebit/internal/history"
	"imagebit/internal/ipc"
	"imagebit/internal/logging"
	"imagebit/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubEncoder(testsupport.SlowEncoder),
		testsupport.WithMaxProcesses(1),
		testsupport.WithVerifyOutput(false),
	)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	logger := logging.NewNop()
	controller := conversion.NewController(conversion.Options{Config: cfg, Ledger: store, Logger: logger})
	d, err := daemon.New(cfg, store, logger, controller)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.State != string(conversion.StateIdle) {
		t.Fatalf("unexpected idle status: %+v", status)
	}

	cancelResp, err := client.Cancel(ctx)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelResp.Cancelled {
		t.Fatal("expected cancel without a run to report false")
	}

	in := filepath.Join(testsupport.BaseDir(cfg), "in")
	out := filepath.Join(testsupport.BaseDir(cfg), "out")
	testsupport.WriteInputs(t, in, "a.png", "b.png", "c.png")

	started, err := client.Start(ctx, in, out)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !started.Started || started.RunID == "" {
		t.Fatalf("unexpected start response: %+v", started)
	}

	again, err := client.Start(ctx, in, out)
	if !errors.Is(err, conversion.ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
	if again == nil || again.Started || again.Code != ipc.CodeRunActive {
		t.Fatalf("unexpected second start response: %+v", again)
	}

	running, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if running.RunID != started.RunID || running.Total != 3 || running.Limit != 1 {
		t.Fatalf("unexpected running status: %+v", running)
	}

	cancelResp, err = client.Cancel(ctx)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelResp.Cancelled {
		t.Fatalf("expected cancellation to be accepted: %+v", cancelResp)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	if _, err := d.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	final, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if final.State != string(conversion.StateCancelled) || final.Launched >= 3 || final.FinishedAt == "" {
		t.Fatalf("unexpected final status: %+v", final)
	}
}

func TestStartRejectedByPreflight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Encoder.Binary = filepath.Join(testsupport.BaseDir(cfg), "missing-encoder")
	controller := conversion.NewController(conversion.Options{Config: cfg})
	d, err := daemon.New(cfg, nil, nil, controller)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(context.Background(), cfg.SocketPath(), d, nil)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Start(context.Background(), t.TempDir(), filepath.Join(testsupport.BaseDir(cfg), "out"))
	if err == nil || errors.Is(err, conversion.ErrRunActive) {
		t.Fatalf("expected preflight rejection, got %v", err)
	}
	if resp == nil || resp.Code != ipc.CodeRejected || !strings.Contains(resp.Message, "Encoder") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
