package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagebit/internal/conversion"
	"imagebit/internal/daemon"
	"imagebit/internal/logging"
	"imagebit/internal/services"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(req StartRequest, resp *StartResponse) error {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("start requested",
		logging.String("input_dir", req.InputDir),
		logging.String("output_dir", req.OutputDir),
	)
	id, err := s.daemon.Submit(ctx, req.InputDir, req.OutputDir)
	switch {
	case errors.Is(err, conversion.ErrRunActive):
		resp.Code = CodeRunActive
		resp.Message = err.Error()
		return nil
	case err != nil:
		resp.Code = CodeRejected
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.RunID = id
	resp.Code = CodeOK
	resp.Message = "conversion started"
	return nil
}

func (s *service) Cancel(_ CancelRequest, resp *CancelResponse) error {
	s.logger.Debug("cancel requested")
	resp.Cancelled = s.daemon.Cancel()
	if resp.Cancelled {
		resp.Message = "cancellation requested"
	} else {
		resp.Message = "no active run"
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	st := s.daemon.Status()
	run := st.Run
	*resp = StatusResponse{
		Running:      st.Running,
		PID:          os.Getpid(),
		State:        string(run.State),
		RunID:        run.RunID,
		InputDir:     run.InputDir,
		OutputDir:    run.OutputDir,
		Limit:        run.Limit,
		Total:        run.Counters.Total,
		Launched:     run.Counters.Launched,
		Active:       run.Counters.Running,
		Completed:    run.Counters.Completed,
		Failed:       run.Counters.Failed,
		StartedAt:    formatTime(run.StartedAt),
		FinishedAt:   formatTime(run.FinishedAt),
		HistoryPath:  st.HistoryPath,
		LockFilePath: st.LockFilePath,
	}
	if run.LastProgress != nil {
		resp.LastIndex = run.LastProgress.Index
		resp.LastFile = run.LastProgress.FileName
	}
	if run.Err != nil {
		resp.Error = run.Err.Error()
	}
	for _, f := range run.Failures {
		failure := FileFailure{Index: f.Index, Path: f.Path, ExitCode: f.ExitCode}
		if f.Err != nil {
			failure.Error = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, failure)
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	sent, err := s.daemon.TestNotification(ctx)
	switch {
	case err != nil:
		resp.Message = "notification failed: " + err.Error()
	case !sent:
		resp.Message = "notifications are not configured (set notifications.ntfy_topic)"
	default:
		resp.Sent = true
		resp.Message = "test notification sent"
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
