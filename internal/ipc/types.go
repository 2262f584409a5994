package ipc

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Imagebit"

// Response codes carried in StartResponse.Code.
const (
	CodeOK        = "ok"
	CodeRunActive = "run_active"
	CodeRejected  = "rejected"
)

// StartRequest asks the daemon to convert a directory.
type StartRequest struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
}

// StartResponse reports whether the run was started.
type StartResponse struct {
	Started bool   `json:"started"`
	RunID   string `json:"run_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CancelRequest asks the daemon to cancel the active run.
type CancelRequest struct{}

// CancelResponse reports whether a run was active.
type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// StatusRequest queries daemon state.
type StatusRequest struct{}

// FileFailure is the wire form of a failed input.
type FileFailure struct {
	Index    int    `json:"index"`
	Path     string `json:"path"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error"`
}

// StatusResponse describes the daemon and its current or last run.
type StatusResponse struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	State        string        `json:"state"`
	RunID        string        `json:"run_id,omitempty"`
	InputDir     string        `json:"input_dir,omitempty"`
	OutputDir    string        `json:"output_dir,omitempty"`
	Limit        int           `json:"limit"`
	Total        int           `json:"total"`
	Launched     int           `json:"launched"`
	Active       int           `json:"active"`
	Completed    int           `json:"completed"`
	Failed       int           `json:"failed"`
	LastIndex    int           `json:"last_index"`
	LastFile     string        `json:"last_file,omitempty"`
	Failures     []FileFailure `json:"failures,omitempty"`
	StartedAt    string        `json:"started_at,omitempty"`
	FinishedAt   string        `json:"finished_at,omitempty"`
	Error        string        `json:"error,omitempty"`
	HistoryPath  string        `json:"history_path,omitempty"`
	LockFilePath string        `json:"lock_file_path,omitempty"`
}

// TestNotificationRequest asks the daemon to send a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether a notification was delivered.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
