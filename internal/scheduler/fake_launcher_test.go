package scheduler_test

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"imagebit/internal/launcher"
)

// fakeLauncher records launches and lets tests decide when each process
// exits. With auto set, processes exit on their own after delay.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
	pending  map[string]func(launcher.Exit)
	running  int
	peak     int
	failOn   string
	auto     bool
	delay    time.Duration
	exitCode map[string]int
	signal   chan struct{}
	// onLaunch, when set, runs inside every Launch call.
	onLaunch func()
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		pending:  make(map[string]func(launcher.Exit)),
		exitCode: make(map[string]int),
		signal:   make(chan struct{}, 64),
	}
}

func (f *fakeLauncher) Launch(input, outputDir string, onExit func(launcher.Exit)) (launcher.Handle, error) {
	f.mu.Lock()
	if input == f.failOn {
		f.mu.Unlock()
		return launcher.Handle{}, errors.New("exec: permission denied")
	}
	f.launched = append(f.launched, input)
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.pending[input] = onExit
	auto, delay, onLaunch := f.auto, f.delay, f.onLaunch
	f.mu.Unlock()

	if onLaunch != nil {
		onLaunch()
	}

	select {
	case f.signal <- struct{}{}:
	default:
	}

	if auto {
		go func() {
			time.Sleep(delay)
			f.finish(input)
		}()
	}
	output := filepath.Join(outputDir, filepath.Base(input)+".webp")
	return launcher.Handle{Input: input, Output: output, PID: len(f.launched), Started: time.Now()}, nil
}

// finish makes the process for input exit with its configured code.
func (f *fakeLauncher) finish(input string) {
	f.mu.Lock()
	onExit, ok := f.pending[input]
	delete(f.pending, input)
	if ok {
		f.running--
	}
	code := f.exitCode[input]
	f.mu.Unlock()
	if !ok || onExit == nil {
		return
	}
	exit := launcher.Exit{Input: input, Output: filepath.Join("/out", filepath.Base(input)+".webp"), ExitCode: code}
	if code != 0 {
		exit.Err = errors.New("exit status")
	}
	onExit(exit)
}

func (f *fakeLauncher) finishAll() {
	f.mu.Lock()
	inputs := make([]string, 0, len(f.pending))
	for in := range f.pending {
		inputs = append(inputs, in)
	}
	f.mu.Unlock()
	for _, in := range inputs {
		f.finish(in)
	}
}

func (f *fakeLauncher) launches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.launched...)
}

func (f *fakeLauncher) peakRunning() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
