package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	defaultHealthPath   = "/health"
	defaultReadyTimeout = 60 * time.Second
	readyPollInterval   = 500 * time.Millisecond
)

// ErrServerNotFound is returned when stopping a server that is not running.
var ErrServerNotFound = errors.New("server not found")

// ServerManager manages helper server processes such as inference pipelines.
type ServerManager struct {
	servers map[string]*ServerProcess
	client  *http.Client
	mu      sync.Mutex
}

// ServerProcess represents a server running process.
type ServerProcess struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	baseURL string
}

// BaseURL returns the URL the process is reachable on.
func (p *ServerProcess) BaseURL() string {
	return p.baseURL
}

// ServerConfig defines how to start and check a backend server.
type ServerConfig struct {
	Env          map[string]string
	Name         string
	BinPath      string
	HealthPath   string
	Args         []string
	Port         int
	ReadyTimeout time.Duration
}

// NewServerManager initializes a ServerManager.
func NewServerManager() *ServerManager {
	return &ServerManager{
		servers: map[string]*ServerProcess{},
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// StartServer starts a backend server and blocks until its health endpoint answers 200.
// Starting a server that is already running returns the existing process.
func (sm *ServerManager) StartServer(ctx context.Context, cfg ServerConfig) (*ServerProcess, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if srv, exists := sm.servers[cfg.Name]; exists {
		return srv, nil
	}

	if info, err := os.Stat(cfg.BinPath); err != nil {
		return nil, fmt.Errorf("manager: failed to start %s server: %w", cfg.Name, err)
	} else if info.IsDir() {
		return nil, fmt.Errorf("manager: failed to start %s server: %s is a directory", cfg.Name, cfg.BinPath)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, cfg.BinPath, cfg.Args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("manager: failed to start %s server: %w", cfg.Name, err)
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = defaultHealthPath
	}

	timeout := cfg.ReadyTimeout
	if timeout == 0 {
		timeout = defaultReadyTimeout
	}

	if err := sm.WaitReady(ctx, baseURL+healthPath, timeout); err != nil {
		cancel()
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Error("Failed to kill server process", "name", cfg.Name, "error", err)
		}
		_ = cmd.Wait()
		return nil, fmt.Errorf("manager: %s server did not become ready: %w", cfg.Name, err)
	}

	srv := &ServerProcess{
		cmd:     cmd,
		cancel:  cancel,
		baseURL: baseURL,
	}
	sm.servers[cfg.Name] = srv

	slog.Info("Server started", "name", cfg.Name, "port", cfg.Port, "pid", cmd.Process.Pid)
	return srv, nil
}

// StopServer terminates a backend server.
func (sm *ServerManager) StopServer(name string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	srv, exists := sm.servers[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}

	sm.stop(name, srv)
	delete(sm.servers, name)
	return nil
}

// StopAll terminates all running servers.
func (sm *ServerManager) StopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for name, srv := range sm.servers {
		sm.stop(name, srv)
	}
	sm.servers = map[string]*ServerProcess{}

	slog.Info("All servers stopped")
}

func (sm *ServerManager) stop(name string, srv *ServerProcess) {
	srv.cancel()
	if err := srv.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Error("Failed to kill server process", "name", name, "error", err)
	}
	_ = srv.cmd.Wait()
	slog.Info("Server stopped", "name", name)
}

// WaitReady polls url until it answers 200, the timeout elapses or ctx is done.
func (sm *ServerManager) WaitReady(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := sm.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("manager: server failed to respond at %s within %v", url, timeout)
		case <-ticker.C:
		}
	}
}
