package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"docvault/internal/api"
	"docvault/internal/config"
)

const (
	autostartTimeout = 3 * time.Second
	autostartPoll    = 100 * time.Millisecond
	pingTimeout      = 500 * time.Millisecond

	// serverLogName is where an autostarted server writes, under the data dir.
	serverLogName = "server.log"

	sessionIDEnvKey    = "DOCVAULT_SESSION_ID"
	sessionTokenEnvKey = "DOCVAULT_SESSION_TOKEN"
)

// withClient runs fn against the server for cfg.DataDir, starting one for
// the duration of the command when nothing answers at cfg.APIURL. The
// client carries the session from the environment, if any.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	id, token, err := sessionFromEnv()
	if err != nil {
		return err
	}

	stop, err := connect(cfg)
	if err != nil {
		return err
	}
	if stop != nil {
		defer stop()
	}

	client := api.NewClient(cfg.APIURL)
	if id != "" {
		client = client.WithSession(id, token)
	}
	return fn(client)
}

// sessionFromEnv reads the session credentials printed by `session create`.
// Having neither is fine; having only one of them is an error.
func sessionFromEnv() (id, token string, err error) {
	id = strings.TrimSpace(os.Getenv(sessionIDEnvKey))
	token = strings.TrimSpace(os.Getenv(sessionTokenEnvKey))
	switch {
	case id != "" && token == "":
		return "", "", fmt.Errorf("%s is set but %s is empty", sessionIDEnvKey, sessionTokenEnvKey)
	case id == "" && token != "":
		return "", "", fmt.Errorf("%s is set but %s is empty", sessionTokenEnvKey, sessionIDEnvKey)
	}
	return id, token, nil
}

// connect returns nil stop when a server for cfg.DataDir is already up.
func connect(cfg *config.Config) (stop func(), err error) {
	client := api.NewClient(cfg.APIURL)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	info, err := client.GetInfo(ctx)
	cancel()
	switch {
	case err == nil:
		return nil, checkServedDataDir(cfg, info)
	case !isConnRefused(err):
		return nil, fmt.Errorf("docvault server at %s: %w", cfg.APIURL, err)
	}

	srv, err := spawnServer(cfg)
	if err != nil {
		return nil, err
	}
	if err := srv.waitReady(client); err != nil {
		srv.stop()
		return nil, err
	}
	return srv.stop, nil
}

// checkServedDataDir refuses to talk to a server that runs on another data
// dir, so a command never edits the wrong vault.
func checkServedDataDir(cfg *config.Config, info api.InfoResponse) error {
	if info.Info == nil || cfg.DataDir == "" {
		return nil
	}
	if sameDir(cfg.DataDir, info.DataDir) {
		return nil
	}
	return fmt.Errorf("server at %s serves data dir %s, not %s; stop it or set DOCVAULT_API_URL to another address",
		cfg.APIURL, info.DataDir, cfg.DataDir)
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

type spawnedServer struct {
	cmd     *exec.Cmd
	logPath string
	exited  chan error
}

func spawnServer(cfg *config.Config) (*spawnedServer, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(cfg.DataDir, serverLogName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open server log: %w", err)
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = serverEnv(os.Environ(), cfg)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, err
	}

	srv := &spawnedServer{cmd: cmd, logPath: logPath, exited: make(chan error, 1)}
	go func() {
		srv.exited <- cmd.Wait()
		logFile.Close()
	}()
	return srv, nil
}

// serverEnv is the autostarted server's environment: the caller's, minus
// its session credentials, with the resolved locations pinned.
func serverEnv(base []string, cfg *config.Config) []string {
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if key == sessionIDEnvKey || key == sessionTokenEnvKey {
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		"DOCVAULT_DATA_DIR="+cfg.DataDir,
		"DOCVAULT_DB="+cfg.DBPath,
		"DOCVAULT_API_URL="+cfg.APIURL,
	)
}

func (s *spawnedServer) waitReady(client *api.Client) error {
	deadline := time.Now().Add(autostartTimeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err := client.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if !isConnRefused(err) {
			return err
		}
		select {
		case err := <-s.exited:
			s.exited <- err
			return fmt.Errorf("docvault server exited during startup (%v); see %s", err, s.logPath)
		case <-time.After(autostartPoll):
		}
	}
	return fmt.Errorf("docvault server did not start within %s; see %s", autostartTimeout, s.logPath)
}

func (s *spawnedServer) stop() {
	select {
	case err := <-s.exited:
		s.exited <- err
		return
	default:
	}
	_ = s.cmd.Process.Kill()
	err := <-s.exited
	s.exited <- err
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
