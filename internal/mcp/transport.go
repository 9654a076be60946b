package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RequestTimeout bounds each in-flight JSON-RPC request. A var so
// tests can shorten it.
var RequestTimeout = 30 * time.Second

// maxLineBytes caps the stdout line buffer. Servers that emit a
// single line beyond this are assumed broken; the partial line is
// dropped and reading resumes at the next newline.
const maxLineBytes = 10 << 20

// extraPathDirs covers the usual install locations for servers
// launched from a GUI session where PATH is minimal.
var extraPathDirs = []string{
	"/opt/homebrew/bin",
	"/opt/homebrew/sbin",
	"/usr/local/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
}

type rpcOutcome struct {
	result json.RawMessage
	err    error
}

// transport owns one child process and its stdio framing. Requests
// are correlated by monotonically increasing ids; each awaiter is
// resolved exactly once, by whichever of response, timeout, or
// disconnect removes it from the pending map first.
type transport struct {
	server string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[int64]chan rpcOutcome
	closed   bool
	closeErr error

	done chan struct{}
}

// spawn launches the server process and starts the stdout and stderr
// readers.
func spawn(cfg ServerConfig, logger *slog.Logger) (*transport, error) {
	path, err := lookupCommand(cfg.Command)
	if err != nil {
		return nil, &LaunchError{Server: cfg.Name, Err: err}
	}

	cmd := exec.Command(path, cfg.Args...)
	cmd.Env = buildEnv(cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LaunchError{Server: cfg.Name, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Server: cfg.Name, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Server: cfg.Name, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Server: cfg.Name, Err: err}
	}

	t := &transport{
		server:  cfg.Name,
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger.With("server", cfg.Name),
		pending: make(map[int64]chan rpcOutcome),
		done:    make(chan struct{}),
	}
	go t.readLoop(stdout)
	go t.logStderr(stderr)
	return t, nil
}

// lookupCommand resolves a command name against PATH plus the extra
// well-known directories.
func lookupCommand(command string) (string, error) {
	if strings.ContainsRune(command, os.PathSeparator) {
		return command, nil
	}
	if path, err := exec.LookPath(command); err == nil {
		return path, nil
	}
	for _, dir := range extraPathDirs {
		candidate := filepath.Join(dir, command)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("command %q not found in PATH", command)
}

// buildEnv merges the configured environment over the parent's,
// appending the extra directories to PATH.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	pathVal := os.Getenv("PATH")
	for _, dir := range extraPathDirs {
		if !strings.Contains(pathVal, dir) {
			pathVal += string(os.PathListSeparator) + dir
		}
	}
	env = append(env, "PATH="+pathVal)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// call sends one request and waits for its response, the request
// timeout, or context cancellation, whichever comes first.
func (t *transport) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)
	ch := make(chan rpcOutcome, 1)

	t.mu.Lock()
	if t.closed {
		err := t.closeErr
		t.mu.Unlock()
		return nil, err
	}
	t.pending[id] = ch
	t.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := t.writeLine(req); err != nil {
		t.resolve(id, rpcOutcome{})
		return nil, &WriteError{Server: t.server, Err: err}
	}

	timer := time.NewTimer(RequestTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timer.C:
		if !t.resolve(id, rpcOutcome{}) {
			// Response raced the timer; take it.
			out := <-ch
			return out.result, out.err
		}
		return nil, fmt.Errorf("%w: %s %s after %s", ErrTimeout, t.server, method, RequestTimeout)
	case <-ctx.Done():
		if !t.resolve(id, rpcOutcome{}) {
			out := <-ch
			return out.result, out.err
		}
		return nil, ctx.Err()
	}
}

// notify sends a notification. Notifications have no response.
func (t *transport) notify(method string, params any) error {
	n := rpcNotification{JSONRPC: "2.0", Method: method, Params: params}
	if err := t.writeLine(n); err != nil {
		return &WriteError{Server: t.server, Err: err}
	}
	return nil
}

func (t *transport) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = t.stdin.Write(data)
	return err
}

// resolve removes a pending awaiter and, when present, delivers the
// outcome. It reports whether this caller won the removal.
func (t *transport) resolve(id int64, out rpcOutcome) bool {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if ok && (out.result != nil || out.err != nil) {
		ch <- out
	}
	return ok
}

// readLoop consumes stdout, splitting on newlines and dispatching
// responses to their awaiters. Lines that are not valid JSON-RPC are
// logged and skipped; a line that grows past maxLineBytes is dropped
// and reading resumes after the next newline.
func (t *transport) readLoop(stdout io.Reader) {
	defer close(t.done)

	var buf []byte
	dropping := false
	chunk := make([]byte, 64<<10)
	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			for len(data) > 0 {
				if dropping {
					idx := indexByte(data, '\n')
					if idx < 0 {
						data = nil
						continue
					}
					data = data[idx+1:]
					dropping = false
					continue
				}
				idx := indexByte(data, '\n')
				if idx < 0 {
					buf = append(buf, data...)
					data = nil
				} else {
					line := append(buf, data[:idx]...)
					buf = buf[:0]
					data = data[idx+1:]
					t.dispatch(line)
				}
				if len(buf) > maxLineBytes {
					t.logger.Warn("dropping oversized message", "bytes", len(buf))
					buf = buf[:0]
					dropping = true
				}
			}
		}
		if err != nil {
			t.fail(fmt.Errorf("%w: %s", ErrServerDisconnected, t.server))
			return
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// dispatch routes one complete line. Responses for unknown ids are
// ignored; requests and notifications from the server are logged at
// debug and dropped, this client does not serve them.
func (t *transport) dispatch(line []byte) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return
	}
	var msg rpcMessage
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		t.logger.Debug("skipping non-JSON output line", "line", truncateForLog(trimmed))
		return
	}
	if msg.ID == nil {
		if msg.Method != "" {
			t.logger.Debug("ignoring server-initiated message", "method", msg.Method)
		}
		return
	}
	out := rpcOutcome{result: msg.Result}
	if msg.Error != nil {
		out = rpcOutcome{err: msg.Error}
	}
	if out.result == nil && out.err == nil {
		out.result = json.RawMessage("null")
	}
	t.resolve(*msg.ID, out)
}

// fail marks the transport closed and fails every pending awaiter.
func (t *transport) fail(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = err
	pending := t.pending
	t.pending = make(map[int64]chan rpcOutcome)
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- rpcOutcome{err: err}
	}
}

// close terminates the child process and fails pending requests.
func (t *transport) close() {
	t.fail(fmt.Errorf("%w: %s", ErrServerDisconnected, t.server))
	t.stdin.Close()
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	t.cmd.Wait()

	select {
	case <-t.done:
	case <-time.After(2 * time.Second):
	}
}

func (t *transport) logStderr(stderr io.Reader) {
	buf := make([]byte, 8<<10)
	var partial string
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			partial += string(buf[:n])
			for {
				idx := strings.IndexByte(partial, '\n')
				if idx < 0 {
					break
				}
				line := strings.TrimSpace(partial[:idx])
				partial = partial[idx+1:]
				if line != "" {
					t.logger.Debug("server stderr", "line", truncateForLog(line))
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func truncateForLog(s string) string {
	const max = 500
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
