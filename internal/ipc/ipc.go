// Package ipc is the daemon's control socket: one JSON request and one JSON
// reply per connection over a unix socket.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voxgit/internal/confirm"
	"voxgit/internal/history"
	"voxgit/internal/plan"
	"voxgit/internal/voice"
)

const (
	CmdTrigger = "trigger"
	CmdStart   = "start"
	CmdStop    = "stop"
	CmdStatus  = "status"
	CmdConfirm = "confirm"
	CmdDecline = "decline"
	CmdAsk     = "ask"
	CmdHistory = "history"
)

// DefaultSocketPath returns $XDG_RUNTIME_DIR/voxgit.sock, or a path under the
// temp dir when the variable is unset.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "voxgit.sock")
	}
	return filepath.Join(os.TempDir(), "voxgit.sock")
}

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
	// Limit bounds history replies.
	Limit int `json:"limit,omitempty"`
}

type Reply struct {
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Snapshot *voice.Snapshot `json:"snapshot,omitempty"`
	Prompt   *confirm.Prompt `json:"prompt,omitempty"`
	Pending  *plan.Plan      `json:"pending,omitempty"`
	Answer   string          `json:"answer,omitempty"`
	History  []history.Entry `json:"history,omitempty"`
}

// Failed builds an error reply.
func Failed(err error) Reply {
	return Reply{Error: err.Error()}
}

type Handler func(ctx context.Context, msg ControlMessage) Reply

// Serve listens on path until ctx is done. A stale socket file is removed
// first. Each connection is handled on its own goroutine.
func Serve(ctx context.Context, path string, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ipc: remove stale socket: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("ipc: listen: %w", err)
	}
	defer os.Remove(path)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	logger.Info("control socket listening", "path", path)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, conn, handler, logger)
		}()
	}
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler, logger *slog.Logger) {
	defer conn.Close()

	var msg ControlMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		logger.Debug("bad control message", "err", err)
		_ = json.NewEncoder(conn).Encode(Failed(fmt.Errorf("decode: %w", err)))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	logger.Debug("control message", "cmd", msg.Cmd)
	reply := handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		logger.Debug("reply not delivered", "cmd", msg.Cmd, "err", err)
	}
}

// Send delivers msg to the daemon at path and waits for its reply.
func Send(ctx context.Context, path string, msg ControlMessage) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, fmt.Errorf("ipc: dial %s: %w", path, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("ipc: send: %w", err)
	}
	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("ipc: read reply: %w", err)
	}
	if !reply.OK && reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
