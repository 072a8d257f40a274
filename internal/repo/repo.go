// Package repo inspects the git repository the daemon operates on.
package repo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"voxgit/pkg/util"
)

// Snapshot is a point-in-time view of the repository. It is never updated in
// place; take a new one instead.
type Snapshot struct {
	WorkspaceRoot   string    `json:"workspace_root"`
	GitRoot         string    `json:"git_root,omitempty"`
	Branch          string    `json:"branch,omitempty"`
	StatusPorcelain string    `json:"status_porcelain,omitempty"`
	IsClean         bool      `json:"is_clean"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ChangedPaths counts the entries in the porcelain status.
func (s Snapshot) ChangedPaths() int {
	if strings.TrimSpace(s.StatusPorcelain) == "" {
		return 0
	}
	return len(strings.Split(strings.TrimRight(s.StatusPorcelain, "\n"), "\n"))
}

// Summary renders the snapshot for prompts and spoken answers. The status is
// clipped to statusLimit characters.
func (s Snapshot) Summary(statusLimit int) string {
	if s.GitRoot == "" {
		return fmt.Sprintf("Workspace %s is not a git repository.", s.WorkspaceRoot)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository %s on branch %s", s.GitRoot, s.Branch)
	if s.IsClean {
		b.WriteString(", working tree clean.")
		return b.String()
	}

	fmt.Fprintf(&b, ", %d changed paths:\n", s.ChangedPaths())
	b.WriteString(util.Clip(s.StatusPorcelain, statusLimit))
	return b.String()
}

// RunGit runs git in dir and returns stdout with trailing whitespace trimmed.
// Leading whitespace is significant in porcelain output and is kept.
func RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimRight(stdout.String(), " \t\r\n")
	if err != nil {
		return output, fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return output, nil
}

type Inspector struct {
	now func() time.Time
}

func NewInspector() *Inspector {
	return &Inspector{now: time.Now}
}

// Snapshot inspects workspaceRoot. A directory outside any git repository is
// not an error: the snapshot simply has no GitRoot.
func (i *Inspector) Snapshot(ctx context.Context, workspaceRoot string) (Snapshot, error) {
	snap := Snapshot{
		WorkspaceRoot: workspaceRoot,
		UpdatedAt:     i.now(),
	}

	root, err := RunGit(ctx, workspaceRoot, "rev-parse", "--show-toplevel")
	if err != nil {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		return snap, nil
	}
	snap.GitRoot = root

	branch, err := RunGit(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		// Fresh repository without commits.
		branch, err = RunGit(ctx, root, "symbolic-ref", "--short", "HEAD")
		if err != nil {
			return snap, err
		}
	}
	snap.Branch = branch

	status, err := RunGit(ctx, root, "status", "--porcelain")
	if err != nil {
		return snap, err
	}
	snap.StatusPorcelain = status
	snap.IsClean = strings.TrimSpace(status) == ""

	return snap, nil
}
