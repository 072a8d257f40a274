package main

import (
	"context"
	"fmt"
	log "log/slog"

	"voxgit/internal/confirm"
	"voxgit/internal/history"
	"voxgit/internal/ipc"
	"voxgit/internal/session"
	"voxgit/internal/voice"
)

// control answers the control socket.
type control struct {
	sess    *session.Session
	prompts *confirm.Channel
	history *history.Store
	log     *log.Logger
}

func (c *control) handle(base context.Context) ipc.Handler {
	return func(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
		switch msg.Cmd {
		case ipc.CmdTrigger:
			if c.sess.Snapshot().State == voice.Off {
				return ipc.Failed(session.ErrNotRunning)
			}
			// The cycle may wait for a confirmation that arrives on this
			// same socket, so it cannot hold the connection.
			go func() {
				if _, err := c.sess.Trigger(base); err != nil {
					c.log.Warn("manual trigger failed", "err", err)
				}
			}()
			return c.status()

		case ipc.CmdStart:
			if c.sess.Snapshot().State != voice.Off {
				return c.status()
			}
			if err := c.sess.Start(base); err != nil {
				return ipc.Failed(err)
			}
			return c.status()

		case ipc.CmdStop:
			c.sess.Stop()
			return c.status()

		case ipc.CmdStatus:
			return c.status()

		case ipc.CmdConfirm, ipc.CmdDecline:
			if err := c.prompts.Answer(msg.Cmd == ipc.CmdConfirm); err != nil {
				return ipc.Failed(err)
			}
			return ipc.Reply{OK: true}

		case ipc.CmdAsk:
			rep, err := c.sess.Ask(ctx, msg.Text)
			if err != nil {
				return ipc.Failed(err)
			}
			r := c.status()
			r.Answer = describe(rep)
			return r

		case ipc.CmdHistory:
			entries, err := c.history.Recent(ctx, msg.Limit)
			if err != nil {
				return ipc.Failed(err)
			}
			return ipc.Reply{OK: true, History: entries}

		default:
			return ipc.Failed(fmt.Errorf("unknown command %q", msg.Cmd))
		}
	}
}

func (c *control) status() ipc.Reply {
	snap := c.sess.Snapshot()
	r := ipc.Reply{OK: true, Snapshot: &snap}
	if p, ok := c.sess.Pending(); ok {
		r.Pending = &p
	}
	if p, ok := c.prompts.Pending(); ok {
		r.Prompt = &p
	}
	return r
}

// describe renders a report as one line for the terminal.
func describe(r session.Report) string {
	switch {
	case r.Error != "":
		return "error: " + r.Error
	case r.Answer != "":
		return r.Answer
	case r.Declined && r.Plan != nil:
		return fmt.Sprintf("declined: %s", r.Plan.Command)
	case r.Result != nil:
		return fmt.Sprintf("%s (%s, exit %d)\n%s%s", r.Result.Plan.Command, r.Result.Outcome, r.Result.ExitCode, r.Result.Stdout, r.Result.Stderr)
	case r.Plan != nil:
		return "planned: " + r.Plan.Command
	default:
		return "nothing happened"
	}
}
