package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voxgit/internal/ipc"
)

var version = "dev"

var (
	socketPath string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "voxgit-ctl",
	Short: "Control a running voxgit daemon",
	Long: `voxgit-ctl talks to voxgit-daemon over its control socket.

Trigger a listening cycle without the wake word, answer confirmation
prompts, ask typed questions and inspect the execution history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&socketPath, "socket", "s", ipc.DefaultSocketPath(), "Daemon control socket")
	pf.DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the daemon")

	rootCmd.AddCommand(
		simpleCmd(ipc.CmdTrigger, "Start listening for one command now"),
		simpleCmd(ipc.CmdStart, "Start wake-word listening"),
		simpleCmd(ipc.CmdStop, "Stop listening and discard pending work"),
		simpleCmd(ipc.CmdStatus, "Show the session state"),
		simpleCmd(ipc.CmdDecline, "Decline the pending confirmation"),
		confirmCmd,
		askCmd,
		historyCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("voxgit-ctl: "+err.Error()))
		os.Exit(1)
	}
}

func send(msg ipc.ControlMessage, wait time.Duration) (ipc.Reply, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return ipc.Send(ctx, socketPath, msg)
}

func simpleCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := send(ipc.ControlMessage{Cmd: name}, timeout)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(r))
			return nil
		},
	}
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Review and answer the pending confirmation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if yes {
			_, err := send(ipc.ControlMessage{Cmd: ipc.CmdConfirm}, timeout)
			return err
		}

		r, err := send(ipc.ControlMessage{Cmd: ipc.CmdStatus}, timeout)
		if err != nil {
			return err
		}
		if r.Prompt == nil {
			return fmt.Errorf("nothing to confirm")
		}

		approved, err := askUser(r)
		if err != nil {
			return err
		}
		answer := ipc.CmdDecline
		if approved {
			answer = ipc.CmdConfirm
		}
		_, err = send(ipc.ControlMessage{Cmd: answer}, timeout)
		return err
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <text...>",
	Short: "Send typed text as if it had been spoken",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Planning, confirmation and execution all happen before the reply.
		r, err := send(ipc.ControlMessage{Cmd: ipc.CmdAsk, Text: strings.Join(args, " ")}, 3*time.Minute)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), r.Answer)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently executed commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, _ := cmd.Flags().GetInt("limit")
		r, err := send(ipc.ControlMessage{Cmd: ipc.CmdHistory, Limit: n}, timeout)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderHistory(r.History))
		return nil
	},
}

func init() {
	confirmCmd.Flags().BoolP("yes", "y", false, "Approve without reviewing")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries")
}
