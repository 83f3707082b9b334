// Package cmd parse args to configure application.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the roomcast command with its subcommands. Output
// and logs go to w.
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "roomcast",
		Short: "Password-protected rooms streaming media from sources to one viewer over WebRTC",
		Long: `roomcast runs a signaling server for password-protected rooms and the peers
that use it. The room admin views the media of every source in the room over
direct WebRTC connections.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(w)
	root.SetErr(w)
	root.AddCommand(newServeCommand(w), newViewCommand(w), newStreamCommand(w))
	return root
}

// Execute runs the command line until it ends or the process is interrupted.
func Execute() {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
