package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"roomcast/client"
	"roomcast/logging"
	"roomcast/registry"
	"roomcast/types/client/request"
)

var errNotAdmin = errors.New("room has another admin")

func newViewCommand(w io.Writer) *cobra.Command {
	o := &peerOptions{}
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Open a room and view the media of its sources",
		Long: `Open a room as its admin and receive the media of every source that joins it.

Examples:
  roomcast view --password secret
  roomcast view --room standup --password secret --server wss://example.com/ws`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.Init(w, o.debug)
			if o.room == "" {
				o.room = uuid.NewString()
			}
			return runPeer(cmd.Context(), w, o, nil, logger, func(ctx context.Context, c *client.Client) error {
				return openRoom(ctx, w, c, o)
			})
		},
	}
	o.bind(cmd.Flags(), "viewer")
	return cmd
}

// openRoom creates the room, or re-joins it when it already exists.
func openRoom(ctx context.Context, w io.Writer, c *client.Client, o *peerOptions) error {
	ack, err := c.Call(ctx, request.CreateRoom{RoomID: o.room, Name: o.name, Password: o.password})
	if errors.Is(err, client.ErrRejected) && ack.Error == registry.ErrAlreadyExists.Error() {
		ack, err = c.Call(ctx, request.JoinRoom{RoomID: o.room, Password: o.password})
	}
	if err != nil {
		return fmt.Errorf("failed to open room %s: %w", o.room, err)
	}
	if !ack.IsAdmin {
		return fmt.Errorf("%s: %w", o.room, errNotAdmin)
	}
	fmt.Fprintf(w, "room %s is open with %d participant(s)\n", ack.RoomID, len(ack.Participants))
	return nil
}
