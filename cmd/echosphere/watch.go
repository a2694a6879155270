package main

import (
	"context"
	"fmt"
	"os"

	"echosphere/internal/client"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a user's chatroom list, or one chatroom, from a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jww.SetStdoutThreshold(jww.LevelInfo)

		server := viper.GetString("server")
		token := viper.GetString("token")
		if token == "" {
			return errors.New("--token is required")
		}
		c := client.New(server, token)

		var run func(ctx context.Context) error
		if room := viper.GetUint("room"); room != 0 {
			view := client.NewChatroomView(c, room)
			view.OnChange = func(msgs []client.Message) {
				fmt.Printf("== %s (%d messages)\n", view.Name, len(msgs))
				for _, m := range msgs {
					fmt.Printf("  [%d] %s: %s\n", m.ID, m.Sender, m.Message)
				}
			}
			run = view.Run
		} else {
			user := viper.GetUint("user")
			if user == 0 {
				return errors.New("--user or --room is required")
			}
			w := client.NewRoomWatcher(c, user)
			w.OnChange = func(rooms []client.Room) {
				fmt.Printf("== %d chatrooms\n", len(rooms))
				for _, r := range rooms {
					fmt.Printf("  [%d] %s %v\n", r.ID, r.Name, r.Participants)
				}
			}
			run = w.Run
		}

		os.Exit(runUntilSignal("watch", run, nil))
		return nil
	},
}

func init() {
	watchCmd.Flags().String("server", "http://localhost:8080", "Server base URL")
	watchCmd.Flags().String("token", "", "Bearer token")
	watchCmd.Flags().Uint("user", 0, "Current user id for the room list")
	watchCmd.Flags().Uint("room", 0, "Chatroom id to follow instead of the room list")

	for _, name := range []string{"server", "token", "user", "room"} {
		_ = viper.BindPFlag(name, watchCmd.Flags().Lookup(name))
	}
}
