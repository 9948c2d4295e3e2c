package main

import (
	"github.com/spf13/cobra"

	"github.com/comigor/mentorchat/internal/server"
)

// serveCmd exposes sessions over HTTP and websocket
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transcript API",
	Long: `Serve sessions over HTTP.

Routes:
  POST   /api/sessions                 create a session
  GET    /api/sessions                 list session ids
  GET    /api/sessions/{id}            current two-lane view
  POST   /api/sessions/{id}/messages   submit user text and wait for the reply
  DELETE /api/sessions/{id}            clear the transcript
  GET    /api/sessions/{id}/ws         push scroll and composing signals`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return server.Run(ctx, a.cfg.Server.Addr(), server.NewRouter(a.sessions))
}
