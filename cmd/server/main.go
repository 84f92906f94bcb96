package main

import (
	"context"
	"log"

	"github.com/formvault/formvault/internal/server"
	"github.com/formvault/formvault/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	// credential verification and webhook subscriber lookup are
	// deployment integrations; the bare binary runs the submission
	// surface only
	app, err := server.NewApp(ctx, cfg, server.Collaborators{})
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
