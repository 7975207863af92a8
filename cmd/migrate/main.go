package main

import (
	"context"
	"log"
	"os"

	"battlevoter/internal/app/bootstrap"
)

// Migrate process entrypoint.
// Creates or updates the votes table, then exits.
func main() {
	app, err := bootstrap.BuildMigrate(os.Args[1:])
	if err != nil {
		log.Fatalf("bootstrap migrate failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("migrate close failed: %v", err)
		}
	}()

	if err := app.Run(context.Background()); err != nil {
		log.Printf("battlevoter migrate failed: %v", err)
	}
}
