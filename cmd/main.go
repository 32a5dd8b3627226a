package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edustack/knowledge-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Log.Info("knowledge backend ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.Log.Info("Shutting down...", "signal", sig.String())
}
