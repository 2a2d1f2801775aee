package main

import (
	"log/slog"
	"os"

	"labflat/internal/app"
	"labflat/internal/infrastructure"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = application.Run()
	infrastructure.CloseLogFile()
	if err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
