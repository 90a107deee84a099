package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/veil-io/veil/internal/cmd"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
