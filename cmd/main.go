package main

import (
	"os"

	"github.com/soundprediction/distillery/cmd/distillery"
)

func main() {
	if err := distillery.Execute(); err != nil {
		os.Exit(1)
	}
}
