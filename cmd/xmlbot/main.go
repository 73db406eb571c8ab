package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/xmlbot/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Restart on binary change during development.
	if os.Getenv("XMLBOT_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xmlbot:", err)
		os.Exit(1)
	}
}
