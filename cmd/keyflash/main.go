package main

import (
	"log/slog"
	"os"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for minimal images

	"github.com/ericfisherdev/keyflash/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}

	if err := execute(); err != nil {
		os.Exit(1)
	}
}
