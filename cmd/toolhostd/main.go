package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stratonally/toolhost/internal/catalog"
	"github.com/stratonally/toolhost/internal/config"
	"github.com/stratonally/toolhost/internal/observability"
	"github.com/stratonally/toolhost/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional TOML config file")
	flag.Parse()

	logger := observability.InitLogger("toolhostd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolhostd: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(cfg, catalog.Default(), logger)
	if err := srv.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "toolhostd: %v\n", err)
		os.Exit(1)
	}
}
