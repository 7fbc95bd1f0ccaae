package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/markahope-aag/hazardos-sub008/internal/app"
	"github.com/markahope-aag/hazardos-sub008/internal/buildinfo"
	"github.com/markahope-aag/hazardos-sub008/internal/config"
)

func main() {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		buildinfo.PrintBuildData(os.Stdout)
	}

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close(context.Background())

	if err := a.Run(ctx, os.Stdin, os.Stdout, interactive); err != nil {
		log.Printf("%v", err)
	}
}
