package main

import (
	"context"
	"log"
	"os"

	"github.com/markahope-aag/hazardos-sub008/internal/buildinfo"
	"github.com/markahope-aag/hazardos-sub008/internal/server"
	"github.com/markahope-aag/hazardos-sub008/internal/server/config"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := server.NewApp(cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
