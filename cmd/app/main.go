package main

import (
	"realtime-notifier/internal/app"
	"realtime-notifier/internal/config"

	"github.com/wb-go/wbf/zlog"
)

func main() {
	zlog.Init()

	cfg, err := config.MustLoad()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to load config")
	}

	a := app.NewApp(cfg, nil)
	a.Run()
}
