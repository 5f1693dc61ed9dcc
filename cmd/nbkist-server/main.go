package main

import (
	"flag"
	"nbkist-backend/lib/configutil"
	"nbkist-backend/lib/serviceutil"
	"net/http"
)

type Config struct {
	Academics   AcademicsConfig   `json:"academics"`
	Leaderboard LeaderboardConfig `json:"leaderboard"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	mux := http.NewServeMux()

	academics, err := InitAcademics(mux, cfg.Academics)
	if err != nil {
		serviceutil.Fatal("init academics", err)
	}
	err = InitLeaderboard(mux, cfg.Leaderboard, academics)
	if err != nil {
		serviceutil.Fatal("init leaderboard", err)
	}

	go serviceutil.StartHttpServer(8000, mux)
	<-ctx.Done()
}
