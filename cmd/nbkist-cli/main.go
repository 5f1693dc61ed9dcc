package main

import (
	"context"
	"nbkist-backend/cmd/nbkist-cli/commands"
	"nbkist-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "nbkist-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
