package main

import (
	"weibolab/cmd/weibolab/commands"
	"weibolab/lib/telemetry"
	"weibolab/lib/util/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()
	tel, err := telemetry.SetupFromEnv(ctx, "weibolab")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer tel.Shutdown(ctx)
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
