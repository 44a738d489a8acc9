// Command ghgc-monitoring synthesizes the GHGC monitoring infrastructure:
// a Grafana dashboard stack and an OpenTelemetry collector stack, both
// driven by one settings record.
package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"go.uber.org/zap"

	"github.com/US-GHG-Center/ghgc-monitoring/internal/settings"
	"github.com/US-GHG-Center/ghgc-monitoring/internal/stacks"
)

func main() {
	defer jsii.Close()

	logger := zap.Must(zap.NewProduction())
	defer logger.Sync()

	s, err := settings.Load()
	if err != nil {
		logger.Fatal("invalid deployment settings", zap.Error(err))
	}
	logger.Info("loaded deployment settings",
		zap.String("stage", s.Stage),
		zap.String("account", s.Account),
		zap.String("region", s.Region),
	)

	app := awscdk.NewApp(nil)

	stacks.NewGrafanaStack(app, s.GrafanaStackName(), s)
	if _, err := stacks.NewOtelStack(app, s.OtelStackName(), s); err != nil {
		logger.Fatal("assemble collector stack", zap.Error(err))
	}

	app.Synth(nil)
}
