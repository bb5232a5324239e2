package main

import (
	goflag "flag"
	"os"

	"github.com/spf13/pflag"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics"
)

func main() {
	cmd := flakeanalytics.NewFlakeAnalyticsCommand()
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
