package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/lehigh-university-libraries/picturebook/cmd"
)

// version is overridden at release time with
// -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	// serve and console both stop on the context fang cancels at Ctrl+C or SIGTERM
	if err := fang.Execute(
		context.Background(),
		cmd.NewRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
