package main

import (
	"fmt"
	"os"

	"github.com/me/balsamic/internal/cli"
	"github.com/me/balsamic/pkg/model"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(model.ExitCode(err))
	}
}
