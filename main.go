package main

import (
	"os"

	"github.com/ShoshinNikita/gameicons/cmd"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		rlog.Error(err)
		os.Exit(1)
	}
}
