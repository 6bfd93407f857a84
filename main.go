package main

import (
	"os"

	"github.com/tphakala/qcline/cmd"
	"github.com/tphakala/qcline/internal/conf"
)

func main() {
	var settings conf.Settings

	if err := cmd.RootCommand(&settings).Execute(); err != nil {
		os.Exit(1)
	}
}
