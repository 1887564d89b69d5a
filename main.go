// Package main is the entry point for the cadenza application.
package main

import (
	"github.com/samber/lo"

	"github.com/cadenza-cli/cadenza/cmd"
	"github.com/cadenza-cli/cadenza/config"
	"github.com/cadenza-cli/cadenza/log"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
