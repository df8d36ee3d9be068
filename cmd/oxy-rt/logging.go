package main

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
	"github.com/urfave/cli"
)

var logger = log.New("oxy-rt")

// setupLogging applies the configured level, then the verbosity flags on top.
func setupLogging(ctx *cli.Context, configured string) {
	level, ok := log.ParseLevel(configured)
	if !ok && configured != "" {
		logger.Warningf("unknown log level %q, using notice", configured)
	}
	log.SetLevel(level)

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
