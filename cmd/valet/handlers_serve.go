package main

import (
	"context"

	"github.com/valetd/valet/internal/daemon"
)

func runServe(ctx context.Context, configPath string, debug bool) error {
	rt, err := buildRuntime(configPath, debug)
	if err != nil {
		return err
	}
	// The daemon owns shutdown of the manager, memory, and sessions.
	d := daemon.New(rt.cfg, rt.stateDir, rt.loop, rt.sessions, rt.manager, rt.bridge, rt.logger)
	return d.Run(ctx)
}
