// Package firegex deploys and manages a local Firegex firewall through
// docker compose.
//
// It provides:
//
//   - Host topology detection choosing host or bridged networking
//   - A compose manifest built for the chosen topology
//   - A Supervisor driving start, stop, restart and passthrough commands
//   - Startup checks for the docker engine and the NFQUEUE kernel target
//
// # Quick Start
//
//	cfg := firegex.DefaultConfig()
//	engine := container.NewManager(container.WithVolumeName(cfg.VolumeName()))
//	runner, err := compose.Resolve(ctx, cfg.Project)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sup := firegex.New(cfg, engine, runner)
//	if err := sup.Preflight(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	err = sup.Run(ctx, firegex.Start{Port: 4444})
//
// # Manifest lifetime
//
// Every command that calls compose writes the manifest to the working
// directory first and removes it before returning, whether the call
// succeeded, failed or was interrupted. The file never outlives a command.
//
// # Passwords
//
// A startup password is only provisioned when the data volume does not
// exist yet. It is passed to the service hex encoded in HEX_SET_PSW. Later
// commands never ask for it again.
//
// # Errors
//
// Commands that have nothing to do return ErrAlreadyRunning, ErrNotRunning
// or ErrVolumeNotFound after printing a notice. Use IsPrecondition to tell
// them apart from real failures. Failed compose calls are returned as
// *RuntimeError carrying the subprocess exit code.
package firegex
