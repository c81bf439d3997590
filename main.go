// Package main wires up and runs the relay: configuration, the event
// store, the single-writer ingest pipeline, the broadcast bus, the
// optional identity verifier, and the HTTP/WebSocket front end.
package main

import (
	"fmt"
	"os"

	"golang.org/x/time/rate"

	"brokerly.dev/broker"
	"brokerly.dev/config"
	"brokerly.dev/event"
	"brokerly.dev/identity"
	"brokerly.dev/server"
	"brokerly.dev/signer"
	"brokerly.dev/store"
	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/context"
	"brokerly.dev/utils/diagnostics"
	"brokerly.dev/utils/interrupt"
	"brokerly.dev/utils/log"
	"brokerly.dev/version"
)

func main() {
	cfg, err := config.New()
	if chk.T(err) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		}
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	if config.HelpRequested() {
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	log.SetLevel(log.GetLevel(cfg.LogLevel))
	log.I.F("starting %s %s", cfg.AppName, version.V)

	ctx, cancel := context.Bg()

	st, err := store.Open(ctx, cfg.DataDir)
	if chk.E(err) {
		os.Exit(1)
	}
	if err = st.OpenReadPool(cfg.ReadPoolMin, cfg.ReadPoolMax); chk.E(err) {
		os.Exit(1)
	}

	bus := broker.NewBus(broker.DefaultBacklog)
	in := make(chan broker.Submission, 64)
	w := broker.NewWriter(st, bus, signer.New(nil), in)

	if len(cfg.Allowlist) > 0 {
		w.Allowlist = make(map[string]struct{}, len(cfg.Allowlist))
		for _, pk := range cfg.Allowlist {
			w.Allowlist[pk] = struct{}{}
		}
	}
	if cfg.MessagesPerSec > 0 {
		w.Limiter = rate.NewLimiter(rate.Limit(cfg.MessagesPerSec), cfg.MessagesPerSec*60)
	}

	if cfg.IdentityActive {
		metadataCh := make(chan *event.E, 32)
		w.MetadataOut = metadataCh
		w.IdentityEnforced = cfg.IdentityEnforced
		verifier := identity.New(st, metadataCh)
		go verifier.Run(ctx)
	}

	go w.Run(ctx)
	go diagnostics.MonitorResources(ctx)

	srv := server.NewServer(ctx, cancel, cfg, st, w)
	interrupt.Handle(cancel, func() {
		srv.Shutdown()
		chk.E(st.Close())
	})

	if err = srv.Start(); chk.E(err) {
		log.F.F("server terminated: %v", err)
	}
}
