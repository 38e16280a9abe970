/*
Copyright (c) The JunctionRelay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"

	"github.com/junctionrelay/relaycore/internal/config"
	"github.com/junctionrelay/relaycore/internal/node"
	"github.com/junctionrelay/relaycore/internal/prefs"
	"github.com/junctionrelay/relaycore/internal/renderer"
)

func main() {
	var configFile string
	var prefsFile string
	var logLevel string

	flag.StringVar(&configFile, "config", "", "Path to the node config YAML file")
	flag.StringVar(&prefsFile, "prefs", "", "Path to the preferences file (overrides the config default)")
	flag.StringVar(&logLevel, "loglevel", "", "Set a log level. Can be: debug, info, warning, error (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("relaycored: loading config: %v", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("relaycored: unrecognized log level: %v", cfg.LogLevel)
	}

	if prefsFile != "" {
		cfg.PreferencesPath = prefsFile
	}

	prefStore, err := prefs.Load(cfg.PreferencesPath, cfg.ConnMode)
	if err != nil {
		log.Fatalf("relaycored: loading preferences: %v", err)
	}

	n, err := node.Bootstrap(cfg, prefStore, renderer.NopRenderer{}, nil)
	if err != nil {
		log.Fatalf("relaycored: bootstrap failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			log.Warnf("relaycored: sd_notify failed: %v", err)
		} else if !ok {
			log.Debug("relaycored: sd_notify not supported")
		}
	}()

	log.Infof("relaycored: starting on %s, admin on %s", cfg.Interface, n.AdminAddr)
	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("relaycored: run failed: %v", err)
	}
	log.Info("relaycored: shut down cleanly")
}
