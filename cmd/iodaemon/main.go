// Command iodaemon is the I/O Daemon process of spec §1: a localhost-only
// HTTP+WebSocket server that multiplexes TCP/UDP sockets over one binary
// WebSocket protocol and serves the file/hashing HTTP surface. Grounded
// on server/cmd/root.go and server/cmd/cli.go's flag-parsing and
// graceful-shutdown shape.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/mordilloSan/go-logger/logger"

	"github.com/jstorrent/iobridge/internal/bridgeio"
	"github.com/jstorrent/iobridge/internal/daemonlife"
	"github.com/jstorrent/iobridge/internal/reload"
	"github.com/jstorrent/iobridge/internal/roots"
	"github.com/jstorrent/iobridge/internal/statsapi"
)

func main() {
	cfg, err := daemonlife.ParseFlags(os.Args[1:])
	if err != nil {
		logger.Errorf("iodaemon: %v", err)
		os.Exit(2)
	}

	env := os.Getenv("JSTORRENT_ENV")
	if env == "" {
		env = "production"
	}
	logger.Init(env, os.Getenv("JSTORRENT_LOG") != "")

	table := roots.NewTable()

	discoveryPath, err := bridgeio.DiscoveryPath()
	if err != nil {
		logger.Errorf("iodaemon: resolving discovery path: %v", err)
		os.Exit(1)
	}

	if doc, err := bridgeio.ReadDiscovery(discoveryPath); err == nil {
		if profile, ok := bridgeio.FindProfile(doc, cfg.InstallID); ok {
			next := make([]roots.Root, 0, len(profile.DownloadRoots))
			for _, r := range profile.DownloadRoots {
				next = append(next, roots.Root{Token: r.Key, Path: r.Path})
			}
			table.Replace(next)
			logger.Infof("iodaemon: loaded %d roots at startup for install=%s", len(next), cfg.InstallID)
		} else {
			logger.Warnf("iodaemon: no profile for install id %q at startup", cfg.InstallID)
		}
	} else {
		logger.Warnf("iodaemon: reading discovery file at startup: %v", err)
	}

	reloadHandlers := reload.New(table, cfg.InstallID, discoveryPath)
	counters := statsapi.NewCounters()

	// spec §4.12: /control/shutdown exits immediately, no drain.
	stats := statsapi.New(counters, func() { os.Exit(0) })

	ctx := context.Background()
	router := buildRouter(cfg.Token, table, reloadHandlers, stats)
	srv := &http.Server{Handler: router}

	if err := daemonlife.Run(ctx, srv, cfg.Port, cfg.ParentPID); err != nil {
		logger.Errorf("iodaemon: %v", err)
		os.Exit(1)
	}
	logger.Infof("iodaemon: stopped")
}
