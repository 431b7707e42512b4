// Package daemonlife implements the I/O Daemon's process lifecycle of
// spec §4.13: CLI flag parsing, parent-PID watchdog, bind-and-announce,
// and graceful shutdown. Grounded on server/cmd/root.go's signal handling
// and graceful http.Server.Shutdown, and
// original_source/native-host/io-daemon/src/main.rs's monitor_parent
// poll loop.
package daemonlife

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mordilloSan/go-logger/logger"
	"golang.org/x/sync/errgroup"
)

// Config is the parsed CLI configuration for the I/O Daemon.
type Config struct {
	Port       uint16
	Token      string
	ParentPID  int // 0 means unset
	InstallID  string
}

// ParseFlags parses --port, --token, --parent-pid, --install-id per
// spec §4.13/§6. --token and --install-id are required.
func ParseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("iodaemon", flag.ContinueOnError)
	port := fs.Uint("port", 0, "port to bind on 127.0.0.1 (0 = ephemeral)")
	token := fs.String("token", "", "process auth token (required)")
	parentPID := fs.Int("parent-pid", 0, "PID to watch; exit when it disappears")
	installID := fs.String("install-id", "", "install id this daemon serves (required)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if *token == "" {
		return Config{}, fmt.Errorf("daemonlife: --token is required")
	}
	if *installID == "" {
		return Config{}, fmt.Errorf("daemonlife: --install-id is required")
	}

	return Config{
		Port:      uint16(*port),
		Token:     *token,
		ParentPID: *parentPID,
		InstallID: *installID,
	}, nil
}

// parentWatchInterval matches the 1-second poll of the original daemon.
const parentWatchInterval = time.Second

// WatchParent polls every second whether pid still exists and calls
// onGone exactly once when it disappears. A pid of 0 disables the watch.
func WatchParent(ctx context.Context, pid int, onGone func()) {
	if pid <= 0 {
		return
	}
	ticker := time.NewTicker(parentWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !processAlive(pid) {
				onGone()
				return
			}
		}
	}
}

// processAlive reports whether pid still exists, using the kill(pid, 0)
// idiom: signal 0 performs no action but still surfaces ESRCH if the
// process is gone.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, syscall.ESRCH)
}

// Run binds srv to 127.0.0.1:port, prints the bound port to stdout on a
// single line so the Bridge can read it, and blocks until the server
// stops (via signal, parent death, or /control/shutdown). The HTTP serve
// loop, the parent watchdog, and the signal wait run under one
// errgroup.Group: a serve error, a parent death, a signal, or cancellation
// of ctx tears down the rest. Shutdown is graceful with a 5-second deadline.
func Run(ctx context.Context, srv *http.Server, port uint16, parentPID int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("daemonlife: bind failed: %w", err)
	}
	boundPort := ln.Addr().(*net.TCPAddr).Port
	fmt.Println(boundPort)
	logger.Infof("daemonlife: listening on 127.0.0.1:%d", boundPort)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemonlife: serve error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		WatchParent(gCtx, parentPID, func() {
			logger.Infof("daemonlife: parent process %d gone, shutting down", parentPID)
			cancel()
		})
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case <-quit:
			logger.Infof("daemonlife: shutdown signal received")
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	<-gCtx.Done()
	logger.Infof("daemonlife: shutdown requested (signal, parent watchdog, or control endpoint)")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("daemonlife: graceful shutdown failed, forcing close: %v", err)
		_ = srv.Close()
	}

	return g.Wait()
}
