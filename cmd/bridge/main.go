// Command bridge is the Bridge process of spec §1: it holds the
// native-messaging stdio channel to the browser extension host, owns the
// discovery file, and launches/supervises the I/O Daemon. Out of scope
// per spec §1 (folder-picker UI, process-tree browser detection,
// installer/packaging) is represented only at the internal/bridgeio
// boundary. Uses spf13/cobra for its CLI, unlike the Daemon's plain
// flag-package CLI, matching the Domain Stack split recorded in
// SPEC_FULL.md.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mordilloSan/go-logger/logger"
	"github.com/spf13/cobra"

	"github.com/jstorrent/iobridge/internal/bridgeio"
	"github.com/jstorrent/iobridge/internal/config"
	"github.com/jstorrent/iobridge/internal/reload"
)

var (
	daemonBinary string
	installID    string
	extensionID  string
	verbose      bool
)

func main() {
	root := &cobra.Command{
		Use:     "bridge",
		Short:   "native-messaging host bridging a browser extension to the I/O Daemon",
		Version: config.Version,
		RunE:    run,
	}

	flags := root.Flags()
	flags.StringVar(&daemonBinary, "daemon-binary", "iodaemon", "path to the iodaemon executable")
	flags.StringVar(&installID, "install-id", "", "install id for this profile (generated if empty)")
	flags.StringVar(&extensionID, "extension-id", "", "the extension id that launched this process")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	env := "production"
	if verbose {
		env = "development"
	}
	logger.Init(env, verbose)

	if installID == "" {
		installID = uuid.NewString()
	}

	discoveryPath, err := bridgeio.DiscoveryPath()
	if err != nil {
		return err
	}

	doc, err := bridgeio.ReadDiscovery(discoveryPath)
	if err != nil {
		logger.Warnf("bridge: no existing discovery file, starting fresh: %v", err)
		doc = reload.DiscoveryFile{Version: 1}
	}

	token := uuid.NewString()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	daemonCmd, port, err := bridgeio.SpawnDaemon(ctx, bridgeio.DaemonSpawnConfig{
		BinaryPath: daemonBinary,
		Token:      token,
		ParentPID:  os.Getpid(),
		InstallID:  installID,
	})
	if err != nil {
		return fmt.Errorf("bridge: spawning daemon: %w", err)
	}

	entry := reload.ProfileEntry{
		InstallID:   installID,
		ExtensionID: extensionID,
		PID:         daemonCmd.Process.Pid,
		Port:        port,
		Token:       token,
	}
	doc = bridgeio.UpsertProfile(doc, entry)
	if err := bridgeio.WriteDiscovery(discoveryPath, doc); err != nil {
		return fmt.Errorf("bridge: writing discovery file: %w", err)
	}

	logger.Infof("bridge: daemon ready on port %d for install=%s", port, installID)

	if err := serveNativeMessaging(os.Stdin); err != nil {
		logger.Warnf("bridge: native-messaging channel closed: %v", err)
	}

	return daemonCmd.Wait()
}

// nativeMessage is one JSON envelope exchanged with the browser extension
// over stdio. The real payload shape is owned by the extension-side
// protocol (out of scope per spec §1); this carries it opaquely.
type nativeMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// serveNativeMessaging reads length-prefixed JSON messages from r until
// EOF or a read error, handing each off for dispatch. The parser itself
// is in scope only at this framing boundary; message semantics are the
// extension-side collaborator's concern per spec §1.
func serveNativeMessaging(r *os.File) error {
	for {
		var msg nativeMessage
		if err := bridgeio.ReadMessage(r, &msg); err != nil {
			return err
		}
		logger.Debugf("bridge: received native message type=%s", msg.Type)
	}
}
