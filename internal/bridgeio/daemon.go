package bridgeio

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/mordilloSan/go-logger/logger"
)

// DaemonSpawnConfig carries the four CLI flags the I/O Daemon expects,
// per spec §4.13/§6.
type DaemonSpawnConfig struct {
	BinaryPath string
	Port       uint16 // 0 = ephemeral
	Token      string
	ParentPID  int
	InstallID  string
}

// SpawnDaemon starts the I/O Daemon binary and reads its single stdout
// line for the bound port, per spec §4.13 ("print the bound port on a
// single stdout line so the Bridge can read it").
func SpawnDaemon(ctx context.Context, cfg DaemonSpawnConfig) (*exec.Cmd, int, error) {
	args := []string{
		"--port", strconv.Itoa(int(cfg.Port)),
		"--token", cfg.Token,
		"--install-id", cfg.InstallID,
	}
	if cfg.ParentPID != 0 {
		args = append(args, "--parent-pid", strconv.Itoa(cfg.ParentPID))
	}

	cmd := exec.CommandContext(ctx, cfg.BinaryPath, args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("bridgeio: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, 0, fmt.Errorf("bridgeio: starting daemon: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	if !scanner.Scan() {
		_ = cmd.Process.Kill()
		return nil, 0, fmt.Errorf("bridgeio: daemon exited before announcing a port")
	}

	port, err := strconv.Atoi(scanner.Text())
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, 0, fmt.Errorf("bridgeio: malformed port announcement %q: %w", scanner.Text(), err)
	}

	logger.Infof("bridgeio: daemon pid=%d bound port=%d", cmd.Process.Pid, port)
	return cmd, port, nil
}

// ErrNotImplemented is returned by stub collaborators that are out of
// scope for this repository (spec §1: folder-picker UI, process-tree
// browser detection, installer/packaging).
var ErrNotImplemented = fmt.Errorf("bridgeio: not implemented")

// FolderPicker is the native UI collaborator that lets the user choose a
// download directory. It is out of scope here; StubFolderPicker exists so
// the rest of this package compiles and is testable without a GUI toolkit.
type FolderPicker interface {
	PickFolder(ctx context.Context) (string, error)
}

type stubFolderPicker struct{}

func (stubFolderPicker) PickFolder(context.Context) (string, error) {
	return "", ErrNotImplemented
}

// StubFolderPicker is a FolderPicker that always returns ErrNotImplemented.
var StubFolderPicker FolderPicker = stubFolderPicker{}
