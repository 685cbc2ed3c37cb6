//go:build !windows

package scriptrun

import (
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

type terminal struct {
	in  io.Writer
	out io.Reader
	f   *os.File
}

func (t *terminal) Close() error {
	return t.f.Close()
}

// startTerminal starts cmd on a new pseudo-terminal. pty.Start makes the
// child a session leader, so its pid is also its process group id.
func startTerminal(cmd *exec.Cmd) (*terminal, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 100})
	if err != nil {
		return nil, err
	}
	return &terminal{in: f, out: f, f: f}, nil
}

func interruptProcessTree(cmd *exec.Cmd) error {
	pid := processPID(cmd)
	if pid <= 0 {
		return nil
	}
	// Negative pid signals the whole process group.
	return unix.Kill(-pid, unix.SIGINT)
}

func killProcessTree(cmd *exec.Cmd) error {
	pid := processPID(cmd)
	if pid <= 0 {
		return nil
	}
	return unix.Kill(-pid, unix.SIGKILL)
}

func processPID(cmd *exec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}
