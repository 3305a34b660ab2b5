package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/sandbox"
)

// Native runs tools as host processes. Each tool gets its own process
// group so teardown can take the whole tree down at once.
type Native struct {
	opts Options
	log  *logrus.Logger
}

func NewNative(opts Options, log *logrus.Logger) *Native {
	return &Native{opts: opts, log: log}
}

func (n *Native) Spawn(ctx context.Context, name string, spec models.ToolSpec) (Process, error) {
	bin, err := n.resolveCmd(spec.Cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", spec.Cmd, err)
	}

	// Args pass through exec verbatim; there is no shell to interpret them.
	cmd := exec.CommandContext(ctx, bin, spec.Args...)
	cmd.Env = append(os.Environ(),
		"WORKSPACE_ROOT="+n.opts.WorkspaceRoot,
		"TOOLS_ROOT="+n.opts.ToolsRoot,
	)
	cmd.Env = append(cmd.Env, envPairs(spec.Env)...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	go pumpStderr(n.log, name, stderr)

	return &nativeProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// resolveCmd locates the tool binary. Absolute commands are taken as-is,
// bare names prefer a binary under tools_root and otherwise fall back to
// PATH, and anything with a separator must resolve inside tools_root.
func (n *Native) resolveCmd(cmdPath string) (string, error) {
	if cmdPath == "" {
		return "", fmt.Errorf("empty command")
	}
	if filepath.IsAbs(cmdPath) {
		return cmdPath, nil
	}
	if !strings.ContainsRune(cmdPath, '/') && !strings.ContainsRune(cmdPath, '\\') {
		candidate := filepath.Join(n.opts.ToolsRoot, cmdPath)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
		return cmdPath, nil
	}
	return sandbox.ValidatePath(n.opts.ToolsRoot, cmdPath)
}

func pumpStderr(log *logrus.Logger, tool string, r io.Reader) {
	if r == nil {
		return
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.WithField("tool", tool).Warn("tool stderr: " + sc.Text())
	}
}

type nativeProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *nativeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *nativeProcess) Stdout() io.Reader     { return p.stdout }
func (p *nativeProcess) Kill()                 { killTree(p.cmd) }
func (p *nativeProcess) Wait() error           { return p.cmd.Wait() }
