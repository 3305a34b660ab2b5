package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/models"
)

// containerWorkspace is where the host workspace is mounted inside tool
// containers.
const containerWorkspace = "/workspace"

// probeTimeout bounds the daemon readiness ping.
const probeTimeout = 800 * time.Millisecond

// Docker runs container tools through the Docker Engine API. The client is
// created lazily so a host without Docker still serves native tools.
type Docker struct {
	opts Options
	log  *logrus.Logger

	once sync.Once
	cli  *client.Client
	err  error
}

func NewDocker(opts Options, log *logrus.Logger) *Docker {
	return &Docker{opts: opts, log: log}
}

func (d *Docker) client() (*client.Client, error) {
	d.once.Do(func() {
		d.cli, d.err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	})
	return d.cli, d.err
}

// Ready pings the Docker daemon. The readiness endpoint uses it so container
// tools are only advertised when the daemon answers.
func (d *Docker) Ready(ctx context.Context) error {
	cli, err := d.client()
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err = cli.Ping(pctx)
	return err
}

func (d *Docker) Spawn(ctx context.Context, name string, spec models.ToolSpec) (Process, error) {
	cli, err := d.client()
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	env := append(envPairs(spec.Env), "WORKSPACE_ROOT="+containerWorkspace)
	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Cmd:          spec.Args,
			Env:          env,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
			OpenStdin:    true,
			StdinOnce:    true,
			Tty:          false,
			Labels:       map[string]string{"toolgate.tool": name},
		},
		&container.HostConfig{
			AutoRemove: true,
			Binds:      []string{d.opts.WorkspaceRoot + ":" + containerWorkspace},
		},
		nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container for %s: %w", name, err)
	}

	attach, err := cli.ContainerAttach(ctx, created.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		removeQuiet(cli, created.ID)
		return nil, fmt.Errorf("attach container for %s: %w", name, err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		attach.Close()
		removeQuiet(cli, created.ID)
		return nil, fmt.Errorf("start container for %s: %w", name, err)
	}

	// The attach stream multiplexes stdout and stderr; demux so stdout
	// feeds the caller and stderr lands in the log like native tools.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(outW, errW, attach.Reader)
		outW.CloseWithError(err)
		errW.CloseWithError(err)
	}()
	go pumpStderr(d.log, name, errR)

	return &dockerProcess{cli: cli, id: created.ID, attach: attach, stdout: outR}, nil
}

func removeQuiet(cli *client.Client, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

type dockerProcess struct {
	cli    *client.Client
	id     string
	attach types.HijackedResponse
	stdout io.Reader
}

func (p *dockerProcess) Stdin() io.WriteCloser { return dockerStdin{p.attach} }
func (p *dockerProcess) Stdout() io.Reader     { return p.stdout }

// Kill mirrors the native teardown: a one second stop window, then forced
// removal.
func (p *dockerProcess) Kill() {
	timeout := 1
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.cli.ContainerStop(ctx, p.id, container.StopOptions{Timeout: &timeout})
	_ = p.cli.ContainerRemove(ctx, p.id, container.RemoveOptions{Force: true})
	p.attach.Close()
}

func (p *dockerProcess) Wait() error {
	waitCh, errCh := p.cli.ContainerWait(context.Background(), p.id, container.WaitConditionNotRunning)
	select {
	case res := <-waitCh:
		if res.Error != nil {
			return fmt.Errorf("container exit: %s", res.Error.Message)
		}
		if res.StatusCode != 0 {
			return fmt.Errorf("container exited with status %d", res.StatusCode)
		}
		return nil
	case err := <-errCh:
		// AutoRemove can reap the container before the wait lands.
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}
}

// dockerStdin adapts the hijacked attach connection to the stdin shape the
// caller expects: Close half-closes the stream so the tool sees EOF.
type dockerStdin struct {
	attach types.HijackedResponse
}

func (s dockerStdin) Write(p []byte) (int, error) { return s.attach.Conn.Write(p) }
func (s dockerStdin) Close() error                { return s.attach.CloseWrite() }
