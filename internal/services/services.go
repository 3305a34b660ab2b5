package services

import (
	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/audit"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/runtime"
)

// Services wires the gateway's moving parts together: the audit store, the
// runtimes and the invoker on top of them.
type Services struct {
	Config  *config.Config
	Invoker *Invoker
	Audit   audit.Recorder
}

func New(cfg *config.Config, log *logrus.Logger) (*Services, error) {
	rec, err := audit.Open(cfg.Audit)
	if err != nil {
		return nil, err
	}

	rts := runtime.NewSet(runtime.Options{
		WorkspaceRoot: cfg.WorkspaceRoot,
		ToolsRoot:     cfg.ToolsRoot,
	}, log)

	return &Services{
		Config:  cfg,
		Invoker: NewInvoker(cfg, rts, rec, log),
		Audit:   rec,
	}, nil
}

// Reload applies a fresh config snapshot. Only the tool table is live;
// server, auth and audit settings take effect on restart.
func (s *Services) Reload(cfg *config.Config) {
	s.Invoker.SetConfig(cfg)
}

func (s *Services) Close() {
	_ = s.Audit.Close()
}
