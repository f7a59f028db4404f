// Package bootstrap prepares freshly booted hosts: root access with the box
// keys, sshd root login and a shared /etc/hosts.
package bootstrap

import (
	"context"
	"sync"

	"github.com/andreweick/boxwright/internal/command"
	"github.com/andreweick/boxwright/internal/host"
	"github.com/go-logr/logr"
)

// Executor runs commands and writes files on a host.
type Executor interface {
	Exec(ctx context.Context, h *host.Host, cmd string) (command.Result, error)
	WriteFile(ctx context.Context, h *host.Host, path string, data []byte) error
}

// DomainResolver finds the DNS domain a host lives in. An empty domain means
// the host has none.
type DomainResolver interface {
	DomainName(ctx context.Context, h *host.Host) (string, error)
}

type Bootstrapper struct {
	exec     Executor
	resolver DomainResolver
	log      logr.Logger

	mu     sync.Mutex
	cygwin map[string]bool
}

func New(exec Executor, resolver DomainResolver, log logr.Logger) *Bootstrapper {
	return &Bootstrapper{
		exec:     exec,
		resolver: resolver,
		log:      log,
		cygwin:   make(map[string]bool),
	}
}

// run executes cmd and fails on a non-zero exit.
func (b *Bootstrapper) run(ctx context.Context, h *host.Host, cmd string) (command.Result, error) {
	res, err := b.exec.Exec(ctx, h, cmd)
	if err != nil {
		return res, err
	}
	return res, command.Check(cmd, h.Name, res)
}

// isCygwin reports whether a windows host answers through a POSIX shell.
func (b *Bootstrapper) isCygwin(ctx context.Context, h *host.Host) (bool, error) {
	b.mu.Lock()
	cached, ok := b.cygwin[h.Name]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	res, err := b.exec.Exec(ctx, h, "uname -s")
	if err != nil {
		return false, err
	}
	cygwin := res.Success() && containsFold(res.Stdout, "cygwin")

	b.mu.Lock()
	b.cygwin[h.Name] = cygwin
	b.mu.Unlock()
	return cygwin, nil
}
