package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FilesDir is the directory under the working dir's .vagrant that holds
// one subdirectory per configuration.
const FilesDir = "boxwright_vagrant_files"

// DefinitionFile is the name of the rendered definition.
const DefinitionFile = "Vagrantfile"

// ErrNoDefinitionFile is returned when a session has no rendered definition on disk.
var ErrNoDefinitionFile = errors.New("no vagrant file found")

// Options are the session-wide settings shared by every host.
type Options struct {
	ForwardSSHAgent bool
	Memsize         int
	CPUs            int
	// DefaultUser is the login the boxes ship with.
	DefaultUser string
	FreeBSDNFS  bool
	BoxTokenRef string
	Strict      bool
	Binary      string
}

// DefaultOptions returns Options with the box defaults filled in.
func DefaultOptions() Options {
	return Options{
		DefaultUser: "vagrant",
		Binary:      "vagrant",
	}
}

// Session is the state of one provisioning run for one configuration.
type Session struct {
	ID      string
	Name    string
	WorkDir string
	Options Options
}

// New creates a session rooted at workDir. The name becomes a directory, so
// it must be a single path element.
func New(name, workDir string, opts Options) (*Session, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid configuration name %q", name)
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if opts.DefaultUser == "" {
		opts.DefaultUser = "vagrant"
	}
	if opts.Binary == "" {
		opts.Binary = "vagrant"
	}

	return &Session{
		ID:      uuid.NewString(),
		Name:    name,
		WorkDir: abs,
		Options: opts,
	}, nil
}

// Dir is where every artifact of the session lives.
func (s *Session) Dir() string {
	return filepath.Join(s.WorkDir, ".vagrant", FilesDir, s.Name)
}

func (s *Session) DefinitionPath() string {
	return filepath.Join(s.Dir(), DefinitionFile)
}

func (s *Session) DefinitionExists() bool {
	info, err := os.Stat(s.DefinitionPath())
	return err == nil && info.Mode().IsRegular()
}

// ReadDefinition returns the rendered definition of a previous run.
func (s *Session) ReadDefinition() (string, error) {
	content, err := os.ReadFile(s.DefinitionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w (should be located at %s)", ErrNoDefinitionFile, s.DefinitionPath())
		}
		return "", fmt.Errorf("failed to read %s: %w", s.DefinitionPath(), err)
	}
	return string(content), nil
}

// WriteDefinition replaces any prior definition.
func (s *Session) WriteDefinition(text string) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(s.DefinitionPath(), []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.DefinitionPath(), err)
	}
	return nil
}

// CreateTemp creates a new artifact file in the session directory.
func (s *Session) CreateTemp(prefix string) (*os.File, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(s.Dir(), prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return f, nil
}

// WriteArtifact writes a named file into the session directory and returns its path.
func (s *Session) WriteArtifact(name string, data []byte) (string, error) {
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes the session directory and everything in it.
func (s *Session) Remove() error {
	if err := os.RemoveAll(s.Dir()); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.Dir(), err)
	}
	return nil
}

func (s *Session) ensureDir() error {
	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return nil
}
