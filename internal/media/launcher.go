// Package media opens sampled assets in a local image viewer.
package media

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pders01/lensbot/internal/config"
	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/validation"
)

// ErrNoViewer is returned when none of the configured viewers is installed.
var ErrNoViewer = errors.New("no image viewer found")

type Launcher struct {
	registry      *Registry
	viewers       []string
	defaultOpener string
	assets        *validation.EndpointValidator

	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error
}

func NewLauncher(cfg config.MediaConfig) *Launcher {
	registry, err := NewRegistry()
	if err != nil {
		// Continue with bare commands if the definitions can't be loaded
		debuglog.Warnf("loading viewer definitions: %v", err)
		registry = &Registry{viewers: map[string]Viewer{}}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if err := registry.LoadFile(filepath.Join(home, ".config", "lensbot", "viewers.toml")); err != nil {
			debuglog.Warnf("loading user viewers: %v", err)
		}
	}

	return &Launcher{
		registry:      registry,
		viewers:       cfg.ImageViewers,
		defaultOpener: cfg.DefaultOpener,
		assets:        validation.NewPermissiveEndpointValidator(),
		lookPath:      exec.LookPath,
		start:         startDetached,
	}
}

// Viewer returns the first configured viewer that is supported here and
// installed, falling back to the default opener.
func (l *Launcher) Viewer() (string, error) {
	candidates := append(append([]string(nil), l.viewers...), l.defaultOpener)
	for _, name := range candidates {
		if name == "" || !l.registry.Supported(name) {
			continue
		}
		if _, err := l.lookPath(l.registry.Binary(name)); err == nil {
			return name, nil
		}
	}
	return "", ErrNoViewer
}

// Open shows assetURL in the selected viewer without waiting for it to
// exit.
func (l *Launcher) Open(assetURL string) error {
	if err := l.assets.ValidateAssetURL(assetURL); err != nil {
		return err
	}
	if !l.registry.IsImage(assetURL) {
		debuglog.Debugf("%s does not look like an image, opening anyway", assetURL)
	}

	name, err := l.Viewer()
	if err != nil {
		return err
	}
	cmd, err := l.registry.Command(name, assetURL)
	if err != nil {
		return err
	}
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
