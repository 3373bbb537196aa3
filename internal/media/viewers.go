package media

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"runtime"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed viewers.toml
var viewersTOML []byte

// Viewer defines how an image viewer is invoked. Command defaults to the
// viewer's name; the URL is appended after Args.
type Viewer struct {
	Description string   `toml:"description"`
	Platforms   []string `toml:"platforms"`
	Command     string   `toml:"command,omitempty"`
	Args        []string `toml:"args,omitempty"`
}

// ImageRules decide whether a URL points at an image.
type ImageRules struct {
	Extensions []string `toml:"extensions"`
	Hosts      []string `toml:"hosts"`
}

type viewersFile struct {
	Image   ImageRules        `toml:"image"`
	Viewers map[string]Viewer `toml:"viewers"`
}

// Registry holds viewer definitions for the current platform.
type Registry struct {
	viewers map[string]Viewer
	image   ImageRules
	goos    string
}

// NewRegistry loads the built-in definitions.
func NewRegistry() (*Registry, error) {
	var file viewersFile
	if err := toml.Unmarshal(viewersTOML, &file); err != nil {
		return nil, fmt.Errorf("parsing viewers.toml: %w", err)
	}
	return &Registry{viewers: file.Viewers, image: file.Image, goos: runtime.GOOS}, nil
}

// LoadFile merges user definitions from path over the built-ins. A
// missing file is not an error.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var file viewersFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for name, v := range file.Viewers {
		r.viewers[name] = v
	}
	r.image.Extensions = append(r.image.Extensions, file.Image.Extensions...)
	r.image.Hosts = append(r.image.Hosts, file.Image.Hosts...)
	return nil
}

// Binary returns the executable a viewer runs.
func (r *Registry) Binary(name string) string {
	if v, ok := r.viewers[name]; ok && v.Command != "" {
		return v.Command
	}
	return name
}

// Supported reports whether name may run on this platform. Viewers
// without a definition are assumed portable.
func (r *Registry) Supported(name string) bool {
	v, ok := r.viewers[name]
	return !ok || slices.Contains(v.Platforms, r.goos)
}

// Command builds the invocation of name for assetURL. "%u" in an argument
// is replaced by the URL.
func (r *Registry) Command(name, assetURL string) (*exec.Cmd, error) {
	if !r.Supported(name) {
		return nil, fmt.Errorf("%s not supported on %s", name, r.goos)
	}
	v := r.viewers[name]
	args := make([]string, 0, len(v.Args)+1)
	for _, a := range v.Args {
		args = append(args, strings.ReplaceAll(a, "%u", assetURL))
	}
	args = append(args, assetURL)
	return exec.Command(r.Binary(name), args...), nil
}

// IsImage reports whether rawURL looks like an image, by extension or by
// a known image CDN host.
func (r *Registry) IsImage(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if slices.Contains(r.image.Hosts, strings.ToLower(u.Hostname())) {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	return ext != "" && slices.Contains(r.image.Extensions, ext)
}
