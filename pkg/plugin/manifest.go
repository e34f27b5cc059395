package plugin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Manifest describes one installed plugin: <dir>/<name>/plugin.json.
type Manifest struct {
	// Name is the plugin (and transport) name.
	Name string `json:"name"`

	Version string `json:"version"`

	// Address is where the plugin's gRPC endpoint listens. Empty means the
	// plugin is not running and must be launched via EntryPoint.
	Address string `json:"address,omitempty"`

	// EntryPoint is the executable that starts the plugin. On startup the
	// plugin prints a JSON line {"port": N} announcing its gRPC port.
	EntryPoint string `json:"entryPoint,omitempty"`

	// ProtoFile is the plugin's protocol schema, relative to the manifest.
	ProtoFile string `json:"protoFile"`

	dir string
}

// LoadManifest reads the manifest for a named plugin under dir.
func LoadManifest(dir, name string) (*Manifest, error) {
	path := filepath.Join(dir, name, "plugin.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", name, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("plugin %q: manifest: %w", name, err)
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.ProtoFile == "" {
		return nil, fmt.Errorf("plugin %q: manifest names no protoFile", name)
	}
	m.dir = filepath.Join(dir, name)
	return &m, nil
}

// ProtoPath resolves the schema path against the plugin directory.
func (m *Manifest) ProtoPath() string {
	if filepath.IsAbs(m.ProtoFile) {
		return m.ProtoFile
	}
	return filepath.Join(m.dir, m.ProtoFile)
}

// startupAnnouncement is the line a launched plugin prints once listening.
type startupAnnouncement struct {
	Port int `json:"port"`
}

// launch starts the plugin process and waits for it to announce its port.
// The returned cmd stays alive until stopPlugin; the caller owns it.
func (m *Manifest) launch(ctx context.Context) (string, *exec.Cmd, error) {
	if m.EntryPoint == "" {
		return "", nil, fmt.Errorf("plugin %q: no address and no entry point", m.Name)
	}

	cmd := exec.Command(m.EntryPoint)
	cmd.Dir = m.dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, err
	}
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("plugin %q: start %s: %w", m.Name, m.EntryPoint, err)
	}

	// The scanner keeps draining stdout after the announcement so the pipe
	// never backs up against a chatty plugin.
	announced := make(chan startupAnnouncement, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			var a startupAnnouncement
			if err := json.Unmarshal(scanner.Bytes(), &a); err == nil && a.Port > 0 {
				select {
				case announced <- a:
				default:
				}
			}
		}
	}()

	select {
	case a := <-announced:
		return fmt.Sprintf("127.0.0.1:%d", a.Port), cmd, nil
	case <-time.After(10 * time.Second):
		stopPlugin(cmd)
		return "", nil, fmt.Errorf("plugin %q: no port announcement within 10s", m.Name)
	case <-ctx.Done():
		stopPlugin(cmd)
		return "", nil, ctx.Err()
	}
}

// stopPlugin kills a launched plugin process and reaps it. Safe on nil.
func stopPlugin(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}
