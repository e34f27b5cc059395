package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/matching"
	"github.com/getpactd/pactd/pkg/verifier"
)

// Driver verifies plugin-transport interactions. It implements
// verifier.PluginDriver.
type Driver struct {
	dir string
	log *slog.Logger

	mu      sync.Mutex
	plugins map[string]*livePlugin
}

type livePlugin struct {
	once sync.Once
	err  error

	manifest *Manifest
	cmd      *exec.Cmd
	conn     *grpc.ClientConn
	schema   *schema
}

// Option customizes a Driver.
type Option func(*Driver)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Driver) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDriver creates a driver that discovers plugins under dir.
func NewDriver(dir string, opts ...Option) *Driver {
	d := &Driver{
		dir:     dir,
		log:     logging.Nop(),
		plugins: make(map[string]*livePlugin),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Verify exercises one interaction over its plugin transport: the expected
// request body becomes the protobuf request, the decoded response is
// matched against the expected response body.
func (d *Driver) Verify(ctx context.Context, transport verifier.Transport, interaction *contract.Interaction) ([]matching.Mismatch, error) {
	p, err := d.acquire(ctx, interaction.Transport)
	if err != nil {
		return nil, err
	}

	method, err := p.schema.lookup(interaction.Request.Path)
	if err != nil {
		return nil, err
	}

	request := dynamicpb.NewMessage(method.Input())
	if interaction.Request.Body.IsPresent() {
		if err := protojson.Unmarshal(interaction.Request.Body.Content, request); err != nil {
			return nil, fmt.Errorf("request for %s: %w", interaction.Request.Path, err)
		}
	}

	reply := dynamicpb.NewMessage(method.Output())
	if err := p.conn.Invoke(ctx, interaction.Request.Path, request, reply); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", interaction.Request.Path, err)
	}

	raw, err := protojson.Marshal(reply)
	if err != nil {
		return nil, err
	}
	d.log.Debug("plugin call completed",
		"plugin", interaction.Transport,
		"method", interaction.Request.Path)

	// Status lives in the HTTP world; over a plugin transport only the
	// decoded payload is compared.
	expected := interaction.Response
	actual := contract.Response{
		Status: expected.Status,
		Body:   contract.NewBinaryBody(raw, "application/json"),
	}
	if expected.Body.IsPresent() && expected.Body.ContentType == "" {
		expected.Body.ContentType = "application/json"
	}
	return matching.MatchResponse(expected, actual), nil
}

// acquire returns the live plugin for a transport, loading its manifest,
// launching the process if needed, dialling its port, and compiling its
// schema on first use. d.mu covers only the map: launch and compilation
// run under the plugin's own once, so a slow plugin startup never blocks
// verification over other transports.
func (d *Driver) acquire(ctx context.Context, name string) (*livePlugin, error) {
	d.mu.Lock()
	p, ok := d.plugins[name]
	if !ok {
		p = &livePlugin{}
		d.plugins[name] = p
	}
	d.mu.Unlock()

	p.once.Do(func() { p.err = p.start(ctx, d, name) })
	if p.err != nil {
		// Drop the failed entry so a later call can retry.
		d.mu.Lock()
		if d.plugins[name] == p {
			delete(d.plugins, name)
		}
		d.mu.Unlock()
		return nil, p.err
	}
	return p, nil
}

func (p *livePlugin) start(ctx context.Context, d *Driver, name string) error {
	manifest, err := LoadManifest(d.dir, name)
	if err != nil {
		return err
	}

	address := manifest.Address
	var cmd *exec.Cmd
	if address == "" {
		address, cmd, err = manifest.launch(ctx)
		if err != nil {
			return err
		}
	}

	sch, err := compileSchema(ctx, manifest.ProtoPath())
	if err != nil {
		stopPlugin(cmd)
		return err
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		stopPlugin(cmd)
		return fmt.Errorf("plugin %q: dial %s: %w", name, address, err)
	}

	d.log.Info("plugin attached", "plugin", name, "address", address, "version", manifest.Version)
	p.manifest, p.cmd, p.conn, p.schema = manifest, cmd, conn, sch
	return nil
}

// Close tears down every plugin connection and stops every process the
// driver launched.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for name, p := range d.plugins {
		if p.conn != nil {
			if err := p.conn.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("plugin %q: %w", name, err)
			}
		}
		stopPlugin(p.cmd)
		delete(d.plugins, name)
	}
	return firstErr
}
