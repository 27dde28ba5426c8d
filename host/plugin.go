package host

import (
	"bytes"
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	domainerrors "github.com/plugforge/plugforge/domain/errors"
	"github.com/plugforge/plugforge/domain/ports"
)

// pluginState tracks the plugin lifecycle: Uninitialized -> Initialized,
// with Execute as a self-loop on Initialized.
type pluginState int

const (
	stateUninitialized pluginState = iota
	stateInitialized
)

func (s pluginState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Plugin is the handle to one loaded plugin instance. It exclusively owns
// its execution environment and linear memory.
//
// A Plugin is not safe for concurrent calls from multiple goroutines without
// external serialization: the linear memory is a single mutable resource and
// the guest's allocator is not designed for concurrent mutation. Independent
// Plugin instances may run on separate goroutines freely.
type Plugin struct {
	instance ports.Instance
	memory   ports.Memory
	logger   *slog.Logger

	startFn   ports.Function
	initFn    ports.Function
	executeFn ports.Function
	allocFn   ports.Function
	collectFn ports.Function

	stdout *bytes.Buffer
	stderr *bytes.Buffer

	name        string
	fingerprint string
	exports     exportNames

	state    pluginState
	poisoned error
}

// Name returns the plugin's display name.
func (p *Plugin) Name() string {
	return p.name
}

// Fingerprint returns the content fingerprint of the plugin's module.
func (p *Plugin) Fingerprint() string {
	return p.fingerprint
}

// Init initializes the plugin with opaque configuration bytes. Valid only
// once, on an uninitialized plugin: calling Init a second time returns a
// StateError. Re-configuration is not supported; load a new plugin instead.
func (p *Plugin) Init(ctx context.Context, config []byte) error {
	if err := p.ensure("init", stateUninitialized); err != nil {
		return err
	}

	if p.startFn != nil {
		_, err := p.startFn.Call(ctx)
		p.drainOutput(p.exports.Start)
		if err != nil {
			return p.fault(err)
		}
	}

	ptr, err := p.writeBytes(ctx, config)
	if err != nil {
		return p.fault(err)
	}

	_, err = p.initFn.Call(ctx, uint64(ptr))
	p.drainOutput(p.exports.Init)
	if err != nil {
		return p.fault(err)
	}

	if err := p.collect(ctx); err != nil {
		return err
	}

	p.state = stateInitialized
	return nil
}

// Execute marshals key and payload into guest memory, invokes the guest
// transform export, reads back the result string, and triggers guest
// reclamation. Valid only on an initialized plugin.
func (p *Plugin) Execute(ctx context.Context, key, payload string) (string, error) {
	if err := p.ensure("execute", stateInitialized); err != nil {
		return "", err
	}

	keyPtr, err := p.writeBytes(ctx, []byte(key))
	if err != nil {
		return "", p.fault(err)
	}
	payloadPtr, err := p.writeBytes(ctx, []byte(payload))
	if err != nil {
		return "", p.fault(err)
	}

	results, err := p.executeFn.Call(ctx, uint64(keyPtr), uint64(payloadPtr))
	p.drainOutput(p.exports.Execute)
	if err != nil {
		// Reclamation is skipped: the environment may be in a trap state.
		return "", p.fault(err)
	}
	if len(results) == 0 {
		return "", &domainerrors.LinkError{
			Module: p.name,
			Err:    stdErrors.New("export " + p.exports.Execute + " returned no result"),
		}
	}

	out, decodeErr := p.readString(uint32(results[0]))

	// The host now owns its copy (or has failed to decode); either way the
	// guest may release this call's allocations.
	if err := p.collect(ctx); err != nil {
		return "", err
	}
	if decodeErr != nil {
		return "", decodeErr
	}
	return out, nil
}

// Close releases the plugin's execution environment.
func (p *Plugin) Close(ctx context.Context) error {
	return p.instance.Close(ctx)
}

// ensure verifies the lifecycle state for an operation.
func (p *Plugin) ensure(op string, want pluginState) error {
	if p.poisoned != nil {
		return &domainerrors.StateError{Op: op, State: "poisoned", Err: p.poisoned}
	}
	if p.state != want {
		return &domainerrors.StateError{Op: op, State: p.state.String()}
	}
	return nil
}

// fault records a trap, poisoning the instance against further use. Other
// errors pass through unchanged.
func (p *Plugin) fault(err error) error {
	var trap *domainerrors.TrapError
	if stdErrors.As(err, &trap) {
		p.poisoned = err
		p.logger.Error("plugin trapped", "plugin", p.name, "function", trap.Function, "error", trap.Err)
	}
	return err
}

// collect triggers the guest's reclamation entry point. The guest has no
// scheduler of its own; unreachable allocations are freed only when the host
// asks.
func (p *Plugin) collect(ctx context.Context) error {
	_, err := p.collectFn.Call(ctx)
	p.drainOutput(p.exports.Collect)
	if err != nil {
		return p.fault(err)
	}
	return nil
}

// drainOutput re-logs anything the guest wrote to its WASI stdio during the
// last call.
func (p *Plugin) drainOutput(function string) {
	if p.stdout.Len() > 0 {
		p.logger.Info("guest stdout",
			"plugin", p.name, "function", function,
			"output", strings.TrimSpace(p.stdout.String()))
		p.stdout.Reset()
	}
	if p.stderr.Len() > 0 {
		p.logger.Error("guest stderr",
			"plugin", p.name, "function", function,
			"output", strings.TrimSpace(p.stderr.String()))
		p.stderr.Reset()
	}
}
