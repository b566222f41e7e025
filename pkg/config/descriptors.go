package config

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/lifecycle/pkg/component"
)

// CallbackFactory supplies the lifecycle hooks for a declared component.
type CallbackFactory func(spec ComponentSpec) (component.Callbacks, error)

// Descriptor converts the component spec into a component descriptor. Long-form
// dependencies come first, then Requires, then Uses. A nil factory yields
// a descriptor without callbacks.
func (s ComponentSpec) Descriptor(factory CallbackFactory) (component.Descriptor, error) {
	priority, err := component.ParsePriority(s.Priority)
	if err != nil {
		return component.Descriptor{}, fmt.Errorf("component %s: %w", s.Name, err)
	}

	deps := make([]component.Dependency, 0, len(s.Dependencies)+len(s.Requires)+len(s.Uses))
	for _, d := range s.Dependencies {
		deps = append(deps, component.Dependency{Name: d.Name, Optional: d.Optional})
	}
	for _, name := range s.Requires {
		deps = append(deps, component.Requires(name))
	}
	for _, name := range s.Uses {
		deps = append(deps, component.Uses(name))
	}

	desc := component.Descriptor{
		Name:         s.Name,
		Description:  s.Description,
		Version:      s.Version,
		Priority:     priority,
		Dependencies: deps,
		PrivateData:  s,
	}

	if factory != nil {
		cb, err := factory(s)
		if err != nil {
			return component.Descriptor{}, fmt.Errorf("component %s: %w", s.Name, err)
		}
		desc.Callbacks = cb
	}

	return desc, nil
}

// Descriptors converts every component in manifest order.
func (m *Manifest) Descriptors(factory CallbackFactory) ([]component.Descriptor, error) {
	out := make([]component.Descriptor, 0, len(m.Components))
	for _, spec := range m.Components {
		d, err := spec.Descriptor(factory)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SimulatedCallbacks returns a factory whose callbacks follow each
// component's simulate block: they sleep for the configured delay, honour
// context cancellation and fail with a coded error on the listed operations.
func SimulatedCallbacks(logger *zerolog.Logger) CallbackFactory {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("module", "simulator").Logger()
	}

	return func(spec ComponentSpec) (component.Callbacks, error) {
		delay, err := spec.Simulate.DelayDuration()
		if err != nil {
			return component.Callbacks{}, err
		}

		hook := func(op component.Operation) component.Callback {
			fail := spec.Simulate.Fails(string(op))
			return func(ctx context.Context) error {
				if delay > 0 {
					t := time.NewTimer(delay)
					select {
					case <-ctx.Done():
						t.Stop()
						return ctx.Err()
					case <-t.C:
					}
				}

				l.Debug().
					Str("component", spec.Name).
					Str("operation", string(op)).
					Bool("fail", fail).
					Msg("simulated callback")

				if fail {
					code := 1
					if spec.Simulate.Code != 0 {
						code = spec.Simulate.Code
					}
					return component.NewCallbackError(code, fmt.Sprintf("simulated %s failure", op))
				}
				return nil
			}
		}

		return component.Callbacks{
			Init:    hook(component.OperationInit),
			Deinit:  hook(component.OperationDeinit),
			Start:   hook(component.OperationStart),
			Stop:    hook(component.OperationStop),
			Suspend: hook(component.OperationSuspend),
			Resume:  hook(component.OperationResume),
		}, nil
	}
}
