package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/tapgate/plugins-sdk-go/internal/host"
	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

// Plugin is the narrow view of a registered plugin the pipeline needs.
// *host.PluginInstance satisfies it.
type Plugin interface {
	ID() string
	HandleExchange(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error)
	CanHandle(s plugin.Stage) bool
	Required() bool
}

// Pipeline hosts registered plugins grouped by category.
// NOTE: Use NewPipeline to create a new Pipeline.
type Pipeline struct {
	mu      sync.RWMutex
	logger  hclog.Logger
	plugins map[Category][]Plugin
}

// NewPipeline constructs a Pipeline.
func NewPipeline(logger hclog.Logger) *Pipeline {
	return &Pipeline{
		logger:  logger.Named("pipeline"),
		plugins: make(map[Category][]Plugin),
	}
}

// Register places a plugin into the pipeline under the given category.
// Plugins within a category execute in registration order.
func (p *Pipeline) Register(cat Category, pl Plugin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plugins[cat] = append(p.plugins[cat], pl)
}

// Run sends the exchange through every category for its stage.
//
// It returns the final exchange (mutations from Content-category plugins
// threaded through) when every plugin continued, or the short-circuit
// decision of the first plugin that stopped the transaction. Exactly one of
// the two results is non-nil on success.
func (p *Pipeline) Run(ctx context.Context, ex *plugin.Exchange) (*plugin.Exchange, *plugin.Decision, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, cat := range OrderedCategories {
		props := PropsForCategory(cat)

		var active []Plugin
		for _, i := range p.plugins[cat] {
			if i.CanHandle(ex.Stage) {
				active = append(active, i)
			}
		}
		if len(active) == 0 {
			continue
		}

		switch props.Mode {
		case ExecSerial:
			for _, i := range active {
				dec, err := i.HandleExchange(ctx, ex)
				if err != nil {
					if fail := p.handleFailure(cat, props, i, ex.Stage, err); fail != nil {
						return nil, nil, fail
					}
					continue
				}

				if !dec.Continue {
					if !props.CanShortCircuit {
						p.logger.Warn("ignoring short-circuit from non-rejecting category",
							"category", cat, "plugin", i.ID(), "status", dec.Status)
						continue
					}
					return nil, dec, nil
				}

				if dec.Mutated != nil {
					if !props.CanMutate {
						p.logger.Warn("ignoring mutation from non-mutating category",
							"category", cat, "plugin", i.ID())
						continue
					}
					ex = dec.Mutated
				}
			}

		case ExecParallel:
			// Parallel plugins observe; their decisions cannot reject or
			// mutate, so mutation support here would be a configuration bug.
			if props.CanMutate {
				return nil, nil, fmt.Errorf(
					"parallel execution and exchange mutation are mutually exclusive: '%s'", cat)
			}

			var wg sync.WaitGroup
			errCh := make(chan error, len(active))

			for _, i := range active {
				wg.Add(1)
				go func(i Plugin) {
					defer wg.Done()
					if _, err := i.HandleExchange(ctx, ex); err != nil {
						if fail := p.handleFailure(cat, props, i, ex.Stage, err); fail != nil {
							errCh <- fail
						}
					}
				}(i)
			}

			wg.Wait()
			close(errCh)

			errs := make([]error, 0, len(errCh))
			for err := range errCh {
				errs = append(errs, err)
			}
			if len(errs) > 0 {
				return nil, nil, errors.Join(errs...)
			}

		default:
			return nil, nil, fmt.Errorf("unsupported execution mode for category '%s': %v", cat, props.Mode)
		}
	}

	return ex, nil, nil
}

// handleFailure applies the category policy to a plugin call failure. A
// non-nil return fails the whole pipeline.
func (p *Pipeline) handleFailure(cat Category, props CategoryProperties, i Plugin, stage plugin.Stage, err error) error {
	switch {
	case i.Required():
		return fmt.Errorf("%w: %w", host.ErrRequiredPluginFailed, err)
	case props.CanShortCircuit:
		return err
	default:
		p.logger.Error("plugin failed to decide exchange",
			"stage", stage,
			"category", cat,
			"mode", props.Mode,
			"plugin", i.ID(),
			"err", err,
		)
		return nil
	}
}
