package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapgate/plugins-sdk-go/internal/host"
	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

type fakePlugin struct {
	id       string
	stages   []plugin.Stage
	required bool
	calls    atomic.Int64
	handle   func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error)
}

func (f *fakePlugin) ID() string     { return f.id }
func (f *fakePlugin) Required() bool { return f.required }

func (f *fakePlugin) CanHandle(s plugin.Stage) bool {
	for _, st := range f.stages {
		if st == s {
			return true
		}
	}
	return false
}

func (f *fakePlugin) HandleExchange(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
	f.calls.Add(1)
	return f.handle(ctx, ex)
}

func requestExchange() *plugin.Exchange {
	return &plugin.Exchange{
		Stage:  plugin.StageRequest,
		Method: "GET",
		URL:    "https://example.com/api",
	}
}

func passing(id string) *fakePlugin {
	return &fakePlugin{
		id:     id,
		stages: []plugin.Stage{plugin.StageRequest},
		handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
			return plugin.Pass(), nil
		},
	}
}

func TestRunMutationThreading(t *testing.T) {
	p := NewPipeline(hclog.NewNullLogger())

	first := &fakePlugin{
		id:     "add-header",
		stages: []plugin.Stage{plugin.StageRequest},
		handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
			m := ex.Clone()
			m.Headers.Set("X-First", "1")
			return plugin.Mutate(m), nil
		},
	}
	second := &fakePlugin{
		id:     "check-header",
		stages: []plugin.Stage{plugin.StageRequest},
		handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
			// Must observe the first plugin's mutation.
			if ex.Headers.Get("X-First") != "1" {
				return nil, errors.New("mutation not threaded")
			}
			m := ex.Clone()
			m.Headers.Set("X-Second", "2")
			return plugin.Mutate(m), nil
		},
	}
	p.Register(CategoryContent, first)
	p.Register(CategoryContent, second)

	final, dec, err := p.Run(context.Background(), requestExchange())
	require.NoError(t, err)
	require.Nil(t, dec)
	require.NotNil(t, final)
	assert.Equal(t, "1", final.Headers.Get("X-First"))
	assert.Equal(t, "2", final.Headers.Get("X-Second"))
}

func TestRunShortCircuitStopsPipeline(t *testing.T) {
	p := NewPipeline(hclog.NewNullLogger())

	rejecting := &fakePlugin{
		id:     "auth",
		stages: []plugin.Stage{plugin.StageRequest},
		handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
			return plugin.ShortCircuit(401, []byte("denied")), nil
		},
	}
	downstream := passing("transform")
	p.Register(CategoryAuthN, rejecting)
	p.Register(CategoryContent, downstream)

	final, dec, err := p.Run(context.Background(), requestExchange())
	require.NoError(t, err)
	assert.Nil(t, final)
	require.NotNil(t, dec)
	assert.Equal(t, 401, dec.Status)
	assert.Equal(t, int64(0), downstream.calls.Load(), "short-circuit must stop downstream plugins")
}

func TestRunIgnoresDisallowedDecisions(t *testing.T) {
	t.Run("ShortCircuitFromNonRejectingCategory", func(t *testing.T) {
		p := NewPipeline(hclog.NewNullLogger())
		// Unknown categories fall back to serial with no rejection rights.
		rogue := &fakePlugin{
			id:     "rogue",
			stages: []plugin.Stage{plugin.StageRequest},
			handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
				return plugin.ShortCircuit(418, nil), nil
			},
		}
		p.Register(Category("custom"), rogue)

		final, dec, err := p.Run(context.Background(), requestExchange())
		require.NoError(t, err)
		assert.Nil(t, dec)
		assert.NotNil(t, final)
	})

	t.Run("MutationFromNonMutatingCategory", func(t *testing.T) {
		p := NewPipeline(hclog.NewNullLogger())
		mutating := &fakePlugin{
			id:     "sneaky",
			stages: []plugin.Stage{plugin.StageRequest},
			handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
				m := ex.Clone()
				m.Headers.Set("X-Sneaky", "1")
				return plugin.Mutate(m), nil
			},
		}
		p.Register(CategoryAuthN, mutating)

		final, dec, err := p.Run(context.Background(), requestExchange())
		require.NoError(t, err)
		require.Nil(t, dec)
		require.NotNil(t, final)
		assert.Empty(t, final.Headers.Get("X-Sneaky"))
	})
}

func TestRunFailurePolicy(t *testing.T) {
	failing := func(id string, required bool) *fakePlugin {
		return &fakePlugin{
			id:       id,
			stages:   []plugin.Stage{plugin.StageRequest},
			required: required,
			handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
				return nil, errors.New("socket hang up")
			},
		}
	}

	t.Run("RequiredPluginFails", func(t *testing.T) {
		p := NewPipeline(hclog.NewNullLogger())
		p.Register(CategoryObservability, failing("metrics", true))

		_, _, err := p.Run(context.Background(), requestExchange())
		assert.ErrorIs(t, err, host.ErrRequiredPluginFailed)
	})

	t.Run("OptionalRejectingPluginFails", func(t *testing.T) {
		p := NewPipeline(hclog.NewNullLogger())
		p.Register(CategoryAuthN, failing("auth", false))

		_, _, err := p.Run(context.Background(), requestExchange())
		assert.Error(t, err)
		assert.NotErrorIs(t, err, host.ErrRequiredPluginFailed)
	})

	t.Run("OptionalObserverFailureTolerated", func(t *testing.T) {
		p := NewPipeline(hclog.NewNullLogger())
		p.Register(CategoryObservability, failing("logger", false))
		downstream := passing("auth")
		p.Register(CategoryAuthN, downstream)

		final, dec, err := p.Run(context.Background(), requestExchange())
		require.NoError(t, err)
		assert.Nil(t, dec)
		assert.NotNil(t, final)
		assert.Equal(t, int64(1), downstream.calls.Load())
	})
}

func TestRunParallelObservers(t *testing.T) {
	p := NewPipeline(hclog.NewNullLogger())

	const n = 8
	observers := make([]*fakePlugin, n)
	for i := range observers {
		observers[i] = passing("observer")
		p.Register(CategoryObservability, observers[i])
	}

	final, dec, err := p.Run(context.Background(), requestExchange())
	require.NoError(t, err)
	assert.Nil(t, dec)
	assert.NotNil(t, final)
	for _, o := range observers {
		assert.Equal(t, int64(1), o.calls.Load())
	}
}

func TestRunSkipsPluginsForOtherStage(t *testing.T) {
	p := NewPipeline(hclog.NewNullLogger())

	responseOnly := &fakePlugin{
		id:     "response-only",
		stages: []plugin.Stage{plugin.StageResponse},
		handle: func(ctx context.Context, ex *plugin.Exchange) (*plugin.Decision, error) {
			return plugin.Pass(), nil
		},
	}
	p.Register(CategoryContent, responseOnly)

	final, _, err := p.Run(context.Background(), requestExchange())
	require.NoError(t, err)
	assert.NotNil(t, final)
	assert.Equal(t, int64(0), responseOnly.calls.Load())
}
