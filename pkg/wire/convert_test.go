package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

func TestFromMetadata(t *testing.T) {
	meta := plugin.Metadata{
		Name:        "transform-plugin",
		Version:     "0.3.1",
		Description: "request body transformation",
		CommitHash:  "abc1234",
		BuildDate:   "2025-05-01T00:00:00Z",
	}
	caps := plugin.Capabilities{
		plugin.StageResponse: {FailOpen: true},
		plugin.StageRequest:  {},
	}

	d := FromMetadata(meta, caps)

	assert.Equal(t, "transform-plugin", d.Name)
	assert.Equal(t, "0.3.1", d.Version)
	require.Len(t, d.Stages, 2)
	// Stage order is deterministic regardless of map iteration order.
	assert.Equal(t, StageCapability{Stage: StageRequest}, d.Stages[0])
	assert.Equal(t, StageCapability{Stage: StageResponse, FailOpen: true}, d.Stages[1])
}

func TestDescriptorCapabilities(t *testing.T) {
	t.Run("SkipsUnrecognizedStages", func(t *testing.T) {
		d := &Descriptor{
			Name: "future-plugin",
			Stages: []StageCapability{
				{Stage: StageRequest, FailOpen: true},
				{Stage: 7},
			},
		}

		caps, err := d.Capabilities()
		require.NoError(t, err)
		assert.Equal(t, plugin.Capabilities{plugin.StageRequest: {FailOpen: true}}, caps)
	})

	t.Run("NoStages", func(t *testing.T) {
		d := &Descriptor{Name: "empty-plugin"}
		_, err := d.Capabilities()
		assert.ErrorIs(t, err, plugin.ErrConfiguration)
	})

	t.Run("OnlyUnrecognizedStages", func(t *testing.T) {
		d := &Descriptor{Name: "alien-plugin", Stages: []StageCapability{{Stage: 9}}}
		_, err := d.Capabilities()
		assert.ErrorIs(t, err, plugin.ErrConfiguration)
	})
}

func TestExchangeConversion(t *testing.T) {
	ex := &plugin.Exchange{
		Stage:  plugin.StageRequest,
		Method: "PUT",
		URL:    "https://example.com/items/1",
		Headers: plugin.Headers{
			{Key: "Content-Type", Values: []string{"application/json"}},
			{Key: "X-Trace", Values: []string{"a", "b"}},
		},
		Body:     []byte(`{"v":1}`),
		Metadata: map[string]string{"exchange_id": "xyz"},
	}

	env := FromExchange(ex)
	back, err := env.Exchange()
	require.NoError(t, err)
	assert.Equal(t, ex, back)
}

func TestEnvelopeExchangeUnknownStage(t *testing.T) {
	env := &Envelope{Stage: 5, Method: "GET", URL: "https://x"}
	_, err := env.Exchange()
	assert.ErrorIs(t, err, plugin.ErrProtocol)
}

func TestDecisionConversion(t *testing.T) {
	t.Run("Mutated", func(t *testing.T) {
		dec := plugin.Mutate(&plugin.Exchange{
			Stage:      plugin.StageResponse,
			StatusCode: 200,
			Headers:    plugin.Headers{{Key: "X-Cache", Values: []string{"HIT"}}},
		})

		back, err := FromDecision(dec).Decision()
		require.NoError(t, err)
		assert.Equal(t, dec, back)
	})

	t.Run("ShortCircuit", func(t *testing.T) {
		dec := plugin.ShortCircuit(503, []byte("unavailable")).WithHeader("Retry-After", "5")

		back, err := FromDecision(dec).Decision()
		require.NoError(t, err)
		assert.Equal(t, dec, back)
	})

	t.Run("MutatedUnknownStage", func(t *testing.T) {
		wd := &Decision{Continue: true, Mutated: &Envelope{Stage: 8}}
		_, err := wd.Decision()
		assert.ErrorIs(t, err, plugin.ErrProtocol)
	})
}
