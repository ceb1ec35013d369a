package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	t.Run("OrderAndMultiValue", func(t *testing.T) {
		var h Headers
		h.Add("Accept", "text/html")
		h.Add("X-Forwarded-For", "10.0.0.1")
		h.Add("X-Forwarded-For", "10.0.0.2")
		h.Add("Accept", "application/json")

		require.Len(t, h, 2)
		assert.Equal(t, "Accept", h[0].Key)
		assert.Equal(t, []string{"text/html", "application/json"}, h[0].Values)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, h.Values("X-Forwarded-For"))
	})

	t.Run("CaseInsensitiveLookup", func(t *testing.T) {
		var h Headers
		h.Set("Content-Type", "application/json")

		assert.Equal(t, "application/json", h.Get("content-type"))
		assert.Equal(t, "application/json", h.Get("CONTENT-TYPE"))
		assert.Empty(t, h.Get("Content-Length"))
	})

	t.Run("SetReplaces", func(t *testing.T) {
		var h Headers
		h.Add("X-Token", "a")
		h.Add("X-Token", "b")
		h.Set("x-token", "c")

		assert.Equal(t, []string{"c"}, h.Values("X-Token"))
	})

	t.Run("Del", func(t *testing.T) {
		var h Headers
		h.Add("A", "1")
		h.Add("B", "2")
		h.Del("a")

		require.Len(t, h, 1)
		assert.Equal(t, "B", h[0].Key)
	})

	t.Run("CloneIsDeep", func(t *testing.T) {
		var h Headers
		h.Add("A", "1")

		clone := h.Clone()
		clone.Set("A", "changed")

		assert.Equal(t, "1", h.Get("A"))
		assert.Equal(t, "changed", clone.Get("A"))
	})
}

func TestExchangeValidate(t *testing.T) {
	t.Run("ValidRequest", func(t *testing.T) {
		ex := &Exchange{Stage: StageRequest, Method: "GET", URL: "https://example.com/api"}
		assert.NoError(t, ex.Validate())
	})

	t.Run("RequestMissingMethod", func(t *testing.T) {
		ex := &Exchange{Stage: StageRequest, URL: "https://example.com/api"}
		assert.ErrorIs(t, ex.Validate(), ErrProtocol)
	})

	t.Run("RequestWithStatusCode", func(t *testing.T) {
		ex := &Exchange{Stage: StageRequest, Method: "GET", URL: "https://example.com", StatusCode: 200}
		assert.ErrorIs(t, ex.Validate(), ErrProtocol)
	})

	t.Run("ValidResponse", func(t *testing.T) {
		ex := &Exchange{Stage: StageResponse, StatusCode: 204}
		assert.NoError(t, ex.Validate())
	})

	t.Run("ResponseMissingStatusCode", func(t *testing.T) {
		ex := &Exchange{Stage: StageResponse}
		assert.ErrorIs(t, ex.Validate(), ErrProtocol)
	})

	t.Run("ResponseWithRequestFields", func(t *testing.T) {
		ex := &Exchange{Stage: StageResponse, StatusCode: 200, Method: "GET"}
		assert.ErrorIs(t, ex.Validate(), ErrProtocol)
	})

	t.Run("UnknownStage", func(t *testing.T) {
		ex := &Exchange{Stage: StageUnknown}
		assert.ErrorIs(t, ex.Validate(), ErrProtocol)
	})
}

func TestExchangeClone(t *testing.T) {
	ex := &Exchange{
		Stage:    StageRequest,
		Method:   "POST",
		URL:      "https://example.com",
		Headers:  Headers{{Key: "A", Values: []string{"1"}}},
		Body:     []byte("payload"),
		Metadata: map[string]string{"exchange_id": "abc"},
	}

	clone := ex.Clone()
	clone.Headers.Set("A", "2")
	clone.Body[0] = 'x'
	clone.Metadata["exchange_id"] = "def"

	assert.Equal(t, "1", ex.Headers.Get("A"))
	assert.Equal(t, byte('p'), ex.Body[0])
	assert.Equal(t, "abc", ex.Metadata["exchange_id"])
}

func TestDecisionValidate(t *testing.T) {
	t.Run("Pass", func(t *testing.T) {
		assert.NoError(t, Pass().Validate())
	})

	t.Run("Mutate", func(t *testing.T) {
		dec := Mutate(&Exchange{Stage: StageRequest, Method: "GET", URL: "https://x"})
		assert.NoError(t, dec.Validate())
	})

	t.Run("ShortCircuit", func(t *testing.T) {
		dec := ShortCircuit(401, []byte(`{"error":"nope"}`)).WithHeader("WWW-Authenticate", "Bearer")
		assert.NoError(t, dec.Validate())
	})

	t.Run("ShortCircuitStatusBounds", func(t *testing.T) {
		for _, status := range []int{0, 99, 600, -1} {
			assert.ErrorIs(t, ShortCircuit(status, nil).Validate(), ErrProtocol, "status %d", status)
		}
		for _, status := range []int{100, 200, 401, 599} {
			assert.NoError(t, ShortCircuit(status, nil).Validate(), "status %d", status)
		}
	})

	t.Run("ContinueWithShortCircuitFields", func(t *testing.T) {
		dec := &Decision{Continue: true, Status: 500}
		assert.ErrorIs(t, dec.Validate(), ErrProtocol)
	})

	t.Run("ShortCircuitWithMutation", func(t *testing.T) {
		dec := &Decision{Status: 400, Mutated: &Exchange{Stage: StageRequest}}
		assert.ErrorIs(t, dec.Validate(), ErrProtocol)
	})
}

func TestCapabilitiesValidate(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.ErrorIs(t, Capabilities{}.Validate(), ErrConfiguration)
	})

	t.Run("UnknownStage", func(t *testing.T) {
		caps := Capabilities{Stage(42): {}}
		assert.ErrorIs(t, caps.Validate(), ErrConfiguration)
	})

	t.Run("Valid", func(t *testing.T) {
		caps := Capabilities{StageRequest: {}, StageResponse: {FailOpen: true}}
		require.NoError(t, caps.Validate())
		assert.True(t, caps.Supports(StageRequest))
		assert.False(t, Capabilities{StageResponse: {}}.Supports(StageRequest))
	})
}

func TestMetadataValidate(t *testing.T) {
	assert.ErrorIs(t, Metadata{Version: "1.0.0"}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Metadata{Name: "p"}.Validate(), ErrConfiguration)
	assert.NoError(t, Metadata{Name: "p", Version: "1.0.0"}.Validate())
}
