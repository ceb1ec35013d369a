package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/google/uuid"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

// MetadataExchangeID is the envelope metadata key carrying the
// per-transaction correlation ID the host stamps on both stages.
const MetadataExchangeID = "exchange_id"

// Middleware returns a chi-compatible middleware that routes every request
// through the plugin pipeline at the request stage, and the handler's
// response through it at the response stage. The same exchange ID is stamped
// on both envelopes so plugins can correlate the two calls.
func (p *Pipeline) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			exchangeID := uuid.NewString()

			reqEx, err := requestToExchange(r, exchangeID)
			if err != nil {
				p.logger.Error("failed to build request exchange", "error", err)
				http.Error(w, "Failed to process request", http.StatusInternalServerError)
				return
			}

			finalReq, shortCircuit, err := p.Run(ctx, reqEx)
			if err != nil {
				p.logger.Error("pipeline request stage failed", "error", err)
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				return
			}
			if shortCircuit != nil {
				writeDecision(w, shortCircuit)
				return
			}

			if err := applyRequestMutations(r, finalReq); err != nil {
				p.logger.Error("failed to apply request mutations", "error", err)
				http.Error(w, "Failed to process request", http.StatusInternalServerError)
				return
			}

			recorder := newResponseRecorder()
			next.ServeHTTP(recorder, r)

			respEx := responseToExchange(recorder, exchangeID)
			finalResp, shortCircuit, err := p.Run(ctx, respEx)
			if err != nil {
				p.logger.Error("pipeline response stage failed", "error", err)
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				return
			}
			if shortCircuit != nil {
				writeDecision(w, shortCircuit)
				return
			}

			writeExchange(w, finalResp)
		})
	}
}

// requestToExchange converts *http.Request into a request-stage exchange.
// Header keys are sorted for a deterministic envelope; value order within a
// key is preserved as received.
func requestToExchange(r *http.Request, exchangeID string) (*plugin.Exchange, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body)) // Restore body for downstream handlers.

	return &plugin.Exchange{
		Stage:    plugin.StageRequest,
		Method:   r.Method,
		URL:      r.URL.String(),
		Headers:  headersFromHTTP(r.Header),
		Body:     body,
		Metadata: map[string]string{MetadataExchangeID: exchangeID},
	}, nil
}

// applyRequestMutations rewrites the request the downstream handler sees
// with the pipeline's final exchange: method, URL, headers and body.
func applyRequestMutations(r *http.Request, ex *plugin.Exchange) error {
	u, err := url.Parse(ex.URL)
	if err != nil {
		return fmt.Errorf("mutated url %q: %w", ex.URL, err)
	}
	r.Method = ex.Method
	r.URL = u

	h := make(http.Header, len(ex.Headers))
	for _, f := range ex.Headers {
		for _, v := range f.Values {
			h.Add(f.Key, v)
		}
	}
	r.Header = h
	r.Body = io.NopCloser(bytes.NewReader(ex.Body))
	r.ContentLength = int64(len(ex.Body))
	return nil
}

func responseToExchange(rec *responseRecorder, exchangeID string) *plugin.Exchange {
	return &plugin.Exchange{
		Stage:      plugin.StageResponse,
		StatusCode: rec.statusCode,
		Headers:    headersFromHTTP(rec.header),
		Body:       rec.body.Bytes(),
		Metadata:   map[string]string{MetadataExchangeID: exchangeID},
	}
}

// writeDecision writes a short-circuit decision as the client response.
func writeDecision(w http.ResponseWriter, dec *plugin.Decision) {
	for _, f := range dec.Headers {
		for _, v := range f.Values {
			w.Header().Add(f.Key, v)
		}
	}
	w.WriteHeader(dec.Status)
	if len(dec.Body) > 0 {
		_, _ = w.Write(dec.Body)
	}
}

// writeExchange writes a response-stage exchange as the client response.
func writeExchange(w http.ResponseWriter, ex *plugin.Exchange) {
	for _, f := range ex.Headers {
		for _, v := range f.Values {
			w.Header().Add(f.Key, v)
		}
	}
	w.WriteHeader(ex.StatusCode)
	if len(ex.Body) > 0 {
		_, _ = w.Write(ex.Body)
	}
}

// headersFromHTTP converts http.Header (an unordered map) into the ordered
// wire form; keys are sorted so repeated conversions agree.
func headersFromHTTP(h http.Header) plugin.Headers {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(plugin.Headers, 0, len(keys))
	for _, k := range keys {
		out = append(out, plugin.Header{Key: k, Values: slices.Clone(h[k])})
	}
	return out
}

// responseRecorder buffers the downstream handler's response so the
// response-stage pipeline can inspect or replace it before anything reaches
// the client.
type responseRecorder struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		header:     make(http.Header),
		statusCode: http.StatusOK,
	}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(code int) { r.statusCode = code }

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}
