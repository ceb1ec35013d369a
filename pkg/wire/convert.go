package wire

import (
	"fmt"
	"slices"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

// FromMetadata builds the wire descriptor from a plugin's metadata and
// capabilities. Stage order is made deterministic so Describe responses are
// byte-stable for a given build.
func FromMetadata(meta plugin.Metadata, caps plugin.Capabilities) *Descriptor {
	d := &Descriptor{
		Name:        meta.Name,
		Version:     meta.Version,
		Description: meta.Description,
		CommitHash:  meta.CommitHash,
		BuildDate:   meta.BuildDate,
	}
	stages := make([]plugin.Stage, 0, len(caps))
	for s := range caps {
		stages = append(stages, s)
	}
	slices.Sort(stages)
	for _, s := range stages {
		d.Stages = append(d.Stages, StageCapability{
			Stage:    uint64(s),
			FailOpen: caps[s].FailOpen,
		})
	}
	return d
}

// Metadata extracts the plugin identity from a descriptor.
func (d *Descriptor) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        d.Name,
		Version:     d.Version,
		Description: d.Description,
		CommitHash:  d.CommitHash,
		BuildDate:   d.BuildDate,
	}
}

// Capabilities extracts the declared stage set. A descriptor that declares
// no recognized stages is invalid and must fail registration.
func (d *Descriptor) Capabilities() (plugin.Capabilities, error) {
	caps := make(plugin.Capabilities, len(d.Stages))
	for _, sc := range d.Stages {
		s := plugin.Stage(sc.Stage)
		if !s.Valid() {
			// A stage this build doesn't know about: skip it rather than
			// reject, so newer plugins still register their known stages.
			continue
		}
		caps[s] = plugin.Policy{FailOpen: sc.FailOpen}
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("%w: descriptor %q declares no supported stages", plugin.ErrConfiguration, d.Name)
	}
	return caps, nil
}

// FromExchange converts a domain exchange to its wire form.
func FromExchange(ex *plugin.Exchange) *Envelope {
	if ex == nil {
		return nil
	}
	env := &Envelope{
		Stage:      uint64(ex.Stage),
		Method:     ex.Method,
		URL:        ex.URL,
		StatusCode: int32(ex.StatusCode),
		Body:       ex.Body,
	}
	for _, h := range ex.Headers {
		env.Headers = append(env.Headers, Header{Key: h.Key, Values: h.Values})
	}
	for _, k := range sortedKeys(ex.Metadata) {
		env.Metadata = append(env.Metadata, MetadataEntry{Key: k, Value: ex.Metadata[k]})
	}
	return env
}

// Exchange converts a wire envelope to its domain form. The stage must be
// one this build recognizes; structural validation beyond that is the
// runtime's job.
func (e *Envelope) Exchange() (*plugin.Exchange, error) {
	s := plugin.Stage(e.Stage)
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unsupported %s", plugin.ErrProtocol, stageName(e.Stage))
	}
	ex := &plugin.Exchange{
		Stage:      s,
		Method:     e.Method,
		URL:        e.URL,
		StatusCode: int(e.StatusCode),
		Body:       e.Body,
	}
	for _, h := range e.Headers {
		ex.Headers = append(ex.Headers, plugin.Header{Key: h.Key, Values: h.Values})
	}
	if len(e.Metadata) > 0 {
		ex.Metadata = make(map[string]string, len(e.Metadata))
		for _, m := range e.Metadata {
			ex.Metadata[m.Key] = m.Value
		}
	}
	return ex, nil
}

// FromDecision converts a domain decision to its wire form.
func FromDecision(dec *plugin.Decision) *Decision {
	if dec == nil {
		return nil
	}
	out := &Decision{
		Continue:   dec.Continue,
		Mutated:    FromExchange(dec.Mutated),
		StatusCode: int32(dec.Status),
		Body:       dec.Body,
	}
	for _, h := range dec.Headers {
		out.Headers = append(out.Headers, Header{Key: h.Key, Values: h.Values})
	}
	return out
}

// Decision converts a wire decision to its domain form.
func (d *Decision) Decision() (*plugin.Decision, error) {
	out := &plugin.Decision{
		Continue: d.Continue,
		Status:   int(d.StatusCode),
		Body:     d.Body,
	}
	if d.Mutated != nil {
		ex, err := d.Mutated.Exchange()
		if err != nil {
			return nil, err
		}
		out.Mutated = ex
	}
	for _, h := range d.Headers {
		out.Headers = append(out.Headers, plugin.Header{Key: h.Key, Values: h.Values})
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
