package host

import "github.com/tapgate/plugins-sdk-go/pkg/plugin"

// PluginInstance represents one registered plugin to the pipeline. It
// carries the Plugin plus host-side routing attributes.
// NOTE: Instances are created by the Manager when a plugin process starts.
type PluginInstance struct {
	Plugin

	id       string
	required bool
}

func (pi *PluginInstance) ID() string { return pi.id }

// Required reports whether a failure of this plugin fails the pipeline.
func (pi *PluginInstance) Required() bool { return pi.required }

// SetRequired marks this plugin's decisions as mandatory for the pipeline.
func (pi *PluginInstance) SetRequired(required bool) { pi.required = required }

// CanHandle reports whether the plugin declared the stage at registration.
func (pi *PluginInstance) CanHandle(s plugin.Stage) bool {
	return pi.Capabilities().Supports(s)
}
