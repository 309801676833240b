package status

import "time"

// Phase represents the state of a plugin task as last observed
type Phase string

const (
	// PhasePending means the task has not completed a tick yet
	PhasePending Phase = "Pending"

	// PhaseSyncing means a tick is currently in progress
	PhaseSyncing Phase = "Syncing"

	// PhaseComplete means the last tick finished without error
	PhaseComplete Phase = "Complete"

	// PhaseFailed means the last tick failed
	PhaseFailed Phase = "Failed"
)

// PluginStatus is the observable state of one plugin task
type PluginStatus struct {
	// Name of the plugin
	Name string `json:"name" yaml:"name"`

	// TemplateSource is the template the plugin renders
	TemplateSource string `json:"templateSource" yaml:"templateSource"`

	// Destination is the file the plugin writes
	Destination string `json:"destination" yaml:"destination"`

	// Interval is the sleep between ticks
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`

	// Phase is the current phase
	Phase Phase `json:"phase" yaml:"phase"`

	// Message provides additional information about the last tick
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// LastOutcome is the outcome of the last finished tick
	LastOutcome string `json:"lastOutcome,omitempty" yaml:"lastOutcome,omitempty"`

	// LastReason is the change detector reason of the last tick that reached a decision
	LastReason string `json:"lastReason,omitempty" yaml:"lastReason,omitempty"`

	// LastTickID identifies the last tick in logs and traces
	LastTickID string `json:"lastTickId,omitempty" yaml:"lastTickId,omitempty"`

	// LastTick is the time the last tick finished
	LastTick *time.Time `json:"lastTick,omitempty" yaml:"lastTick,omitempty"`

	// LastRender is the time output was last written
	LastRender *time.Time `json:"lastRender,omitempty" yaml:"lastRender,omitempty"`

	// LastReload is the time the reload command last finished
	LastReload *time.Time `json:"lastReload,omitempty" yaml:"lastReload,omitempty"`

	// LastReloadResult is "success" or "failure"
	LastReloadResult string `json:"lastReloadResult,omitempty" yaml:"lastReloadResult,omitempty"`

	// TickCount is the number of finished ticks
	TickCount int64 `json:"tickCount" yaml:"tickCount"`

	// RenderCount is the number of ticks that wrote output
	RenderCount int64 `json:"renderCount" yaml:"renderCount"`

	// ConsecutiveFailures is the number of failed ticks since the last successful one
	ConsecutiveFailures int `json:"consecutiveFailures" yaml:"consecutiveFailures"`
}
