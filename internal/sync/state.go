package sync

// Outcome is the result of a single tick
type Outcome string

// Tick outcomes
const (
	// OutcomeSkip means nothing changed and no output was written
	OutcomeSkip Outcome = "Skip"

	// OutcomeRender means output was written and the reload command started
	OutcomeRender Outcome = "Render"

	// OutcomeFetchFailed means the plugin could not fetch data
	OutcomeFetchFailed Outcome = "FetchFailed"

	// OutcomeRenderFailed means the template could not be loaded or rendered
	OutcomeRenderFailed Outcome = "RenderFailed"

	// OutcomeWriteFailed means the rendered output could not be written
	OutcomeWriteFailed Outcome = "WriteFailed"

	// OutcomeCheckFailed means the check command rejected the rendered output
	OutcomeCheckFailed Outcome = "CheckFailed"
)

// Failed reports whether the outcome is a failure
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeSkip, OutcomeRender:
		return false
	default:
		return true
	}
}

// State is the change detection state of one plugin task. It is owned by the
// task and never shared; it is reset when the process restarts.
type State struct {
	// LastData is the most recently fetched data, nil before the first successful fetch.
	// Fetched data is never nil once normalized, so nil unambiguously means "none".
	LastData map[string]any

	// LastTemplate is the template text used by the last successful render, nil before it
	LastTemplate *string
}

// Clone returns a copy of the state. Data values are shared.
func (s State) Clone() State {
	c := State{}
	if s.LastData != nil {
		c.LastData = make(map[string]any, len(s.LastData))
		for k, v := range s.LastData {
			c.LastData[k] = v
		}
	}
	if s.LastTemplate != nil {
		tmpl := *s.LastTemplate
		c.LastTemplate = &tmpl
	}
	return c
}
