package sync

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Reason explains a change detection decision
type Reason string

// Change detection reasons
const (
	// ReasonInitialRender means no data has been fetched successfully before
	ReasonInitialRender Reason = "initial-render"

	// ReasonTemplateNeverRendered means data is unchanged but no render has succeeded yet
	ReasonTemplateNeverRendered Reason = "template-never-rendered"

	// ReasonTemplateChanged means data is unchanged but the template was edited
	ReasonTemplateChanged Reason = "template-changed"

	// ReasonDataChanged means the fetched data differs from the previous fetch
	ReasonDataChanged Reason = "data-changed"

	// ReasonUpToDate means neither data nor template changed
	ReasonUpToDate Reason = "up-to-date"
)

// ShouldRender reports whether the reason requires regenerating output
func (r Reason) ShouldRender() bool {
	return r != ReasonUpToDate
}

// String returns the reason as a string
func (r Reason) String() string {
	return string(r)
}

// Decide applies the change detection rules in order:
//   - no previous data: render
//   - same data, no previous render: render
//   - same data, template text differs from the last rendered one: render
//   - same data, same template: skip
//   - different data: render
func Decide(state *State, current map[string]any, template string) Reason {
	if state == nil || state.LastData == nil {
		return ReasonInitialRender
	}

	if !DataEqual(current, state.LastData) {
		return ReasonDataChanged
	}

	if state.LastTemplate == nil {
		return ReasonTemplateNeverRendered
	}

	if template != *state.LastTemplate {
		return ReasonTemplateChanged
	}

	return ReasonUpToDate
}

// exportAll lets the comparison descend into unexported struct fields that
// plugin implementations may place in their data
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

// DataEqual reports whether two fetched data mappings are deep-equal.
// Nil and empty collections compare equal.
func DataEqual(a, b map[string]any) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty(), exportAll)
}
