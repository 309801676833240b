// Package sync implements the per-plugin execution engine of thv-confd.
//
// Each plugin runs in its own Task, which repeats the same cycle until its
// context is cancelled:
//
//	fetch -> decide -> render -> write -> reload -> sleep
//
// # Change Detection
//
// Decide compares the freshly fetched data and the current template text with
// the State left by previous ticks:
//
//   - ReasonInitialRender: nothing was fetched before, the first run always renders
//   - ReasonDataChanged: fetched data differs from the previous fetch
//   - ReasonTemplateNeverRendered: data is unchanged but no render succeeded yet
//   - ReasonTemplateChanged: data is unchanged but the template was edited on disk
//   - ReasonUpToDate: nothing changed, the tick is skipped
//
// # Tick Outcomes
//
// Every tick ends with one Outcome. Failures are contained in the tick that
// produced them; the task logs them and carries on with its next tick.
//
//   - OutcomeFetchFailed: state is left untouched, the stale data is kept
//   - OutcomeRenderFailed: the fetched data is recorded, nothing is written
//   - OutcomeWriteFailed: state is left untouched so the next tick retries
//   - OutcomeCheckFailed: the staged output is discarded and the fetched data recorded
//   - OutcomeSkip: the fetched data is recorded
//   - OutcomeRender: output replaced atomically, reload command started, state recorded
//
// The reload command runs asynchronously. Its result is logged, counted and
// reported to the status store but never changes the outcome of the tick.
//
// # Coordinator Package
//
// The sync/coordinator subpackage starts one Task per plugin and waits for all
// of them. See internal/sync/coordinator for details.
package sync
