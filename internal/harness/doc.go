// Package harness runs one load test against a containerized service.
//
// A run moves through a fixed sequence of phases and never goes back:
//
//	idle -> resolving-endpoint -> preparing-workspace -> writing-profile -> running -> succeeded | failed
//
// Each phase feeds the next explicitly: the resolved port flows into profile
// generation, the generated file into the invoker. Any error moves the run
// straight to failed and is returned as a [PhaseError] wrapping the original
// typed error ([endpoint.ResolutionError], [workspace.WorkspaceError],
// [profile.ProfileNotFoundError], [profile.ProfileWriteError],
// [jmeter.ExecutableNotFoundError]). Nothing is retried.
//
// An error means the test infrastructure failed. A tool that ran and exited
// non-zero is not an error: the run ends in the failed phase with a nil error
// and [Outcome.Passed] reports false.
//
// The executor holds no per-run state and does not lock the workspace; callers
// sharing a workspace path must serialize runs, for example with
// [workspace.Lock].
package harness
