// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journey implements the typed state machine that records the
// progress of a single spawn attempt across the supervisor, an
// optional preloader, and the spawned subprocess.
//
// A Journey's step set is fixed at construction time by its Type and
// usingWrapper flag (§3 of the design this package implements); steps
// outside that set are never touched and are absent from Render.
package journey

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/phusion-spawning/spawningkit/lib/clock"
)

// timeGranularity is the truncation applied to all recorded
// timestamps, matching the ~10ms granularity spec.md calls for.
const timeGranularity = 10 * time.Millisecond

// StepInfo is the recorded state of one step: its lifecycle state and
// the start/end times of its execution. Invariant: endTime >=
// startTime once the state is terminal (Performed or Errored);
// (startTime, endTime) are zero while NotStarted.
type StepInfo struct {
	State     State
	StartTime time.Time
	EndTime   time.Time

	// durationOverride holds a duration reported by a different
	// process (typically the child) and transferred via the work
	// dir, superseding EndTime.Sub(StartTime). Nil unless
	// SetExecutionDuration was called for this step.
	durationOverride *time.Duration
}

// UsecDuration returns the step's duration in microseconds. If an
// execution-duration override was recorded (§3: "Records an
// execution-duration override when the actual timing was measured by
// another process"), that value is returned; otherwise it is derived
// from EndTime - StartTime. Returns 0 for a step that never started.
func (info StepInfo) UsecDuration() int64 {
	if info.durationOverride != nil {
		return info.durationOverride.Microseconds()
	}
	if info.StartTime.IsZero() {
		return 0
	}
	end := info.EndTime
	if end.IsZero() {
		return 0
	}
	return end.Sub(info.StartTime).Microseconds()
}

// Journey is an ordered mapping from Step to StepInfo, scoped to one
// spawn attempt.
type Journey struct {
	journeyType  Type
	usingWrapper bool
	clock        clock.Clock

	order []Step
	steps map[Step]*StepInfo
}

// New builds a Journey whose step set is determined by journeyType and
// usingWrapper. clk provides the monotonic time source for step
// transitions; pass clock.Real() in production and a clock.Fake in
// tests.
func New(journeyType Type, usingWrapper bool, clk clock.Clock) *Journey {
	if clk == nil {
		clk = clock.Real()
	}
	j := &Journey{
		journeyType:  journeyType,
		usingWrapper: usingWrapper,
		clock:        clk,
		steps:        make(map[Step]*StepInfo),
	}
	j.order = stepsForJourney(journeyType, usingWrapper)
	for _, step := range j.order {
		j.steps[step] = &StepInfo{State: StateNotStarted}
	}
	return j
}

// stepsForJourney returns the fixed, ordered step set for a journey
// type, per §3/§4.1: "the step set is fixed at journey construction."
func stepsForJourney(journeyType Type, usingWrapper bool) []Step {
	switch journeyType {
	case TypeSpawnDirectly:
		steps := []Step{
			StepSpawningKitPreparation,
			StepSpawningKitForkSubprocess,
			StepSpawningKitHandshakePerform,
			StepSubprocessBeforeFirstExec,
			StepSubprocessSpawnEnvSetupperBeforeShell,
			StepSubprocessOSShell,
			StepSubprocessSpawnEnvSetupperAfterShell,
		}
		if usingWrapper {
			steps = append(steps, StepSubprocessExecWrapper, StepSubprocessWrapperPreparation)
		}
		steps = append(steps,
			StepSubprocessAppLoadOrExec,
			StepSubprocessListen,
			StepSubprocessFinish,
			StepSpawningKitFinish,
		)
		return steps

	case TypeStartPreloader:
		return []Step{
			StepSpawningKitPreparation,
			StepSpawningKitForkSubprocess,
			StepSpawningKitHandshakePerform,
			StepSubprocessBeforeFirstExec,
			StepSubprocessSpawnEnvSetupperBeforeShell,
			StepSubprocessOSShell,
			StepSubprocessSpawnEnvSetupperAfterShell,
			StepSubprocessAppLoadOrExec,
			StepSubprocessListen,
			StepSubprocessFinish,
			StepPreloaderPreparation,
			StepPreloaderFinish,
			StepSpawningKitFinish,
		}

	case TypeSpawnThroughPreloader:
		return []Step{
			StepSpawningKitPreparation,
			StepSpawningKitConnectToPreloader,
			StepSpawningKitSendCommandToPreloader,
			StepSpawningKitReadResponseFromPreloader,
			StepSpawningKitParseResponseFromPreloader,
			StepSpawningKitProcessResponseFromPreloader,
			StepSpawningKitHandshakePerform,
			StepPreloaderForkSubprocess,
			StepPreloaderSendResponse,
			StepSubprocessPrepareAfterForkingFromPreloader,
			StepSubprocessListen,
			StepSubprocessFinish,
			StepSpawningKitFinish,
		}

	default:
		return nil
	}
}

// Type returns the journey's type.
func (j *Journey) Type() Type { return j.journeyType }

// UsingWrapper reports whether this journey includes wrapper steps.
func (j *Journey) UsingWrapper() bool { return j.usingWrapper }

// Steps returns the journey's fixed step set in construction order.
func (j *Journey) Steps() []Step {
	out := make([]Step, len(j.order))
	copy(out, j.order)
	return out
}

// Get returns the recorded info for step. The zero value (NotStarted,
// zero times) is returned for a step outside this journey's set.
func (j *Journey) Get(step Step) StepInfo {
	if info, ok := j.steps[step]; ok {
		return *info
	}
	return StepInfo{State: StateNotStarted}
}

// errUnknownStep reports a transition attempted on a step outside the
// journey's fixed set.
func errUnknownStep(step Step) error {
	return fmt.Errorf("journey: step %s is not part of this journey", step)
}

// errIllegalTransition reports a disallowed transition without force.
func errIllegalTransition(step Step, from State, to string) error {
	return fmt.Errorf("journey: cannot transition step %s from %s to %s without force", step, from, to)
}

func (j *Journey) truncatedNow() time.Time {
	return j.clock.Now().Truncate(timeGranularity)
}

// SetStepInProgress marks step as started. Without force, this only
// succeeds from StateNotStarted. With force, any prior state is
// accepted and the start time is reset.
func (j *Journey) SetStepInProgress(step Step, force bool) error {
	info, ok := j.steps[step]
	if !ok {
		return errUnknownStep(step)
	}
	if !force && info.State != StateNotStarted {
		return errIllegalTransition(step, info.State, "STEP_IN_PROGRESS")
	}
	info.State = StateInProgress
	info.StartTime = j.truncatedNow()
	info.EndTime = time.Time{}
	info.durationOverride = nil
	return nil
}

// SetStepPerformed marks step as successfully completed.
//
// Without force, this only succeeds from StateInProgress — this is
// the resolved semantics for the step-performed transition: force
// actually gates the guard rather than being ignored.
func (j *Journey) SetStepPerformed(step Step, force bool) error {
	info, ok := j.steps[step]
	if !ok {
		return errUnknownStep(step)
	}
	if !force && info.State != StateInProgress {
		return errIllegalTransition(step, info.State, "STEP_PERFORMED")
	}
	info.State = StatePerformed
	if info.StartTime.IsZero() {
		info.StartTime = j.truncatedNow()
	}
	info.EndTime = j.truncatedNow()
	return nil
}

// SetStepErrored marks step as failed. Without force, this only
// succeeds from StateInProgress.
func (j *Journey) SetStepErrored(step Step, force bool) error {
	info, ok := j.steps[step]
	if !ok {
		return errUnknownStep(step)
	}
	if !force && info.State != StateInProgress {
		return errIllegalTransition(step, info.State, "STEP_ERRORED")
	}
	info.State = StateErrored
	if info.StartTime.IsZero() {
		info.StartTime = j.truncatedNow()
	}
	info.EndTime = j.truncatedNow()
	return nil
}

// SetStepNotStarted resets step to StateNotStarted, clearing its
// timing. Used by the smart spawner's crash-and-restart policy (§4.8):
// steps belonging to an attempt that will be retried are reset rather
// than marked errored. Without force, this only succeeds from
// StateNotStarted or StateInProgress (a terminal step is not silently
// reset). With force, any prior state is accepted.
func (j *Journey) SetStepNotStarted(step Step, force bool) error {
	info, ok := j.steps[step]
	if !ok {
		return errUnknownStep(step)
	}
	if !force && info.State != StateNotStarted && info.State != StateInProgress {
		return errIllegalTransition(step, info.State, "STEP_NOT_STARTED")
	}
	info.State = StateNotStarted
	info.StartTime = time.Time{}
	info.EndTime = time.Time{}
	info.durationOverride = nil
	return nil
}

// SetExecutionDuration records a duration measured by another
// participant (typically the child, via the work dir) that supersedes
// the locally observed EndTime-StartTime span.
func (j *Journey) SetExecutionDuration(step Step, d time.Duration) error {
	info, ok := j.steps[step]
	if !ok {
		return errUnknownStep(step)
	}
	info.durationOverride = &d
	return nil
}

// FirstFailedStep returns the first step (in construction order) in
// StateErrored, if any.
func (j *Journey) FirstFailedStep() (Step, bool) {
	for _, step := range j.order {
		if j.steps[step].State == StateErrored {
			return step, true
		}
	}
	return 0, false
}

// Merge overlays step states and durations from other onto j for any
// step present in both journeys, preferring other's recorded state
// when other's step is not NotStarted. This implements §4.5 step 4:
// "the supervisor's journey merged with child-recorded step states/
// durations."
func (j *Journey) Merge(other *Journey) {
	if other == nil {
		return
	}
	for step, otherInfo := range other.steps {
		info, ok := j.steps[step]
		if !ok {
			continue
		}
		if otherInfo.State == StateNotStarted {
			continue
		}
		*info = *otherInfo
	}
}

// renderedStep is the JSON shape of one step entry.
type renderedStep struct {
	State        string `json:"state"`
	UsecDuration int64  `json:"usec_duration"`
}

// renderedJourney is the stable JSON shape from §4.1:
// { type, steps: { STEP_NAME: { state, usec_duration } } }.
type renderedJourney struct {
	Type         string                  `json:"type"`
	UsingWrapper bool                    `json:"using_wrapper"`
	Steps        map[string]renderedStep `json:"steps"`
}

// Render serializes the journey to its stable JSON shape.
func (j *Journey) Render() ([]byte, error) {
	rendered := renderedJourney{
		Type:         j.journeyType.String(),
		UsingWrapper: j.usingWrapper,
		Steps:        make(map[string]renderedStep, len(j.order)),
	}
	for _, step := range j.order {
		info := j.steps[step]
		rendered.Steps[step.String()] = renderedStep{
			State:        info.State.String(),
			UsecDuration: info.UsecDuration(),
		}
	}
	return json.Marshal(rendered)
}

// Parse reconstructs a Journey from its rendered JSON form. Parse and
// Render are mutual inverses: Parse(Render(j)) reproduces j's visible
// state (type, usingWrapper, and every step's state/duration) exactly,
// though StartTime/EndTime collapse into the single usec_duration
// value carried over the wire, matching how the duration crosses
// process boundaries in the real handshake.
func Parse(data []byte, clk clock.Clock) (*Journey, error) {
	var rendered renderedJourney
	if err := json.Unmarshal(data, &rendered); err != nil {
		return nil, fmt.Errorf("journey: parsing rendered journey: %w", err)
	}
	journeyType, err := ParseType(rendered.Type)
	if err != nil {
		return nil, err
	}

	j := New(journeyType, rendered.UsingWrapper, clk)
	for name, rstep := range rendered.Steps {
		step, err := ParseStep(name)
		if err != nil {
			return nil, err
		}
		state, err := ParseState(rstep.State)
		if err != nil {
			return nil, err
		}
		info, ok := j.steps[step]
		if !ok {
			// Step present on the wire but not in the step set this
			// type/usingWrapper combination produces: keep it anyway
			// so round-tripping a journey rendered by a differently
			// configured peer doesn't silently drop data.
			info = &StepInfo{}
			j.steps[step] = info
			j.order = append(j.order, step)
		}
		info.State = state
		d := time.Duration(rstep.UsecDuration) * time.Microsecond
		info.durationOverride = &d
	}
	sort.Slice(j.order, func(a, b int) bool { return j.order[a] < j.order[b] })
	return j, nil
}
