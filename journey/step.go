// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journey

import "fmt"

// Type identifies which participants and step set a Journey covers.
type Type int

const (
	// TypeSpawnDirectly covers a fork/exec of the envsetupper chain
	// with no preloader involved.
	TypeSpawnDirectly Type = iota

	// TypeStartPreloader covers starting a long-lived preloader
	// process, which itself goes through the same fork/exec chain
	// but ends at the preloader's own command-socket readiness
	// rather than an application listen.
	TypeStartPreloader

	// TypeSpawnThroughPreloader covers a spawn request serviced by an
	// already-running preloader: connect, send command, read
	// response, verify, then a handshake with the forked child.
	TypeSpawnThroughPreloader
)

func (t Type) String() string {
	switch t {
	case TypeSpawnDirectly:
		return "SPAWN_DIRECTLY"
	case TypeStartPreloader:
		return "START_PRELOADER"
	case TypeSpawnThroughPreloader:
		return "SPAWN_THROUGH_PRELOADER"
	default:
		return fmt.Sprintf("JOURNEY_TYPE(%d)", int(t))
	}
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "SPAWN_DIRECTLY":
		return TypeSpawnDirectly, nil
	case "START_PRELOADER":
		return TypeStartPreloader, nil
	case "SPAWN_THROUGH_PRELOADER":
		return TypeSpawnThroughPreloader, nil
	default:
		return 0, fmt.Errorf("journey: unknown journey type %q", s)
	}
}

// Step is a single named phase of a spawn, attributed to one of three
// participants: the supervisor, an optional preloader, or the
// subprocess being spawned.
type Step int

const (
	stepUnknown Step = iota

	// Supervisor-side steps.
	StepSpawningKitPreparation
	StepSpawningKitForkSubprocess
	StepSpawningKitConnectToPreloader
	StepSpawningKitSendCommandToPreloader
	StepSpawningKitReadResponseFromPreloader
	StepSpawningKitParseResponseFromPreloader
	StepSpawningKitProcessResponseFromPreloader
	StepSpawningKitHandshakePerform
	StepSpawningKitFinish

	// Preloader-side steps.
	StepPreloaderPreparation
	StepPreloaderForkSubprocess
	StepPreloaderSendResponse
	StepPreloaderFinish

	// Subprocess-side steps.
	StepSubprocessBeforeFirstExec
	StepSubprocessSpawnEnvSetupperBeforeShell
	StepSubprocessOSShell
	StepSubprocessSpawnEnvSetupperAfterShell
	StepSubprocessExecWrapper
	StepSubprocessWrapperPreparation
	StepSubprocessAppLoadOrExec
	StepSubprocessPrepareAfterForkingFromPreloader
	StepSubprocessListen
	StepSubprocessFinish
)

var stepNames = map[Step]string{
	StepSpawningKitPreparation:                      "SPAWNING_KIT_PREPARATION",
	StepSpawningKitForkSubprocess:                    "SPAWNING_KIT_FORK_SUBPROCESS",
	StepSpawningKitConnectToPreloader:                "SPAWNING_KIT_CONNECT_TO_PRELOADER",
	StepSpawningKitSendCommandToPreloader:            "SPAWNING_KIT_SEND_COMMAND_TO_PRELOADER",
	StepSpawningKitReadResponseFromPreloader:         "SPAWNING_KIT_READ_RESPONSE_FROM_PRELOADER",
	StepSpawningKitParseResponseFromPreloader:        "SPAWNING_KIT_PARSE_RESPONSE_FROM_PRELOADER",
	StepSpawningKitProcessResponseFromPreloader:      "SPAWNING_KIT_PROCESS_RESPONSE_FROM_PRELOADER",
	StepSpawningKitHandshakePerform:                  "SPAWNING_KIT_HANDSHAKE_PERFORM",
	StepSpawningKitFinish:                            "SPAWNING_KIT_FINISH",
	StepPreloaderPreparation:                         "PRELOADER_PREPARATION",
	StepPreloaderForkSubprocess:                       "PRELOADER_FORK_SUBPROCESS",
	StepPreloaderSendResponse:                        "PRELOADER_SEND_RESPONSE",
	StepPreloaderFinish:                              "PRELOADER_FINISH",
	StepSubprocessBeforeFirstExec:                    "SUBPROCESS_BEFORE_FIRST_EXEC",
	StepSubprocessSpawnEnvSetupperBeforeShell:        "SUBPROCESS_SPAWN_ENV_SETUPPER_BEFORE_SHELL",
	StepSubprocessOSShell:                            "SUBPROCESS_OS_SHELL",
	StepSubprocessSpawnEnvSetupperAfterShell:         "SUBPROCESS_SPAWN_ENV_SETUPPER_AFTER_SHELL",
	StepSubprocessExecWrapper:                        "SUBPROCESS_EXEC_WRAPPER",
	StepSubprocessWrapperPreparation:                 "SUBPROCESS_WRAPPER_PREPARATION",
	StepSubprocessAppLoadOrExec:                       "SUBPROCESS_APP_LOAD_OR_EXEC",
	StepSubprocessPrepareAfterForkingFromPreloader:   "SUBPROCESS_PREPARE_AFTER_FORKING_FROM_PRELOADER",
	StepSubprocessListen:                             "SUBPROCESS_LISTEN",
	StepSubprocessFinish:                              "SUBPROCESS_FINISH",
}

var stepsByName map[string]Step

func init() {
	stepsByName = make(map[string]Step, len(stepNames))
	for step, name := range stepNames {
		stepsByName[name] = step
	}
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STEP(%d)", int(s))
}

// ParseStep is the inverse of Step.String.
func ParseStep(s string) (Step, error) {
	if step, ok := stepsByName[s]; ok {
		return step, nil
	}
	return 0, fmt.Errorf("journey: unknown step %q", s)
}

// LowerCase returns the work-dir filename form of the step, e.g.
// "spawning_kit_preparation". Used to build paths under
// response/steps/<step_lowercase>/.
func (s Step) LowerCase() string {
	return lowerASCII(s.String())
}

func lowerASCII(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// State is the lifecycle state of a single journey step.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StatePerformed
	StateErrored
)

func (st State) String() string {
	switch st {
	case StateNotStarted:
		return "STEP_NOT_STARTED"
	case StateInProgress:
		return "STEP_IN_PROGRESS"
	case StatePerformed:
		return "STEP_PERFORMED"
	case StateErrored:
		return "STEP_ERRORED"
	default:
		return fmt.Sprintf("STEP_STATE(%d)", int(st))
	}
}

// ParseState is the inverse of State.String. It is a mutual inverse
// with String on the four defined states (§8 round-trip law).
func ParseState(s string) (State, error) {
	switch s {
	case "STEP_NOT_STARTED":
		return StateNotStarted, nil
	case "STEP_IN_PROGRESS":
		return StateInProgress, nil
	case "STEP_PERFORMED":
		return StatePerformed, nil
	case "STEP_ERRORED":
		return StateErrored, nil
	default:
		return 0, fmt.Errorf("journey: unknown step state %q", s)
	}
}
