// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spawnerror implements the spawn error taxonomy and the HTML
// rendering of problem/solution descriptions harvested from a failed
// spawn (§4.9, §7 of the design this package implements).
package spawnerror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/phusion-spawning/spawningkit/journey"
)

// Category is the closed taxonomy of spawn failure causes (§4.9).
type Category int

const (
	CategoryUnknown Category = iota
	CategoryOperatingSystemError
	CategoryIOError
	CategoryInternalError
	CategoryTimeoutError
)

func (c Category) String() string {
	switch c {
	case CategoryOperatingSystemError:
		return "OPERATING_SYSTEM_ERROR"
	case CategoryIOError:
		return "IO_ERROR"
	case CategoryInternalError:
		return "INTERNAL_ERROR"
	case CategoryTimeoutError:
		return "TIMEOUT_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// ParseCategory is the inverse of Category.String. An unrecognized
// string parses as CategoryInternalError, matching §4.5 step 4's
// "default INTERNAL_ERROR" when a category file is missing or
// unreadable.
func ParseCategory(s string) Category {
	switch s {
	case "OPERATING_SYSTEM_ERROR":
		return CategoryOperatingSystemError
	case "IO_ERROR":
		return CategoryIOError
	case "TIMEOUT_ERROR":
		return CategoryTimeoutError
	default:
		return CategoryInternalError
	}
}

// Error is a SpawnException (§3): an aggregated, structured failure
// built incrementally by whichever component detects it, carrying
// enough context — category, human summary, optional HTML
// descriptions, captured stdio, annotations, and a journey snapshot —
// for the supervisor to report what happened and where.
//
// ProblemDescriptionHTML and SolutionDescriptionHTML are distinct
// fields: the design this implements resolves the source's bug where
// both descriptions were attached under the same accessor.
type Error struct {
	Category Category
	Summary  string

	// AdvancedDetails carries an opaque diagnostic payload verbatim
	// (§4.1 of SPEC_FULL: preserved as raw JSON so structured
	// payloads survive round-trip without re-escaping).
	AdvancedDetails json.RawMessage

	ProblemDescriptionHTML  string
	SolutionDescriptionHTML string

	// StdoutErrData is the bounded captured stdio buffer attached per
	// §4.5 step 4, compressed by the handshake package before
	// attachment.
	StdoutErrData []byte

	Annotations map[string]string

	JourneySnapshot *journey.Journey
}

func (e *Error) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("%s: %s", e.Category, e.Summary)
	}
	return e.Category.String()
}

// New builds a minimal Error from a category and summary. Use the
// setter methods below to attach the remaining optional fields as
// they become available.
func New(category Category, summary string) *Error {
	return &Error{Category: category, Summary: summary}
}

// WithAdvancedDetails attaches a raw advanced-details payload.
func (e *Error) WithAdvancedDetails(details json.RawMessage) *Error {
	e.AdvancedDetails = details
	return e
}

// WithProblemDescriptionHTML attaches the rendered problem description.
func (e *Error) WithProblemDescriptionHTML(html string) *Error {
	e.ProblemDescriptionHTML = html
	return e
}

// WithSolutionDescriptionHTML attaches the rendered solution
// description under its own field — never overwriting
// ProblemDescriptionHTML.
func (e *Error) WithSolutionDescriptionHTML(html string) *Error {
	e.SolutionDescriptionHTML = html
	return e
}

// WithStdoutErrData attaches captured stdio.
func (e *Error) WithStdoutErrData(data []byte) *Error {
	e.StdoutErrData = data
	return e
}

// WithAnnotations attaches harvested envdump annotations.
func (e *Error) WithAnnotations(annotations map[string]string) *Error {
	e.Annotations = annotations
	return e
}

// WithJourneySnapshot attaches the journey as observed at the moment
// of failure.
func (e *Error) WithJourneySnapshot(j *journey.Journey) *Error {
	e.JourneySnapshot = j
	return e
}

// InferCategory classifies a Go error into a Category for the case
// described in §4.9: "an inferred category when an exception is
// caught and no artifact file exists (IO-family → IO, syscall-family
// → OS, otherwise internal)."
func InferCategory(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryIOError
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EPIPE, syscall.ECONNRESET:
			return CategoryIOError
		default:
			return CategoryOperatingSystemError
		}
	}
	return CategoryInternalError
}
