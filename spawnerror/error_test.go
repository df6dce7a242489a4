// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawnerror

import (
	"errors"
	"io"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestCategoryStringRoundTrip(t *testing.T) {
	categories := []Category{CategoryOperatingSystemError, CategoryIOError, CategoryInternalError, CategoryTimeoutError}
	for _, c := range categories {
		if got := ParseCategory(c.String()); got != c {
			t.Fatalf("ParseCategory(%q) = %v, want %v", c.String(), got, c)
		}
	}
}

func TestParseCategoryUnknownDefaultsToInternal(t *testing.T) {
	if got := ParseCategory("NOT_A_REAL_CATEGORY"); got != CategoryInternalError {
		t.Fatalf("ParseCategory(unknown) = %v, want CategoryInternalError", got)
	}
}

func TestInferCategoryIOFamily(t *testing.T) {
	if got := InferCategory(io.EOF); got != CategoryIOError {
		t.Fatalf("InferCategory(io.EOF) = %v, want IO_ERROR", got)
	}
	wrapped := errors.New("read failed: " + io.ErrUnexpectedEOF.Error())
	_ = wrapped
	if got := InferCategory(io.ErrUnexpectedEOF); got != CategoryIOError {
		t.Fatalf("InferCategory(io.ErrUnexpectedEOF) = %v, want IO_ERROR", got)
	}
}

func TestInferCategorySyscallFamily(t *testing.T) {
	if got := InferCategory(syscall.ENOENT); got != CategoryOperatingSystemError {
		t.Fatalf("InferCategory(ENOENT) = %v, want OPERATING_SYSTEM_ERROR", got)
	}
	if got := InferCategory(syscall.EPIPE); got != CategoryIOError {
		t.Fatalf("InferCategory(EPIPE) = %v, want IO_ERROR (broken stream)", got)
	}
}

func TestInferCategoryOtherwiseInternal(t *testing.T) {
	if got := InferCategory(errors.New("something unexpected")); got != CategoryInternalError {
		t.Fatalf("InferCategory(generic) = %v, want INTERNAL_ERROR", got)
	}
}

func TestProblemAndSolutionHTMLAreDistinctFields(t *testing.T) {
	e := New(CategoryOperatingSystemError, "setuid failed")
	e.WithProblemDescriptionHTML("<p>problem</p>")
	e.WithSolutionDescriptionHTML("<p>solution</p>")

	if e.ProblemDescriptionHTML == e.SolutionDescriptionHTML {
		t.Fatal("problem and solution HTML must not collide under one field")
	}
	if e.ProblemDescriptionHTML != "<p>problem</p>" {
		t.Fatalf("ProblemDescriptionHTML = %q", e.ProblemDescriptionHTML)
	}
	if e.SolutionDescriptionHTML != "<p>solution</p>" {
		t.Fatalf("SolutionDescriptionHTML = %q", e.SolutionDescriptionHTML)
	}
}

func TestRendererSubstitutesAndConvertsMarkdown(t *testing.T) {
	r := NewRenderer()
	html, err := r.Render("The process failed with **{{CATEGORY}}**: {{SUMMARY}}", map[string]string{
		"CATEGORY": "OPERATING_SYSTEM_ERROR",
		"SUMMARY":  "setuid failed",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, "OPERATING_SYSTEM_ERROR") {
		t.Fatalf("rendered HTML missing substituted category: %q", html)
	}
	if !strings.Contains(html, "<strong>") {
		t.Fatalf("rendered HTML missing markdown bold conversion: %q", html)
	}
}

func TestRenderErrorPopulatesBothFields(t *testing.T) {
	r := NewRenderer()
	e := New(CategoryTimeoutError, "deadline exceeded")
	if err := r.RenderError(e, "Problem: {{SUMMARY}}", "Solution: restart"); err != nil {
		t.Fatalf("RenderError: %v", err)
	}
	if !strings.Contains(e.ProblemDescriptionHTML, "deadline exceeded") {
		t.Fatalf("problem HTML = %q", e.ProblemDescriptionHTML)
	}
	if !strings.Contains(e.SolutionDescriptionHTML, "restart") {
		t.Fatalf("solution HTML = %q", e.SolutionDescriptionHTML)
	}
}

func TestSummaryIncludesElapsedAndCapturedOutput(t *testing.T) {
	e := New(CategoryIOError, "broken pipe")
	e.WithStdoutErrData([]byte("some captured output"))
	summary := Summary(e, 250*time.Millisecond)
	if !strings.Contains(summary, "IO_ERROR") {
		t.Fatalf("summary missing category: %q", summary)
	}
	if !strings.Contains(summary, "after 250ms") {
		t.Fatalf("summary missing elapsed time: %q", summary)
	}
	if !strings.Contains(summary, "captured output") {
		t.Fatalf("summary missing captured-output note: %q", summary)
	}
}
