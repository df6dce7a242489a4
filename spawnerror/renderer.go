// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawnerror

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
)

// Renderer produces HTML problem/solution descriptions from
// Markdown-authored templates containing "{{KEY}}" placeholders.
// Substitution is always a flat string replace — templates carry no
// conditional logic (§4.9: "Both read a static template and perform
// simple {{KEY}} substitution — no conditional logic in templates").
type Renderer struct {
	markdown goldmark.Markdown
}

// NewRenderer constructs a Renderer using goldmark's default
// configuration.
func NewRenderer() *Renderer {
	return &Renderer{markdown: goldmark.New()}
}

// Render substitutes the given key/value pairs into templateSource and
// converts the result from Markdown to HTML.
func (r *Renderer) Render(templateSource string, substitutions map[string]string) (string, error) {
	substituted := substitute(templateSource, substitutions)

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(substituted), &buf); err != nil {
		return "", fmt.Errorf("spawnerror: rendering template: %w", err)
	}
	return buf.String(), nil
}

// RenderError renders both the problem and solution descriptions for
// e, attaching them via WithProblemDescriptionHTML and
// WithSolutionDescriptionHTML (not the same field — see the Error
// type's doc comment on the resolved duplicate-accessor bug).
func (r *Renderer) RenderError(e *Error, problemTemplate, solutionTemplate string) error {
	substitutions := map[string]string{
		"CATEGORY": e.Category.String(),
		"SUMMARY":  e.Summary,
	}

	if problemTemplate != "" {
		html, err := r.Render(problemTemplate, substitutions)
		if err != nil {
			return err
		}
		e.WithProblemDescriptionHTML(html)
	}
	if solutionTemplate != "" {
		html, err := r.Render(solutionTemplate, substitutions)
		if err != nil {
			return err
		}
		e.WithSolutionDescriptionHTML(html)
	}
	return nil
}

func substitute(template string, values map[string]string) string {
	if len(values) == 0 {
		return template
	}
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Summary renders a short, human-readable one-line summary of e — the
// "without details" mode from §4.9 — appending elapsed rounded to the
// millisecond when positive, and the captured output's size formatted
// by humanize.Bytes when any was captured.
func Summary(e *Error, elapsed time.Duration) string {
	line := fmt.Sprintf("[%s] %s", e.Category, e.Summary)
	if elapsed > 0 {
		line += fmt.Sprintf(" (after %s)", elapsed.Round(time.Millisecond))
	}
	if len(e.StdoutErrData) > 0 {
		line += fmt.Sprintf(", %s of captured output", humanize.Bytes(uint64(len(e.StdoutErrData))))
	}
	return line
}
