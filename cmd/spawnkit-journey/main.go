// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/phusion-spawning/spawningkit/journey"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		workDir      string
		journeyTypeS string
		usingWrapper bool
		plain        bool
	)
	flags := pflag.NewFlagSet("spawnkit-journey", pflag.ContinueOnError)
	flags.StringVar(&workDir, "work-dir", "", "work directory of the spawn attempt to watch")
	flags.StringVar(&journeyTypeS, "journey-type", "SPAWN_DIRECTLY", "journey type: SPAWN_DIRECTLY, START_PRELOADER, or SPAWN_THROUGH_PRELOADER")
	flags.BoolVar(&usingWrapper, "using-wrapper", false, "whether the watched journey includes wrapper steps")
	flags.BoolVar(&plain, "plain", false, "force the non-interactive line-oriented renderer")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return 2
	}

	if workDir == "" {
		fmt.Fprintln(os.Stderr, "spawnkit-journey: --work-dir is required")
		return 2
	}

	journeyType, err := journey.ParseType(journeyTypeS)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spawnkit-journey:", err)
		return 2
	}
	viewerJourneyType = journeyType
	viewerUsingWrapper = usingWrapper

	if plain || !isInteractiveTerminal() {
		return runPlain(workDir)
	}

	p := tea.NewProgram(newModel(workDir))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "spawnkit-journey:", err)
		return 1
	}
	return 0
}

// isInteractiveTerminal reports whether stdout is a terminal capable of
// the bubbletea view, so CI logs and piped output fall back to
// runPlain's plain-text rendering instead.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// runPlain polls the same work dir as the bubbletea model but, on each
// poll, prints one plain line per step followed by a "---" separator
// instead of redrawing a full-screen view, for non-interactive
// contexts (CI logs, piped output).
func runPlain(workDir string) int {
	for {
		msg := pollJourney(workDir)()
		polled, ok := msg.(journeyPolledMsg)
		if !ok {
			continue
		}
		if polled.err != nil {
			fmt.Fprintln(os.Stderr, "spawnkit-journey:", polled.err)
			return 1
		}

		j := polled.j
		if j != nil {
			for _, step := range j.Steps() {
				info := j.Get(step)
				fmt.Printf("%-55s %-16s %dus\n", step, info.State, info.UsecDuration())
			}
			if journeyIsTerminal(j) {
				info := j.Get(journey.StepSpawningKitFinish)
				fmt.Println("---")
				if info.State == journey.StateErrored {
					return 1
				}
				return 0
			}
			fmt.Println("---")
		}

		time.Sleep(200 * time.Millisecond)
	}
}
