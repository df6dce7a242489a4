// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/phusion-spawning/spawningkit/handshake"
	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/lib/clock"
	"github.com/phusion-spawning/spawningkit/lib/process"
	"github.com/phusion-spawning/spawningkit/spawnerror"
	"github.com/phusion-spawning/spawningkit/workdir"
)

// preloaderState is the lifecycle of a SmartSpawner's preloader
// process (§6).
type preloaderState int

const (
	preloaderDown preloaderState = iota
	preloaderStarting
	preloaderUp
)

// maxCommandLineLength bounds a single line of the command-socket
// protocol (§6: "line-delimited JSON, 10 KiB max per line").
const maxCommandLineLength = 10 * 1024

// SmartSpawner services spawn requests through a long-lived preloader
// process, restarting it at most once if it crashes mid-request (§6).
//
// Concurrency follows a two-mutex design: coarseMu serializes state-
// machine transitions (starting, stopping, restarting the preloader)
// while fineMu protects the cheap, frequently-read pid/lastUsedAt
// fields so a status query never blocks behind a slow start/stop.
type SmartSpawner struct {
	coarseMu sync.Mutex
	state    preloaderState
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	socketAddress string
	restartedOnce bool

	fineMu      sync.Mutex
	pid         int
	lastUsedAt  time.Time

	// runningDigest is the restart-dedupe key (§2 domain stack:
	// "keyed content hash of a preloader's resolved command +
	// environment") the currently-running preloader was started
	// with. Compared against the desired digest on every
	// ensurePreloaderStarted call so a stale-but-alive preloader can
	// be logged about, not silently kept forever.
	runningDigest digest

	clock  clock.Clock
	logger *slog.Logger
}

// NewSmartSpawner constructs a SmartSpawner with no preloader running
// yet; the first Spawn call starts one lazily. A nil logger defaults
// to slog.Default(), a nil clock to clock.Real().
func NewSmartSpawner(clk clock.Clock, logger *slog.Logger) *SmartSpawner {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SmartSpawner{clock: clk, logger: logger}
}

// PreloaderAge reports how long it has been since the preloader last
// forked an application, and whether a preloader is currently up at
// all. This is passive reporting only (§4 supplemented features):
// SmartSpawner never evicts an idle preloader on its own — that
// policy belongs to the outer pool, out of scope per spec §1.
func (s *SmartSpawner) PreloaderAge() (time.Duration, bool) {
	s.fineMu.Lock()
	defer s.fineMu.Unlock()
	if s.pid == 0 {
		return 0, false
	}
	return s.clock.Now().Sub(s.lastUsedAt), true
}

// Spawn services one spawn request, starting the preloader first if
// it is not already up, and restarting it exactly once if the command
// socket turns out to be dead (§6: "crash-and-restart-exactly-once").
func (s *SmartSpawner) Spawn(config handshake.SpawnConfig, baseWorkDir string, timeout time.Duration) (*handshake.Result, *spawnerror.Error) {
	if err := s.ensurePreloaderStarted(config, baseWorkDir, timeout); err != nil {
		return nil, err
	}

	result, spawnErr := s.spawnThroughPreloader(config, baseWorkDir, timeout)
	if spawnErr == nil {
		return result, nil
	}
	if spawnErr.Category != spawnerror.CategoryIOError {
		return nil, spawnErr
	}

	s.coarseMu.Lock()
	alreadyRestarted := s.restartedOnce
	s.coarseMu.Unlock()
	if alreadyRestarted {
		return nil, spawnErr
	}

	s.coarseMu.Lock()
	s.stopPreloaderLocked(true)
	s.coarseMu.Unlock()
	if err := s.ensurePreloaderStarted(config, baseWorkDir, timeout); err != nil {
		return nil, err
	}
	return s.spawnThroughPreloader(config, baseWorkDir, timeout)
}

// ensurePreloaderStarted starts the preloader if it is down, via its
// own START_PRELOADER journey.
func (s *SmartSpawner) ensurePreloaderStarted(config handshake.SpawnConfig, baseWorkDir string, timeout time.Duration) *spawnerror.Error {
	s.coarseMu.Lock()
	defer s.coarseMu.Unlock()

	desired := digestPreloaderConfig(config.PreloaderCommand, config.EnvVars)

	if s.state == preloaderUp {
		s.fineMu.Lock()
		alive := s.pid > 0 && process.IsAlive(s.pid)
		s.fineMu.Unlock()
		if alive {
			if desired != s.runningDigest {
				s.logger.Warn("preloader config has drifted from the running instance",
					"running_digest", s.runningDigest.String(),
					"desired_digest", desired.String())
			}
			return nil
		}
		s.state = preloaderDown
	}

	s.state = preloaderStarting

	if len(config.PreloaderCommand) == 0 {
		s.state = preloaderDown
		return spawnerror.New(spawnerror.CategoryInternalError, "no preloader_command configured")
	}

	w, err := workdir.Create(baseWorkDir)
	if err != nil {
		s.state = preloaderDown
		return spawnerror.New(spawnerror.CategoryIOError, err.Error())
	}
	defer w.Drop()

	// The preloader goes through the identical envsetup chain as a
	// real application, it just execs PreloaderCommand at the end
	// instead of StartCommand.
	preloaderConfig := config
	preloaderConfig.StartCommand = shellQuoteJoin(config.PreloaderCommand)

	expectedUID, err := preloaderConfig.ResolveExpectedUID()
	if err != nil {
		s.state = preloaderDown
		return spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}

	session := handshake.NewSession(preloaderConfig, journey.TypeStartPreloader, w, expectedUID, timeout, s.clock)
	if spawnErr := handshake.Prepare(session); spawnErr != nil {
		s.state = preloaderDown
		return spawnErr
	}

	cmd, stdoutErr, stdin, spawnErr := forkEnvsetupChain(session, w, true)
	if spawnErr != nil {
		s.state = preloaderDown
		return spawnErr
	}

	exited := waitInBackground(cmd)

	result, spawnErr := handshake.Perform(session, cmd.Process.Pid, stdoutErr, exited)
	if spawnErr != nil {
		s.state = preloaderDown
		return spawnErr
	}
	if len(result.Sockets) == 0 {
		s.state = preloaderDown
		return spawnerror.New(spawnerror.CategoryInternalError, "preloader reported no command socket")
	}

	s.cmd = cmd
	s.stdin = stdin
	s.socketAddress = result.Sockets[0].Address
	s.runningDigest = desired
	s.state = preloaderUp
	s.fineMu.Lock()
	s.pid = cmd.Process.Pid
	s.lastUsedAt = s.clock.Now()
	s.fineMu.Unlock()
	return nil
}

// forkCommand is the request sent over the command socket (§6).
type forkCommand struct {
	Command string `json:"command"`
	WorkDir string `json:"work_dir"`
}

// forkResponse is the reply read back from the preloader.
type forkResponse struct {
	Result  string `json:"result"`
	PID     int    `json:"pid,omitempty"`
	Message string `json:"message,omitempty"`
}

// spawnThroughPreloader runs a SPAWN_THROUGH_PRELOADER journey: it
// connects to the preloader's command socket, sends a fork command,
// reads and validates the response, then hands off to the forked
// child's own handshake.
func (s *SmartSpawner) spawnThroughPreloader(config handshake.SpawnConfig, baseWorkDir string, timeout time.Duration) (*handshake.Result, *spawnerror.Error) {
	w, err := workdir.Create(baseWorkDir)
	if err != nil {
		return nil, spawnerror.New(spawnerror.CategoryIOError, err.Error())
	}
	defer w.Drop()

	expectedUID, err := config.ResolveExpectedUID()
	if err != nil {
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}

	session := handshake.NewSession(config, journey.TypeSpawnThroughPreloader, w, expectedUID, timeout, s.clock)
	if spawnErr := handshake.Prepare(session); spawnErr != nil {
		return nil, spawnErr
	}

	s.coarseMu.Lock()
	address := s.socketAddress
	s.coarseMu.Unlock()

	if err := session.Journey.SetStepInProgress(journey.StepSpawningKitConnectToPreloader, false); err != nil {
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}
	conn, err := net.DialTimeout("unix", address, timeout)
	if err != nil {
		_ = session.Journey.SetStepErrored(journey.StepSpawningKitConnectToPreloader, true)
		return nil, spawnerror.New(spawnerror.CategoryIOError, fmt.Sprintf("connecting to preloader: %v", err))
	}
	defer conn.Close()
	_ = session.Journey.SetStepPerformed(journey.StepSpawningKitConnectToPreloader, false)

	if err := session.Journey.SetStepInProgress(journey.StepSpawningKitSendCommandToPreloader, false); err != nil {
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}
	request := forkCommand{Command: "spawn", WorkDir: w.Path()}
	encoded, err := json.Marshal(request)
	if err != nil {
		_ = session.Journey.SetStepErrored(journey.StepSpawningKitSendCommandToPreloader, true)
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}
	if _, err := conn.Write(append(encoded, '\n')); err != nil {
		_ = session.Journey.SetStepErrored(journey.StepSpawningKitSendCommandToPreloader, true)
		return nil, spawnerror.New(spawnerror.CategoryIOError, fmt.Sprintf("sending fork command: %v", err))
	}
	_ = session.Journey.SetStepPerformed(journey.StepSpawningKitSendCommandToPreloader, false)

	if err := session.Journey.SetStepInProgress(journey.StepSpawningKitReadResponseFromPreloader, false); err != nil {
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}
	line, err := readBoundedLine(conn, maxCommandLineLength)
	if err != nil {
		_ = session.Journey.SetStepErrored(journey.StepSpawningKitReadResponseFromPreloader, true)
		if err == errResponseLineTooLong {
			return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
		}
		return nil, spawnerror.New(spawnerror.CategoryIOError, fmt.Sprintf("reading fork response: %v", err))
	}
	_ = session.Journey.SetStepPerformed(journey.StepSpawningKitReadResponseFromPreloader, false)

	if err := session.Journey.SetStepInProgress(journey.StepSpawningKitParseResponseFromPreloader, false); err != nil {
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}
	var response forkResponse
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		_ = session.Journey.SetStepErrored(journey.StepSpawningKitParseResponseFromPreloader, true)
		return nil, spawnerror.New(spawnerror.CategoryIOError, fmt.Sprintf("parsing fork response: %v", err))
	}
	_ = session.Journey.SetStepPerformed(journey.StepSpawningKitParseResponseFromPreloader, false)

	if err := session.Journey.SetStepInProgress(journey.StepSpawningKitProcessResponseFromPreloader, false); err != nil {
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}
	if response.Result != "ok" || response.PID <= 0 {
		_ = session.Journey.SetStepErrored(journey.StepSpawningKitProcessResponseFromPreloader, true)
		message := response.Message
		if message == "" {
			message = "preloader rejected the fork command"
		}
		return nil, spawnerror.New(spawnerror.CategoryInternalError, message)
	}
	_ = session.Journey.SetStepPerformed(journey.StepSpawningKitProcessResponseFromPreloader, false)

	// The preloader owns the fork, not this process: liveness can only
	// be learned by polling, never by Wait().
	exited := pollForExit(response.PID, s.clock)
	result, spawnErr := handshake.Perform(session, response.PID, nil, exited)
	if spawnErr != nil {
		return nil, spawnErr
	}

	result.PID = response.PID
	s.fineMu.Lock()
	s.lastUsedAt = s.clock.Now()
	s.fineMu.Unlock()
	return result, nil
}

// errResponseLineTooLong is returned by readBoundedLine when the
// preloader's reply exceeds maxCommandLineLength without a newline.
var errResponseLineTooLong = fmt.Errorf("fork response exceeds the maximum size limit of %d bytes", maxCommandLineLength)

// readBoundedLine reads one newline-delimited line from r, refusing to
// read more than maxLen bytes (§6: "line-delimited JSON, 10 KiB max
// per line"). bufio.Reader's ReadString keeps refilling its buffer
// across boundaries until it finds the delimiter or hits a real I/O
// error, so sizing its buffer alone does not bound an unterminated
// read — wrapping the source in an io.LimitReader does.
func readBoundedLine(r io.Reader, maxLen int) (string, error) {
	limited := io.LimitReader(r, int64(maxLen)+1)
	reader := bufio.NewReader(limited)
	line, err := reader.ReadString('\n')
	if len(line) > maxLen {
		return "", errResponseLineTooLong
	}
	if err != nil {
		return "", err
	}
	return line, nil
}

// pollForExit returns a channel that receives an ExitStatus and
// closes once pid is no longer alive, polling at a short fixed
// interval. Used for processes this spawner did not fork directly.
func pollForExit(pid int, clk clock.Clock) <-chan handshake.ExitStatus {
	exited := make(chan handshake.ExitStatus, 1)
	go func() {
		ticker := clk.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if !process.IsAlive(pid) {
				exited <- handshake.ExitStatus{ExitCode: -1}
				close(exited)
				return
			}
		}
	}()
	return exited
}

// stopPreloaderLocked terminates the current preloader process.
// Callers must hold coarseMu. If restart is true, the spawner is left
// ready for exactly one more start attempt and restartedOnce is set so
// a second crash is not retried.
func (s *SmartSpawner) stopPreloaderLocked(restart bool) {
	if s.cmd != nil && s.cmd.Process != nil {
		terminateSlowProcess(s.cmd.Process.Pid, s.stdin)
	}
	unlinkUnixSocket(s.socketAddress)
	s.cmd = nil
	s.stdin = nil
	s.socketAddress = ""
	s.state = preloaderDown
	if restart {
		s.restartedOnce = true
	}
	s.fineMu.Lock()
	s.pid = 0
	s.fineMu.Unlock()
}

// unlinkUnixSocket removes the UNIX-domain socket file backing a
// stopped preloader's command socket, if any (§6: "unlink the command
// socket file"). A TCP address or an empty one is left alone.
func unlinkUnixSocket(address string) {
	if address == "" || strings.Contains(address, "://") {
		return
	}
	_ = os.Remove(address)
}

// Stop shuts down the preloader, if any. Safe to call even if no
// preloader was ever started.
func (s *SmartSpawner) Stop() {
	s.coarseMu.Lock()
	defer s.coarseMu.Unlock()
	s.stopPreloaderLocked(false)
}

// terminateSlowProcess stops a preloader that needs shutting down,
// implementing §6's "stopPreloader: close stdin, bounded waitpid,
// SIGKILL escalation" sequence.
func terminateSlowProcess(pid int, stdin io.WriteCloser) {
	if pid <= 0 || !process.IsAlive(pid) {
		if stdin != nil {
			_ = stdin.Close()
		}
		return
	}
	terminate(pid, stdin)
}

// shellQuoteJoin joins argv into a single /bin/sh -c command line,
// single-quoting each argument. Used to hand PreloaderCommand to
// spawnkit-envsetup, which only knows how to exec a single
// StartCommand string (§4.6).
func shellQuoteJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
