// Package driver runs interactive command-line programs from a script of
// expectations and responses.
//
// A Session owns one child process on a pseudo-terminal. Steps are declared
// with the chainable builder methods and executed by Run:
//
//	err := driver.Spawn("amplify", []string{"geo", "add"}, driver.Options{Dir: dir, StripColors: true}).
//		Wait("Provide a name for the Map:").
//		SendLine("myMap").
//		Run(ctx)
//
// Output is buffered from the first byte. Each Wait consumes the buffer up to
// and including its match, so a repeated prompt never satisfies two steps.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencode-ai/e2ecore/internal/logging"
)

const (
	// DefaultTimeout is how long an expectation may go without output.
	DefaultTimeout   = 5 * time.Minute
	defaultExitGrace = 500 * time.Millisecond
	defaultKillWait  = 2 * time.Second
	defaultLines     = 50
	readChunkSize    = 4096
	maxEventLine     = 1024
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Options configure a session.
type Options struct {
	// Name labels the session in logs and events.
	Name string
	Dir  string
	Env  []string

	// StripColors removes ANSI escape sequences before matching.
	StripColors bool

	// Timeout bounds how long the session may go without output while
	// waiting. Zero means DefaultTimeout.
	Timeout time.Duration

	// AllowNonZeroExit makes a failing exit status after a complete script
	// a success.
	AllowNonZeroExit bool

	// LineTerminator is appended by SendLine; defaults to a carriage return.
	LineTerminator string

	// Launcher creates the process; defaults to a local pty.
	Launcher Launcher

	EventSink EventSink

	// Echo receives raw process output as it arrives.
	Echo io.Writer

	// TranscriptLines is how many output lines Transcript retains.
	TranscriptLines int

	// ExitGrace is how long to keep reading output after the process exits.
	ExitGrace time.Duration

	Now func() time.Time
}

// Session is one scripted run of an interactive command.
type Session struct {
	id   string
	cmd  Command
	opts Options

	mu        sync.Mutex
	steps     []Step
	state     State
	started   bool
	cancelled bool
	cancel    context.CancelFunc

	transcript *Transcript
	result     *outcome
}

// Spawn prepares a session for command. The process starts when Run is called.
func Spawn(command string, args []string, opts Options) *Session {
	opts = applyDefaults(opts)
	return &Session{
		id: uuid.New().String(),
		cmd: Command{
			Path: command,
			Args: append([]string(nil), args...),
			Dir:  opts.Dir,
			Env:  append([]string(nil), opts.Env...),
		},
		opts:       opts,
		state:      StateIdle,
		transcript: NewTranscript(opts.TranscriptLines, opts.StripColors),
		result:     newOutcome(),
	}
}

func applyDefaults(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.LineTerminator == "" {
		opts.LineTerminator = KeyCarriageReturn
	}
	if opts.Launcher == nil {
		opts.Launcher = PTYLauncher{}
	}
	if opts.EventSink == nil {
		opts.EventSink = NoopSink{}
	}
	if opts.TranscriptLines <= 0 {
		opts.TranscriptLines = defaultLines
	}
	if opts.ExitGrace <= 0 {
		opts.ExitGrace = defaultExitGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Command returns the command the session launches.
func (s *Session) Command() Command { return s.cmd }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Steps returns a copy of the declared steps.
func (s *Session) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Step(nil), s.steps...)
}

// Transcript returns the last output lines seen.
func (s *Session) Transcript() []string {
	return s.transcript.Lines()
}

// Done is closed once the session has resolved.
func (s *Session) Done() <-chan struct{} {
	return s.result.done
}

// Err returns the resolved outcome; only meaningful after Done is closed.
func (s *Session) Err() error {
	return s.result.Err()
}

// Append adds steps to the script. Steps added after Run has started are ignored.
func (s *Session) Append(steps ...Step) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		logger := logging.Component("driver")
		logger.Warn().Str("session_id", s.id).Int("steps", len(steps)).Msg("steps appended after start are ignored")
		return s
	}
	s.steps = append(s.steps, steps...)
	return s
}

// Wait appends an expectation for a literal substring.
func (s *Session) Wait(pattern string) *Session {
	return s.Append(ExpectText(pattern))
}

// WaitFor appends an expectation using a custom matcher.
func (s *Session) WaitFor(m Matcher) *Session {
	return s.Append(Expect(m))
}

// Send appends raw input.
func (s *Session) Send(data string) *Session {
	return s.Append(Send(data))
}

// SendLine appends text followed by the line terminator.
func (s *Session) SendLine(text string) *Session {
	return s.Append(Step{Kind: StepSend, Data: text + s.terminator()})
}

// SendCarriageReturn accepts the highlighted default of a prompt.
func (s *Session) SendCarriageReturn() *Session {
	return s.Append(SendKey("cr", KeyCarriageReturn))
}

// SendConfirmYes answers a yes/no prompt affirmatively.
func (s *Session) SendConfirmYes() *Session {
	return s.Append(SendKey("yes", ConfirmYes+s.terminator()))
}

// SendConfirmNo answers a yes/no prompt negatively.
func (s *Session) SendConfirmNo() *Session {
	return s.Append(SendKey("no", ConfirmNo+s.terminator()))
}

// SendKeyDown moves a list selection down one entry.
func (s *Session) SendKeyDown() *Session {
	return s.Append(SendKey("down", KeyDownArrow))
}

// SendKeyUp moves a list selection up one entry.
func (s *Session) SendKeyUp() *Session {
	return s.Append(SendKey("up", KeyUpArrow))
}

// SendEOF sends Ctrl-D.
func (s *Session) SendEOF() *Session {
	return s.Append(SendKey("ctrl-d", KeyCtrlD))
}

// SendCtrlC sends an interrupt.
func (s *Session) SendCtrlC() *Session {
	return s.Append(SendKey("ctrl-c", KeyCtrlC))
}

func (s *Session) terminator() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.LineTerminator
}

// AllowNonZeroExit declares a run that succeeds regardless of exit status.
func (s *Session) AllowNonZeroExit() *Session {
	s.mu.Lock()
	s.opts.AllowNonZeroExit = true
	s.mu.Unlock()
	return s
}

// Cancel aborts the session, killing the process if it is running.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RunAsync runs the session in the background and invokes done exactly once
// with the outcome.
func (s *Session) RunAsync(ctx context.Context, done func(error)) {
	go func() {
		err := s.Run(ctx)
		if done != nil {
			done(err)
		}
	}()
}

// Run launches the process, executes every step and returns nil on success
// or the first failure.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRun
	}
	s.started = true
	steps := append([]Step(nil), s.steps...)
	opts := s.opts
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	cancelled := s.cancelled
	s.state = StateRunning
	s.mu.Unlock()
	defer cancel()

	started := opts.Now()
	ex := &execution{session: s, opts: opts, steps: steps, buf: newMatchBuffer(opts.StripColors), stepStarted: started}

	var err error
	if cancelled {
		err = &CancelledError{Cause: ErrCancelled}
	} else {
		err = ex.run(runCtx, ctx)
	}

	if !s.result.resolve(err) {
		return s.result.Err()
	}

	state := stateFor(err)
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	data := ResolvedData{
		Outcome:        state,
		Duration:       opts.Now().Sub(started),
		StepsCompleted: ex.idx,
		StepsTotal:     len(steps),
	}
	if err != nil {
		data.Error = err.Error()
	}
	s.emit(context.WithoutCancel(ctx), EventTypeResolved, data)

	logger := logging.Component("driver")
	event := logger.Debug()
	if err != nil {
		event = logger.Info().Err(err)
	}
	event.Str("session_id", s.id).Str("name", opts.Name).Str("outcome", string(state)).Msg("session resolved")

	return err
}

func stateFor(err error) State {
	if err == nil {
		return StateSucceeded
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return StateTimedOut
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return StateCancelled
	}
	return StateFailed
}

func (s *Session) emit(ctx context.Context, eventType string, data any) {
	event := SessionEvent{
		Type:      eventType,
		Timestamp: s.opts.Now().UTC(),
		SessionID: s.id,
		Name:      s.opts.Name,
		Data:      data,
	}
	if err := s.opts.EventSink.Emit(ctx, event); err != nil {
		logger := logging.Component("driver")
		logger.Warn().Err(err).Str("type", eventType).Msg("failed to emit event")
	}
}

type exitResult struct {
	code int
	err  error
}

// execution holds the state of one Run; it is only touched by the goroutine
// executing Run.
type execution struct {
	session     *Session
	opts        Options
	steps       []Step
	idx         int
	buf         *matchBuffer
	proc        Process
	stepStarted time.Time
}

func (e *execution) run(ctx, parent context.Context) error {
	s := e.session
	logger := logging.Component("driver")

	if s.cmd.Path == "" {
		return &SpawnError{Command: s.cmd.Path, Err: ErrMissingCommand}
	}
	if err := parent.Err(); err != nil {
		return &CancelledError{Cause: err}
	}

	proc, err := e.opts.Launcher.Launch(ctx, s.cmd)
	if err != nil {
		if ctx.Err() != nil {
			return e.cancelled(parent)
		}
		return &SpawnError{Command: s.cmd.Path, Err: err}
	}
	e.proc = proc
	defer func() {
		if err := proc.Close(); err != nil {
			logger.Debug().Err(err).Msg("close process")
		}
	}()

	logger.Debug().Str("session_id", s.id).Str("command", s.cmd.String()).Int("steps", len(e.steps)).Msg("session spawned")
	s.emit(ctx, EventTypeSpawned, SpawnedData{
		Command: s.cmd.Path,
		Args:    s.cmd.Args,
		Dir:     s.cmd.Dir,
		Steps:   len(e.steps),
	})

	done := make(chan struct{})
	defer close(done)

	chunks := make(chan []byte, 64)
	go readChunks(proc, chunks, done)

	exitCh := make(chan exitResult, 1)
	go func() {
		code, err := proc.Wait()
		exitCh <- exitResult{code: code, err: err}
	}()

	if err := e.advance(ctx); err != nil {
		e.terminate(exitCh)
		return err
	}

	timer := time.NewTimer(e.opts.Timeout)
	defer timer.Stop()
	timeout := timer.C

	var exited *exitResult
	var drain <-chan time.Time
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				if exited != nil {
					return e.finish(ctx, *exited)
				}
				continue
			}
			e.observe(ctx, chunk)
			if err := e.advance(ctx); err != nil {
				e.terminate(exitCh)
				return err
			}
			if timeout != nil {
				resetTimer(timer, e.opts.Timeout)
			}

		case res := <-exitCh:
			exitCh = nil
			exited = &res
			if chunks == nil {
				return e.finish(ctx, res)
			}
			// Only the grace period bounds the wait once the process is gone.
			timer.Stop()
			timeout = nil
			drain = time.After(e.opts.ExitGrace)

		case <-drain:
			return e.finish(ctx, *exited)

		case <-timeout:
			e.terminate(exitCh)
			step := e.idx
			pattern := ""
			if step < len(e.steps) {
				pattern = e.steps[step].pattern()
			}
			return &TimeoutError{Step: step, Pattern: pattern, Timeout: e.opts.Timeout, Buffer: e.buf.String()}

		case <-ctx.Done():
			e.terminate(exitCh)
			return e.cancelled(parent)
		}
	}
}

// cancelled reports the caller's context error, or ErrCancelled when the
// session was cancelled through Cancel.
func (e *execution) cancelled(parent context.Context) error {
	cause := parent.Err()
	if cause == nil {
		cause = ErrCancelled
	}
	return &CancelledError{Step: e.idx, Cause: cause}
}

// advance executes steps until an expectation is not yet satisfied.
func (e *execution) advance(ctx context.Context) error {
	s := e.session
	for e.idx < len(e.steps) {
		step := e.steps[e.idx]
		switch step.Kind {
		case StepSend:
			if _, err := io.WriteString(e.proc, step.Data); err != nil {
				return &SendError{Step: e.idx, Err: err}
			}
			s.emit(ctx, EventTypeInputSent, InputSentData{Step: e.idx, Text: step.label()})
			e.idx++
			e.stepStarted = e.opts.Now()

		case StepExpect:
			if _, ok := e.buf.Consume(step.Matcher); !ok {
				return nil
			}
			now := e.opts.Now()
			s.emit(ctx, EventTypeStepMatched, StepMatchedData{
				Step:    e.idx,
				Pattern: step.pattern(),
				Waited:  now.Sub(e.stepStarted),
			})
			e.idx++
			e.stepStarted = now

		default:
			return fmt.Errorf("step %d: unknown kind %q", e.idx+1, step.Kind)
		}
	}
	return nil
}

func (e *execution) observe(ctx context.Context, chunk []byte) {
	s := e.session
	if e.opts.Echo != nil {
		if _, err := e.opts.Echo.Write(chunk); err != nil {
			logger := logging.Component("driver")
			logger.Warn().Err(err).Msg("failed to echo output")
		}
	}
	e.buf.Append(chunk)
	for _, line := range s.transcript.Write(chunk) {
		e.emitLine(ctx, line)
	}
}

func (e *execution) emitLine(ctx context.Context, line string) {
	truncated := false
	if len(line) > maxEventLine {
		line = line[:maxEventLine]
		truncated = true
	}
	e.session.emit(ctx, EventTypeOutputLine, OutputLineData{Line: line, Truncated: truncated})
}

func (e *execution) finish(ctx context.Context, res exitResult) error {
	s := e.session
	e.buf.Flush()
	if line := s.transcript.Flush(); line != "" {
		e.emitLine(ctx, line)
	}

	exit := ExitData{ExitCode: res.code}
	if res.err != nil {
		exit.Error = res.err.Error()
	}
	s.emit(ctx, EventTypeExit, exit)

	// Output read after the last chunk may complete an expectation; a send
	// that fails here lands on an exited process and is reported as the exit.
	if err := e.advance(ctx); err != nil {
		var sendErr *SendError
		if !errors.As(err, &sendErr) {
			return err
		}
	}

	if e.idx < len(e.steps) {
		return &UnexpectedExitError{
			ExitCode: res.code,
			Step:     e.idx,
			Pattern:  e.steps[e.idx].pattern(),
			Buffer:   e.buf.String(),
		}
	}
	if res.err != nil {
		return fmt.Errorf("wait for process: %w", res.err)
	}
	if res.code != 0 && !e.opts.AllowNonZeroExit {
		return &NonZeroExitError{ExitCode: res.code, Buffer: e.buf.String()}
	}
	return nil
}

// terminate kills the process and reaps it so nothing lingers.
func (e *execution) terminate(exitCh <-chan exitResult) {
	if err := e.proc.Kill(); err != nil {
		logger := logging.Component("driver")
		logger.Debug().Err(err).Msg("kill process")
	}
	if exitCh == nil {
		return
	}
	select {
	case <-exitCh:
	case <-time.After(defaultKillWait):
	}
}

func readChunks(r io.Reader, out chan<- []byte, done <-chan struct{}) {
	defer close(out)
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case out <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger := logging.Component("driver")
				logger.Debug().Err(err).Msg("output reader stopped")
			}
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// outcome is a single-assignment result shared by every exit path.
type outcome struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

// resolve records err if no outcome exists yet and reports whether it did.
func (o *outcome) resolve(err error) bool {
	resolved := false
	o.once.Do(func() {
		o.err = err
		close(o.done)
		resolved = true
	})
	return resolved
}

// Err returns the recorded outcome.
func (o *outcome) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}
