// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oshokin/pkgsync/internal/command"
)

// Call records one invocation made against the fake runner.
type Call struct {
	// Name is the executable name.
	Name string
	// Args is the exact argument list.
	Args []string
	// Elevated reports whether the call went through RunElevated.
	Elevated bool
}

// String renders the call the way scripted responses are keyed.
func (c Call) String() string {
	return Key(c.Name, c.Args...)
}

// Key builds the lookup key for a command line.
func Key(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// Runner replays scripted results instead of spawning processes.
// Unknown command lines fail the call with a descriptive error, which keeps
// tests honest about every subprocess they expect.
type Runner struct {
	mu sync.Mutex

	// Results maps a command line (see Key) to the result to return.
	Results map[string]command.Result
	// Sequences maps a command line to results consumed one per call,
	// before Results is consulted.
	Sequences map[string][]command.Result
	// Errors maps a command line to a launch error.
	Errors map[string]error
	// Calls accumulates every invocation in order.
	Calls []Call
}

// NewRunner returns an empty scripted runner.
func NewRunner() *Runner {
	return &Runner{
		Results:   make(map[string]command.Result),
		Sequences: make(map[string][]command.Result),
		Errors:    make(map[string]error),
	}
}

// Script registers a result for the given command line.
func (r *Runner) Script(result command.Result, name string, args ...string) {
	r.Results[Key(name, args...)] = result
}

// ScriptOnce queues a result consumed by a single call, so repeated
// invocations of the same command line can observe different outcomes.
func (r *Runner) ScriptOnce(result command.Result, name string, args ...string) {
	key := Key(name, args...)
	r.Sequences[key] = append(r.Sequences[key], result)
}

// Run implements command.Runner.
func (r *Runner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	return r.record(name, args, false)
}

// RunElevated implements command.Runner.
func (r *Runner) RunElevated(_ context.Context, name string, args ...string) (command.Result, error) {
	return r.record(name, args, true)
}

// CallLines returns the recorded command lines in order.
func (r *Runner) CallLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := make([]string, 0, len(r.Calls))
	for _, call := range r.Calls {
		lines = append(lines, call.String())
	}

	return lines
}

// CountCalls returns how many times the given command line was invoked.
func (r *Runner) CountCalls(name string, args ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		key   = Key(name, args...)
		count int
	)

	for _, call := range r.Calls {
		if call.String() == key {
			count++
		}
	}

	return count
}

func (r *Runner) record(name string, args []string, elevated bool) (command.Result, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Name: name, Args: args, Elevated: elevated})
	r.mu.Unlock()

	key := Key(name, args...)

	if err, ok := r.Errors[key]; ok {
		return command.Result{}, err
	}

	r.mu.Lock()
	queue := r.Sequences[key]
	r.mu.Unlock()

	if len(queue) > 0 {
		result := queue[0]
		r.mu.Lock()
		r.Sequences[key] = queue[1:]
		r.mu.Unlock()

		return result, nil
	}

	if result, ok := r.Results[key]; ok {
		return result, nil
	}

	return command.Result{}, fmt.Errorf("commandtest: no scripted result for %q", key)
}
