package command

import (
	"context"
	"strings"
	"sync"
)

// Fake is a scripted Runner. Responses are keyed by the command line
// ("vagrant up", "vagrant ssh-config vm1"); unknown commands succeed with
// empty output.
type Fake struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []Command
}

type fakeResponse struct {
	result Result
	err    error
}

func NewFake() *Fake {
	return &Fake{responses: make(map[string]fakeResponse)}
}

// On scripts the result for a command line.
func (f *Fake) On(line string, res Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = fakeResponse{result: res}
	return f
}

// Fail scripts an invocation failure for a command line.
func (f *Fake) Fail(line string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = fakeResponse{err: err}
	return f
}

func (f *Fake) Run(_ context.Context, c Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	resp := f.responses[Line(c)]
	return resp.result, resp.err
}

// Calls returns every command run so far.
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

// Lines returns the command line of every call so far.
func (f *Fake) Lines() []string {
	var lines []string
	for _, c := range f.Calls() {
		lines = append(lines, Line(c))
	}
	return lines
}

// Line joins a command's name and arguments with spaces.
func Line(c Command) string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}
