// Package workflow builds Amazon States Language definitions for the
// personalization pipelines.
//
// Only the constructs the pipelines need are modelled: Lambda invocations,
// Glue job starts, fixed waits, parallel fan-outs and a terminal success.
// No Retry or Catch blocks are emitted; a failing step fails the execution.
package workflow

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Service integration resources.
const (
	LambdaInvokeResource    = "arn:aws:states:::lambda:invoke"
	GlueStartJobRunResource = "arn:aws:states:::glue:startJobRun"
)

// MaxStateNameLength is the service limit on state names.
const MaxStateNameLength = 80

// State is one rendered ASL state.
type State struct {
	Type       string         `json:"Type"`
	Resource   string         `json:"Resource,omitempty"`
	Parameters map[string]any `json:"Parameters,omitempty"`
	ResultPath *string        `json:"ResultPath,omitempty"`
	Seconds    int            `json:"Seconds,omitempty"`
	Branches   []Machine      `json:"Branches,omitempty"`
	Next       string         `json:"Next,omitempty"`
	End        bool           `json:"End,omitempty"`
}

// Machine is a rendered state machine or parallel branch.
type Machine struct {
	Comment string           `json:"Comment,omitempty"`
	StartAt string           `json:"StartAt"`
	States  map[string]State `json:"States"`
}

// Step is a chainable workflow step.
type Step interface {
	StateName() string
	state() State
	branches() []Step
	terminal() bool
}

type task struct {
	name       string
	resource   string
	parameters map[string]any
	resultPath *string
}

func (t *task) StateName() string { return t.name }
func (t *task) branches() []Step  { return nil }
func (t *task) terminal() bool    { return false }
func (t *task) state() State {
	return State{Type: "Task", Resource: t.resource, Parameters: t.parameters, ResultPath: t.resultPath}
}

// TaskStep is a Task state with an optional result path.
type TaskStep struct{ *task }

// WithResultPath sets where the task result is written in the state input.
func (t TaskStep) WithResultPath(path string) TaskStep {
	t.resultPath = &path
	return t
}

// LambdaInvoke invokes functionArn with the state input as payload.
func LambdaInvoke(name, functionArn string) TaskStep {
	return TaskStep{&task{
		name:     name,
		resource: LambdaInvokeResource,
		parameters: map[string]any{
			"FunctionName": functionArn,
			"Payload.$":    "$",
		},
	}}
}

// GlueStartJobRun starts jobName and continues without waiting for it.
func GlueStartJobRun(name, jobName string) TaskStep {
	return TaskStep{&task{
		name:       name,
		resource:   GlueStartJobRunResource,
		parameters: map[string]any{"JobName": jobName},
	}}
}

type wait struct {
	name    string
	seconds int
}

// Wait pauses for a fixed number of seconds.
func Wait(name string, seconds int) Step { return &wait{name: name, seconds: seconds} }

func (w *wait) StateName() string { return w.name }
func (w *wait) branches() []Step  { return nil }
func (w *wait) terminal() bool    { return false }
func (w *wait) state() State      { return State{Type: "Wait", Seconds: w.seconds} }

type parallel struct {
	name string
	legs []Step
}

// Parallel runs every branch concurrently and waits for all of them.
func Parallel(name string, branches ...Step) Step { return &parallel{name: name, legs: branches} }

func (p *parallel) StateName() string { return p.name }
func (p *parallel) branches() []Step  { return p.legs }
func (p *parallel) terminal() bool    { return false }
func (p *parallel) state() State      { return State{Type: "Parallel"} }

type succeed struct{ name string }

// Succeed ends the execution successfully.
func Succeed(name string) Step { return &succeed{name: name} }

func (s *succeed) StateName() string { return s.name }
func (s *succeed) branches() []Step  { return nil }
func (s *succeed) terminal() bool    { return true }
func (s *succeed) state() State      { return State{Type: "Succeed"} }

// Chain links steps sequentially and validates the result.
func Chain(steps ...Step) (Machine, error) {
	m, err := chain(steps)
	if err != nil {
		return Machine{}, err
	}
	if err := Validate(m); err != nil {
		return Machine{}, err
	}
	return m, nil
}

func chain(steps []Step) (Machine, error) {
	if len(steps) == 0 {
		return Machine{}, errors.New("workflow: no steps")
	}
	m := Machine{StartAt: steps[0].StateName(), States: make(map[string]State, len(steps))}
	for i, st := range steps {
		name := st.StateName()
		if _, dup := m.States[name]; dup {
			return Machine{}, fmt.Errorf("workflow: duplicate state %q", name)
		}
		s := st.state()
		if st.terminal() && i != len(steps)-1 {
			return Machine{}, fmt.Errorf("workflow: state %q follows terminal state %q", steps[i+1].StateName(), name)
		}
		if legs := st.branches(); s.Type == "Parallel" {
			if len(legs) == 0 {
				return Machine{}, fmt.Errorf("workflow: parallel state %q has no branches", name)
			}
			for _, leg := range legs {
				b, err := chain([]Step{leg})
				if err != nil {
					return Machine{}, fmt.Errorf("workflow: parallel state %q: %w", name, err)
				}
				s.Branches = append(s.Branches, b)
			}
		}
		if !st.terminal() {
			if i+1 < len(steps) {
				s.Next = steps[i+1].StateName()
			} else {
				s.End = true
			}
		}
		m.States[name] = s
	}
	return m, nil
}

// Validate checks a machine: unique non-empty names across all branches,
// valid transitions and positive waits.
func Validate(m Machine) error {
	seen := map[string]bool{}
	return validate(m, seen)
}

func validate(m Machine, seen map[string]bool) error {
	if _, ok := m.States[m.StartAt]; !ok {
		return fmt.Errorf("workflow: StartAt %q is not a state", m.StartAt)
	}
	var errs []error
	for name, s := range m.States {
		switch {
		case name == "":
			errs = append(errs, errors.New("workflow: empty state name"))
		case len(name) > MaxStateNameLength:
			errs = append(errs, fmt.Errorf("workflow: state name %q exceeds %d characters", name, MaxStateNameLength))
		case seen[name]:
			errs = append(errs, fmt.Errorf("workflow: state name %q is not unique", name))
		}
		seen[name] = true

		if s.Type == "Wait" && s.Seconds <= 0 {
			errs = append(errs, fmt.Errorf("workflow: wait %q must be positive", name))
		}
		if s.Type != "Succeed" {
			if s.End == (s.Next != "") {
				errs = append(errs, fmt.Errorf("workflow: state %q must have exactly one of Next or End", name))
			}
			if s.Next != "" {
				if _, ok := m.States[s.Next]; !ok {
					errs = append(errs, fmt.Errorf("workflow: state %q transitions to unknown state %q", name, s.Next))
				}
			}
		}
		for _, b := range s.Branches {
			if err := validate(b, seen); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// JSON renders the machine.
func (m Machine) JSON() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("render workflow: %w", err)
	}
	return string(b), nil
}

// StateNames lists the states in execution order, descending into parallel
// branches in declaration order.
func (m Machine) StateNames() []string {
	var out []string
	for name := m.StartAt; name != ""; {
		s, ok := m.States[name]
		if !ok {
			break
		}
		out = append(out, name)
		for _, b := range s.Branches {
			out = append(out, b.StateNames()...)
		}
		name = s.Next
	}
	return out
}
