// Package services provides the report orchestration and the bot command
// handling built on top of the record store, renderer and delivery client.
//
// This file implements the run gate as a set of strategies, one per trigger
// source, that decide whether a trigger may start a report run.

package services

import (
	"fmt"
	"time"
)

// RunGate is the strategy interface deciding whether a trigger may run.
type RunGate interface {
	ShouldRun(t Trigger) bool
}

// ForceGate lets forced triggers through.
type ForceGate struct{}

func (ForceGate) ShouldRun(t Trigger) bool {
	return t.Force
}

// MonthlyWindowGate opens during one hour of one day each month, evaluated
// in Location.
type MonthlyWindowGate struct {
	Day      int
	Hour     int
	Location *time.Location
}

// ShouldRun returns true when the trigger time falls on Day at Hour.
func (g MonthlyWindowGate) ShouldRun(t Trigger) bool {
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.Now.In(loc)
	return local.Day() == g.Day && local.Hour() == g.Hour
}

// OpenGate always lets triggers through. Used when the caller already
// decided the time is right, like the in-process cron or an explicit request.
type OpenGate struct{}

func (OpenGate) ShouldRun(Trigger) bool { return true }

// AnyGate opens when any of its gates opens.
type AnyGate []RunGate

func (g AnyGate) ShouldRun(t Trigger) bool {
	for _, gate := range g {
		if gate.ShouldRun(t) {
			return true
		}
	}
	return false
}

// GateRegistry maps trigger sources to their gates.
type GateRegistry map[TriggerSource]RunGate

// DefaultGates builds the registry used in production. The external cron
// and queue requests pass inside the window or when forced. The in-process
// scheduler has already picked its time.
func DefaultGates(window MonthlyWindowGate) GateRegistry {
	return GateRegistry{
		SourceCron:      AnyGate{ForceGate{}, window},
		SourceScheduler: OpenGate{},
		SourceQueue:     AnyGate{ForceGate{}, window},
	}
}

// For returns the gate for a trigger source.
func (r GateRegistry) For(source TriggerSource) (RunGate, error) {
	gate, ok := r[source]
	if !ok {
		return nil, fmt.Errorf("unknown trigger source: %s", source)
	}
	return gate, nil
}

// Register adds or replaces the gate for a source.
func (r GateRegistry) Register(source TriggerSource, gate RunGate) {
	r[source] = gate
}
