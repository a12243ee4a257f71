package cli

import (
	"context"
	"testing"
	"time"

	"gastos/internal/log"
	"gastos/internal/services"
)

type stubRunner struct {
	state services.State
	runs  int
}

func (r *stubRunner) Run(context.Context, services.Trigger) services.Outcome {
	r.runs++
	return services.Outcome{State: r.state}
}

func window() services.GateRegistry {
	return services.DefaultGates(services.MonthlyWindowGate{Day: 1, Hour: 7, Location: time.UTC})
}

func TestRunGatedOutsideWindowOpensNothing(t *testing.T) {
	built := false
	build := func(context.Context) (Runner, func()) {
		built = true
		return &stubRunner{}, func() {}
	}
	trig := services.Trigger{Source: services.SourceCron, Now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}

	if code := RunGated(context.Background(), log.Discard(), window(), trig, build); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if built {
		t.Fatal("collaborators were opened for an out-of-window trigger")
	}
}

func TestRunGatedInsideWindow(t *testing.T) {
	for _, tt := range []struct {
		name  string
		trig  services.Trigger
		state services.State
		want  int
	}{
		{"window", services.Trigger{Source: services.SourceCron, Now: time.Date(2024, 2, 1, 7, 10, 0, 0, time.UTC)}, services.StateDelivered, 0},
		{"forced", services.Trigger{Source: services.SourceCron, Force: true, Now: time.Date(2024, 2, 9, 22, 0, 0, 0, time.UTC)}, services.StateDelivered, 0},
		{"failed", services.Trigger{Source: services.SourceCron, Now: time.Date(2024, 2, 1, 7, 10, 0, 0, time.UTC)}, services.StateFailed, 1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{state: tt.state}
			closed := false
			build := func(context.Context) (Runner, func()) {
				return runner, func() { closed = true }
			}

			if code := RunGated(context.Background(), log.Discard(), window(), tt.trig, build); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
			if runner.runs != 1 {
				t.Errorf("runs = %d, want 1", runner.runs)
			}
			if !closed {
				t.Error("collaborators were not closed")
			}
		})
	}
}

func TestRunGatedUnknownSource(t *testing.T) {
	build := func(context.Context) (Runner, func()) {
		t.Fatal("build called for an unknown source")
		return nil, nil
	}
	trig := services.Trigger{Source: "pager", Now: time.Now()}
	if code := RunGated(context.Background(), log.Discard(), window(), trig, build); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
