package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/pipegraph/pipegraph/enginerr"
)

func TestSerial_RunsInline(t *testing.T) {
	p := NewSerial()
	defer p.Close()
	job := Job{RunFunc: func(context.Context) (map[string]any, error) {
		return map[string]any{"out": 1}, nil
	}}
	f, err := p.Submit(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out["out"] != 1 {
		t.Errorf("unexpected out: %v", out)
	}
}

func TestSerial_RequiresRunFunc(t *testing.T) {
	p := NewSerial()
	if _, err := p.Submit(context.Background(), Job{Remote: &RemoteJob{ComputeName: "x"}}); err == nil {
		t.Error("expected an error for a Job with no RunFunc")
	}
}

func TestWorkerPool_RunsConcurrently(t *testing.T) {
	p, err := NewWorkerPool(2)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	futures := make([]Future, 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		job := Job{RunFunc: func(context.Context) (map[string]any, error) {
			return map[string]any{"out": i}, nil
		}}
		f, err := p.Submit(context.Background(), job)
		if err != nil {
			t.Fatal(err)
		}
		futures = append(futures, f)
	}
	seen := map[int]bool{}
	for _, f := range futures {
		out, err := f.Wait(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		seen[out["out"].(int)] = true
	}
	for i := 0; i < 5; i++ {
		if !seen[i] {
			t.Errorf("missing result for job %d", i)
		}
	}
}

func TestIsRemoteOnly(t *testing.T) {
	if IsRemoteOnly(NewSerial()) {
		t.Error("Serial should not be remote-only")
	}
	pp := NewProcessPool("/bin/true", 1)
	if !IsRemoteOnly(pp) {
		t.Error("ProcessPool should be remote-only")
	}
}

func TestComputeRegistry_LookupUnknown(t *testing.T) {
	r := NewComputeRegistry()
	_, err := r.Lookup("missing")
	var unknownCompute *enginerr.UnknownComputeError
	if !errors.As(err, &unknownCompute) {
		t.Fatalf("expected *enginerr.UnknownComputeError, got %v", err)
	}
	if unknownCompute.Name != "missing" {
		t.Errorf("unexpected Name: %s", unknownCompute.Name)
	}
	r.Register("echo", func(_ context.Context, in map[string]any) (map[string]any, error) {
		return in, nil
	})
	fn, err := r.Lookup("echo")
	if err != nil {
		t.Fatal(err)
	}
	out, err := fn(context.Background(), map[string]any{"a": 1})
	if err != nil || out["a"] != 1 {
		t.Errorf("unexpected result: %v, %v", out, err)
	}
}

func TestRunRemote(t *testing.T) {
	r := NewComputeRegistry()
	r.Register("double", func(_ context.Context, in map[string]any) (map[string]any, error) {
		return map[string]any{"out": in["a"].(int) * 2}, nil
	})
	resp := RunRemote(context.Background(), r, RemoteJob{ComputeName: "double", Inputs: map[string]any{"a": 4}})
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	if resp.Out["out"] != 8 {
		t.Errorf("unexpected out: %v", resp.Out)
	}
}

func TestRunRemote_UnknownCompute(t *testing.T) {
	r := NewComputeRegistry()
	resp := RunRemote(context.Background(), r, RemoteJob{ComputeName: "missing"})
	if resp.Err == "" {
		t.Error("expected an error in the response")
	}
}

func TestRegistry_BuildUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("missing")
	var unknownPlugin *enginerr.UnknownPluginError
	if !errors.As(err, &unknownPlugin) {
		t.Fatalf("expected *enginerr.UnknownPluginError, got %v", err)
	}
	if unknownPlugin.Name != "missing" {
		t.Errorf("unexpected Name: %s", unknownPlugin.Name)
	}
}

func TestRegistry_BuildInvokesFactory(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("serial", func() (Plugin, error) {
		calls++
		return NewSerial(), nil
	})
	p, err := r.Build("serial")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if calls != 1 {
		t.Errorf("expected the factory to run once, ran %d times", calls)
	}
	if _, ok := p.(*Serial); !ok {
		t.Errorf("expected a *Serial, got %T", p)
	}
}

func TestRegistry_BuildPropagatesFactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("processpool", func() (Plugin, error) {
		return nil, boom
	})
	if _, err := r.Build("processpool"); !errors.Is(err, boom) {
		t.Errorf("expected the factory's own error to propagate, got %v", err)
	}
}
