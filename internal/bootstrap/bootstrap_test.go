package bootstrap

import (
	"context"
	"testing"

	"github.com/devops-agent/gateway/internal/platform/errors"
)

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{"config:load", "logging:init", "clients:init", "mcp:init"}

	if len(steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Errorf("step[%d] = %s, want %s", i, step.ID, want[i])
		}
	}
}

func TestExecuteInitStepsRejectsUnsatisfiedDependency(t *testing.T) {
	steps := []initStep{
		{
			ID:        "b",
			DependsOn: []string{"a"},
			Execute:   func(ctx context.Context, state *appState) error { return nil },
		},
	}

	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil {
		t.Fatal("expected dependency error")
	}
	if !errors.IsKind(err, errors.KindBootstrap) {
		t.Errorf("expected bootstrap error, got %v", err)
	}
}

func TestLoadConfigStepAppliesOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	state := &appState{opts: Options{Transport: "sse", IP: "127.0.0.1", Port: 9000}}
	if err := loadConfigStep(context.Background(), state); err != nil {
		t.Fatalf("loadConfigStep error: %v", err)
	}

	if state.config.Server.Transport != "sse" {
		t.Errorf("transport = %s", state.config.Server.Transport)
	}
	if state.config.Server.IP != "127.0.0.1" || state.config.Server.Port != 9000 {
		t.Errorf("addr = %s:%d", state.config.Server.IP, state.config.Server.Port)
	}
}

func TestLoadConfigStepRejectsUnknownTransport(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	state := &appState{opts: Options{Transport: "websocket"}}
	err := loadConfigStep(context.Background(), state)
	if err == nil {
		t.Fatal("expected error for unknown transport")
	}
	if !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestInitMCPRegistersZenTaoOnlyWhenConfigured(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("ZENTAO_URL", "")
	t.Setenv("ZENTAO_ACCOUNT", "")

	state := &appState{}
	ctx := context.Background()
	for _, step := range InitGraph() {
		if err := step.Execute(ctx, state); err != nil {
			t.Fatalf("step %s error: %v", step.ID, err)
		}
	}

	for _, name := range state.registry.Names() {
		if len(name) >= 7 && name[:7] == "zentao_" {
			t.Errorf("zentao tool %s registered without configuration", name)
		}
	}
	if len(state.registry.Names()) == 0 {
		t.Error("no tools registered")
	}

	// 配置禅道后重新初始化，工具应出现
	t.Setenv("ZENTAO_URL", "http://zentao.local")
	t.Setenv("ZENTAO_ACCOUNT", "admin")
	t.Setenv("ZENTAO_PASSWORD", "secret")

	state = &appState{}
	for _, step := range InitGraph() {
		if err := step.Execute(ctx, state); err != nil {
			t.Fatalf("step %s error: %v", step.ID, err)
		}
	}

	found := false
	for _, name := range state.registry.Names() {
		if name == "zentao_create_bug" {
			found = true
		}
	}
	if !found {
		t.Error("zentao tools missing after configuration")
	}
}
