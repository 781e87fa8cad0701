package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsgraph/internal/api"
	"newsgraph/internal/config"
	"newsgraph/internal/content"
	"newsgraph/internal/daemon"
	"newsgraph/internal/logging"
	"newsgraph/internal/stage"
	"newsgraph/internal/testsupport"
	"newsgraph/internal/workflow"
)

type noopStage struct{}

func (noopStage) Execute(context.Context, *content.Work) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("triage")
}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	client     *api.Client
	apiURL     string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("NEWSGRAPH_API_TOKEN", "")

	configPath := filepath.Join(homeDir, ".config", "newsgraph", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	queueStore := testsupport.MustOpenQueue(t, cfg)
	knowledgeStore := testsupport.MustOpenKnowledge(t, cfg)

	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, queueStore, logger, workflow.WithDrainTimeout(200*time.Millisecond))
	mgr.ConfigureStages(workflow.StageSet{Triage: noopStage{}})

	d, err := daemon.New(cfg, daemon.Dependencies{
		Queue:     queueStore,
		Knowledge: knowledgeStore,
		Workflow:  mgr,
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })

	apiURL := "http://" + d.APIAddress()
	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		client:     api.NewClient(apiURL, cfg.API.Token),
		apiURL:     apiURL,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, apiURL, configPath, "")
}

func runCLIWithInput(t *testing.T, args []string, apiURL, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if apiURL != "" {
		flags = append(flags, "--api", apiURL)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	body := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[api]\nbind = %q\n\n[llm]\napi_key = %q\n\n[prompts]\npath = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.API.Bind,
		cfg.LLM.APIKey,
		cfg.Prompts.Path,
	)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitForStatus(t *testing.T, client *api.Client, id, want string) api.ItemStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		item, err := client.Item(context.Background(), id)
		if err == nil && item.Status == want {
			return item
		}
		if time.Now().After(deadline) {
			t.Fatalf("item %s never reached %s (last %+v, err %v)", id, want, item, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
