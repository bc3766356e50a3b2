package server

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/internal/config"
	"github.com/2018wzh/llm-doc-parser/internal/home"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/server/endpoints"
	"github.com/2018wzh/llm-doc-parser/internal/testutil"
)

func TestServer_FullLifecycle(t *testing.T) {
	cfg := testutil.NewServerConfig(t)
	llm := newFakeLLM(t, `[{"field":"name","type":"text","value":"张三"}]`)

	content := fmt.Sprintf("default_provider: custom\nproviders:\n  custom:\n    base_url: %s\nstorage:\n  backend: local\n", llm.URL)
	if err := os.WriteFile(cfg.ConfigFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager(cfg.ConfigFile, "")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h, err := home.New(cfg.HomeDir)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		ConfigManager: mgr,
		Home:          h,
		Logger:        cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)
	starter := testutil.StartServer{Cancel: serverCancel, Done: serverErr}
	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	client := api.NewClient(cfg.URL())
	if err := client.WaitHealthy(ctx, 10*time.Second); err != nil {
		starter.Stop()
		t.Fatalf("server did not start: %v", err)
	}

	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	t.Run("extract over http", func(t *testing.T) {
		var resp endpoints.ExtractResponse
		err := client.Post(ctx, "/api/v1/extract", map[string]any{
			"source": "raw",
			"file":   "张三",
			"schema": personSchemaJSON,
		}, &resp)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if len(resp.Data) != 1 || resp.Data[0].Value != "张三" {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	serverCancel()
	if err := testutil.WaitForShutdown(serverErr, 35*time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

func TestServer_ConfigReload(t *testing.T) {
	cfg := testutil.NewServerConfig(t)
	llm := newFakeLLM(t, "[]")

	write := func(defaultProvider string) {
		content := fmt.Sprintf("default_provider: %s\nproviders:\n  custom:\n    base_url: %s\nstorage:\n  backend: local\n", defaultProvider, llm.URL)
		if err := os.WriteFile(cfg.ConfigFile, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("custom")

	mgr, err := config.NewManager(cfg.ConfigFile, "")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	srv, err := New(Config{ConfigManager: mgr, Logger: cfg.Logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	before := srv.Services()

	mgr.WatchConfig()
	time.Sleep(100 * time.Millisecond)
	write("claude")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Factory().Default() != providers.Claude {
		time.Sleep(50 * time.Millisecond)
	}
	if srv.Factory().Default() != providers.Claude {
		t.Fatalf("factory default = %s after reload, want claude", srv.Factory().Default())
	}
	if srv.Services() == before {
		t.Error("expected services to be rebuilt on reload")
	}
}
