package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/history"
)

func TestRenderTasks(t *testing.T) {
	var buf bytes.Buffer
	renderTasks(&buf, []*entities.TaskConfig{
		{ID: "album", Name: "相册", TargetURL: "https://example.com/album", IntervalSeconds: 600, DestinationPath: "/photos", Active: true},
		{ID: "wall", Name: "壁纸", TargetURL: "https://example.com/wall", Automation: entities.AutomationConfig{Engine: "static"}},
	})

	out := buf.String()
	for _, want := range []string{"album", "相册", "10m0s", "/photos", "static", "true", "5m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTasks_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderTasks(&buf, nil)
	if got := strings.TrimSpace(buf.String()); got != "No tasks configured" {
		t.Errorf("renderTasks(nil) = %q", got)
	}
}

func TestShowHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{DataDir: dir, HistoryDriver: "sqlite"}}

	store, err := history.OpenSQLite(dir + "/history.db")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.Local)
	for _, rec := range []*entities.DownloadRecord{
		{TaskID: "album", Fingerprint: "a", Status: entities.RecordStatusSuccess, Timestamp: at},
		{TaskID: "album", Fingerprint: "b", Status: entities.RecordStatusFailed, Timestamp: at},
	} {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	store.Close()

	var buf bytes.Buffer
	if err := showHistory(ctx, &buf, cfg, "album"); err != nil {
		t.Fatalf("showHistory() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "2026-03-01 08:30:00") {
		t.Errorf("last success time missing:\n%s", out)
	}
	if !strings.Contains(out, "album") {
		t.Errorf("task id missing:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := versionCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "photorelay dev") {
		t.Errorf("version output = %q", buf.String())
	}
}
