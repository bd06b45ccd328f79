package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

// setup writes a config.yaml into a fresh working directory.
func setup(t *testing.T, endpoint string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	simulation := endpoint == ""
	content := fmt.Sprintf(`
endpoint:
  url: %q
  simulation_mode: %t
  simulation_delay_min: 0s
  simulation_delay_max: 0s
cache:
  backend: file
  dir: %q
retry:
  max_attempts: 2
  delay: 0s
logging:
  level: error
`, endpoint, simulation, filepath.Join(dir, "cache"))
	require.NoError(t, os.WriteFile("config.yaml", []byte(content), 0o644))
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "invtracker dev")
}

func TestRun_Usage(t *testing.T) {
	setup(t, "")

	code, _, errOut := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "Commands:")

	code, _, errOut = runCLI(t, "teleport")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, `unknown command "teleport"`)

	code, _, _ = runCLI(t, "borrow", "-name", "Sony A7 III")
	assert.Equal(t, exitUsage, code)

	code, _, _ = runCLI(t, "cache", "defrag")
	assert.Equal(t, exitUsage, code)
}

func TestRun_SimulatedBorrowFlow(t *testing.T) {
	setup(t, "")

	code, out, _ := runCLI(t, "inventory", "-type", "camera", "-status", "available")
	require.Equal(t, exitOK, code)
	var inv core.Inventory
	require.NoError(t, json.Unmarshal([]byte(out), &inv))
	require.Len(t, inv, 1)
	for _, item := range inv["camera"] {
		assert.Equal(t, core.StatusAvailable, item.Status)
	}

	code, out, _ = runCLI(t, "borrow", "-borrower", "Maya Sari", "-type", "camera", "-name", "Sony A7 III")
	require.Equal(t, exitOK, code)
	var res writeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Queued)
	assert.JSONEq(t, `{"action":"borrow","equipment":"Sony A7 III","borrower":"Maya Sari"}`, string(res.Result))

	// a second process sees the borrow through the file cache
	code, out, _ = runCLI(t, "borrowed")
	require.Equal(t, exitOK, code)
	var items []core.BorrowedItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Contains(t, items, core.BorrowedItem{Name: "Sony A7 III", Type: "camera", Borrower: "Maya Sari"})

	code, _, errOut := runCLI(t, "borrow", "-borrower", "Budi", "-type", "camera", "-name", "Sony A7 III")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "Maya Sari")

	code, _, _ = runCLI(t, "return", "-borrower", "Maya Sari", "-name", "Sony A7 III", "-condition", "excellent")
	assert.Equal(t, exitOK, code)
}

func TestRun_QueueAndSync(t *testing.T) {
	var healthy atomic.Bool
	var writes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Method == http.MethodPost {
			writes.Add(1)
		}
		_, _ = w.Write([]byte(`{"success":true,"result":{"action":"borrow"}}`))
	}))
	defer server.Close()
	setup(t, server.URL)

	code, out, _ := runCLI(t, "borrow", "-borrower", "Maya Sari", "-type", "camera", "-name", "Sony A7 III")
	require.Equal(t, exitOK, code)
	var res writeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Queued)
	assert.NotEmpty(t, res.ID)

	code, out, _ = runCLI(t, "stats")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, `"queued": 1`)

	healthy.Store(true)
	code, out, _ = runCLI(t, "sync")
	require.Equal(t, exitOK, code)
	assert.JSONEq(t, `{"replayed":1,"failed":0,"remaining":0}`, out)
	assert.Equal(t, int32(1), writes.Load())

	code, out, _ = runCLI(t, "ping")
	assert.Equal(t, exitOK, code)
	assert.JSONEq(t, `{"online":true}`, out)
}

func TestRun_CacheCommands(t *testing.T) {
	setup(t, "")

	code, _, _ := runCLI(t, "inventory")
	require.Equal(t, exitOK, code)

	code, out, _ := runCLI(t, "cache", "stats")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, `"backend": "file"`)

	code, out, _ = runCLI(t, "cache", "cleanup")
	require.Equal(t, exitOK, code)
	assert.JSONEq(t, `{"removed":0}`, out)

	code, _, _ = runCLI(t, "cache", "clear")
	require.Equal(t, exitOK, code)

	code, out, _ = runCLI(t, "cache", "stats")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, `"items": 0`)
}

func TestRun_MetricsFile(t *testing.T) {
	setup(t, "")
	path := filepath.Join(t.TempDir(), "invtracker.prom")

	code, _, _ := runCLI(t, "-metrics-file", path, "inventory")
	require.Equal(t, exitOK, code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "invtracker_requests_total")
}

func TestSelectInventory(t *testing.T) {
	inv := core.Inventory{
		"camera": {{Name: "a", Status: core.StatusAvailable}, {Name: "b", Status: core.StatusBorrowed}},
		"laptop": {{Name: "c", Status: core.StatusBorrowed}},
	}

	assert.Equal(t, inv, selectInventory(inv, "", ""))
	assert.Equal(t, core.Inventory{"camera": {{Name: "b", Status: core.StatusBorrowed}}}, selectInventory(inv, "CAMERA", "borrowed"))
	assert.Equal(t, core.Inventory{
		"camera": {{Name: "b", Status: core.StatusBorrowed}},
		"laptop": {{Name: "c", Status: core.StatusBorrowed}},
	}, selectInventory(inv, "", core.StatusBorrowed))
}
