package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kws0109/QA-Automation-sub001/internal/device"
	"github.com/kws0109/QA-Automation-sub001/internal/driver"
	"github.com/kws0109/QA-Automation-sub001/internal/engine"
	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/config"
	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/logging"
	"github.com/kws0109/QA-Automation-sub001/internal/report"
	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// stubDriver answers every action and condition instantly.
type stubDriver struct{}

func (stubDriver) DispatchAction(_ context.Context, _, _ string, _ map[string]any) (*driver.ActionResult, error) {
	return &driver.ActionResult{Success: true}, nil
}

func (stubDriver) EvaluateCondition(_ context.Context, _, _ string, _ map[string]any) (*driver.ConditionResult, error) {
	return &driver.ConditionResult{Success: true, Branch: scenario.BranchYes}, nil
}

// testFixture bundles the server and its live registries for direct
// state manipulation in tests.
type testFixture struct {
	server      *httptest.Server
	srv         *Server
	devices     *device.Registry
	scenarios   *scenario.Registry
	coordinator *engine.Coordinator
}

// setupServer creates a running test server backed by in-memory SQLite
// and a stub driver.
func setupServer(t *testing.T) *testFixture {
	t.Helper()

	db := setupTestDB(t)

	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db))
	if err := deviceRegistry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("device RefreshCache: %v", err)
	}
	scenarioRegistry := scenario.NewRegistry(scenario.NewSQLiteRepository(db))
	if err := scenarioRegistry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("scenario RefreshCache: %v", err)
	}

	locks := engine.NewLockRegistry()
	runner := engine.NewRunner(stubDriver{}, 1000)
	queue := engine.NewQueue(locks, runner)
	coordinator := engine.NewCoordinator(queue, scenarioRegistry, deviceRegistry)

	reports := report.NewSQLiteRepository(db)
	coordinator.SetReportSink(reports)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.ServerTimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Auth: config.AuthConfig{
			JWTSecret: testJWTSecret,
			TokenTTL:  15,
			Username:  "operator",
			Password:  "correct-horse",
		},
		Logger:      log,
		Devices:     deviceRegistry,
		Scenarios:   scenarioRegistry,
		Coordinator: coordinator,
		Queue:       queue,
		Reports:     reports,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srv.hub = NewHub(srv.wsCfg, log)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	go srv.hub.Run(hubCtx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		coordinator.Close()
		queue.Close()
		hubCancel()
	})

	return &testFixture{
		server:      ts,
		srv:         srv,
		devices:     deviceRegistry,
		scenarios:   scenarioRegistry,
		coordinator: coordinator,
	}
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			platform TEXT NOT NULL,
			serial TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'offline',
			role TEXT NOT NULL DEFAULT 'testing',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE scenarios (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			nodes TEXT NOT NULL,
			connections TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE executions (
			id TEXT PRIMARY KEY,
			requester_name TEXT NOT NULL DEFAULT '',
			device_count INTEGER NOT NULL,
			scenario_count INTEGER NOT NULL,
			repeat_count INTEGER NOT NULL,
			units_total INTEGER NOT NULL,
			units_passed INTEGER NOT NULL,
			units_failed INTEGER NOT NULL,
			units_cancelled INTEGER NOT NULL,
			units_forced INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE TABLE execution_units (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
			device_id TEXT NOT NULL,
			scenario_id TEXT NOT NULL,
			repetition INTEGER NOT NULL,
			status TEXT NOT NULL,
			failed_node_id TEXT,
			message TEXT NOT NULL DEFAULT '',
			started_at TEXT,
			completed_at TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	return db
}

// loginToken obtains a bearer token from the login endpoint.
func loginToken(t *testing.T, fix *testFixture) string {
	t.Helper()

	body := `{"username": "operator", "password": "correct-horse"}`
	resp, err := http.Post(fix.server.URL+"/api/v1/auth/login", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return lr.AccessToken
}

// doRequest performs an authenticated request and decodes the JSON body.
func doRequest(t *testing.T, fix *testFixture, token, method, path string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, fix.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return resp
}

// validScenarioBody is a minimal start -> action -> end graph.
func validScenarioBody(name string) map[string]any {
	return map[string]any{
		"name": name,
		"nodes": []map[string]any{
			{"id": "start", "type": "start", "name": "Start"},
			{"id": "tap", "type": "action", "name": "Tap Login", "params": map[string]any{"action": "tap"}},
			{"id": "end", "type": "end", "name": "End"},
		},
		"connections": []map[string]any{
			{"id": "c1", "from": "start", "to": "tap"},
			{"id": "c2", "from": "tap", "to": "end"},
		},
	}
}

// ─── Health and Auth ────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	fix := setupServer(t)

	resp, err := http.Get(fix.server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	fix := setupServer(t)

	body := `{"username": "operator", "password": "wrong"}`
	resp, err := http.Post(fix.server.URL+"/api/v1/auth/login", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	fix := setupServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not a bearer token", "Basic abc123"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, fix.server.URL+"/api/v1/devices/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

// ─── Devices ────────────────────────────────────────────────────────────────

func TestDeviceCRUD(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	// Create
	var created device.Device
	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/devices/", map[string]any{
		"name":     "Pixel 8",
		"platform": "android",
		"serial":   "android-001",
	}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if created.ID == "" || created.Status != device.StatusOffline {
		t.Errorf("created device = %+v, want generated ID and offline status", created)
	}

	// Get
	var fetched device.Device
	resp = doRequest(t, fix, token, http.MethodGet, "/api/v1/devices/"+created.ID, nil, &fetched)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	if fetched.Name != "Pixel 8" {
		t.Errorf("fetched name = %q, want Pixel 8", fetched.Name)
	}

	// Patch
	var updated device.Device
	resp = doRequest(t, fix, token, http.MethodPatch, "/api/v1/devices/"+created.ID, map[string]any{
		"name": "Pixel 8 Pro",
	}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", resp.StatusCode)
	}
	if updated.Name != "Pixel 8 Pro" || updated.Serial != "android-001" {
		t.Errorf("patched device = %+v, want renamed with serial intact", updated)
	}

	// List
	var list struct {
		Count int `json:"count"`
	}
	doRequest(t, fix, token, http.MethodGet, "/api/v1/devices/", nil, &list)
	if list.Count != 1 {
		t.Errorf("list count = %d, want 1", list.Count)
	}

	// Delete
	resp = doRequest(t, fix, token, http.MethodDelete, "/api/v1/devices/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp = doRequest(t, fix, token, http.MethodGet, "/api/v1/devices/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateDevice_ValidationError(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/devices/", map[string]any{
		"name":     "Bad Platform",
		"platform": "windows",
		"serial":   "x",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create status = %d, want 400", resp.StatusCode)
	}
}

func TestDeviceSessionLifecycle(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	var created device.Device
	doRequest(t, fix, token, http.MethodPost, "/api/v1/devices/", map[string]any{
		"name":     "Session Device",
		"platform": "ios",
		"serial":   "ios-001",
	}, &created)

	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/devices/"+created.ID+"/session", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("begin session status = %d, want 200", resp.StatusCode)
	}

	// Second begin conflicts
	resp = doRequest(t, fix, token, http.MethodPost, "/api/v1/devices/"+created.ID+"/session", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second begin status = %d, want 409", resp.StatusCode)
	}

	resp = doRequest(t, fix, token, http.MethodDelete, "/api/v1/devices/"+created.ID+"/session", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end session status = %d, want 200", resp.StatusCode)
	}

	// Ending again is a bad request: no session to end
	resp = doRequest(t, fix, token, http.MethodDelete, "/api/v1/devices/"+created.ID+"/session", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("second end status = %d, want 400", resp.StatusCode)
	}
}

// ─── Scenarios ──────────────────────────────────────────────────────────────

func TestScenarioCRUD(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	var created scenario.Scenario
	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/scenarios/", validScenarioBody("Login Flow"), &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if created.ID == "" {
		t.Fatal("created scenario has no ID")
	}

	var fetched scenario.Scenario
	doRequest(t, fix, token, http.MethodGet, "/api/v1/scenarios/"+created.ID, nil, &fetched)
	if fetched.Name != "Login Flow" || len(fetched.Nodes) != 3 {
		t.Errorf("fetched scenario = %q with %d nodes, want Login Flow with 3", fetched.Name, len(fetched.Nodes))
	}

	// Update replaces the graph
	update := validScenarioBody("Login Flow v2")
	var updated scenario.Scenario
	resp = doRequest(t, fix, token, http.MethodPut, "/api/v1/scenarios/"+created.ID, update, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	if updated.Name != "Login Flow v2" {
		t.Errorf("updated name = %q, want Login Flow v2", updated.Name)
	}

	resp = doRequest(t, fix, token, http.MethodDelete, "/api/v1/scenarios/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
}

func TestCreateScenario_TwoStartNodes(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	body := validScenarioBody("Broken")
	nodes := body["nodes"].([]map[string]any)
	body["nodes"] = append(nodes, map[string]any{"id": "start2", "type": "start", "name": "Another Start"})

	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/scenarios/", body, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create status = %d, want 400", resp.StatusCode)
	}
}

func TestImportScenario_RejectsUnknownFields(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	body := validScenarioBody("Imported")
	body["unexpected"] = "field"

	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/scenarios/import", body, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("import status = %d, want 400", resp.StatusCode)
	}
}

func TestImportScenario_Valid(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	var imported scenario.Scenario
	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/scenarios/import", validScenarioBody("Imported Flow"), &imported)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("import status = %d, want 201", resp.StatusCode)
	}
	if imported.ID == "" {
		t.Error("imported scenario has no ID")
	}
}

// ─── Executions ─────────────────────────────────────────────────────────────

// setupConnectedDevice creates a device and marks it connected.
func setupConnectedDevice(t *testing.T, fix *testFixture, token, name string) string {
	t.Helper()

	var created device.Device
	doRequest(t, fix, token, http.MethodPost, "/api/v1/devices/", map[string]any{
		"name":     name,
		"platform": "android",
		"serial":   "serial-" + name,
	}, &created)
	fix.devices.SetStatus(context.Background(), created.ID, device.StatusConnected)
	return created.ID
}

func TestSubmitExecution_EndToEnd(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	deviceID := setupConnectedDevice(t, fix, token, "exec-device")

	var scn scenario.Scenario
	doRequest(t, fix, token, http.MethodPost, "/api/v1/scenarios/", validScenarioBody("Exec Flow"), &scn)

	var submitted struct {
		ExecutionID string `json:"execution_id"`
	}
	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/executions/", map[string]any{
		"requester_name": "tester",
		"device_ids":     []string{deviceID},
		"scenario_ids":   []string{scn.ID},
		"repeat_count":   1,
	}, &submitted)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202", resp.StatusCode)
	}
	if submitted.ExecutionID == "" {
		t.Fatal("submit returned no execution ID")
	}

	fix.coordinator.Wait(submitted.ExecutionID)

	// Finished executions are served from the report store.
	var result struct {
		State   string                  `json:"state"`
		Summary engine.ExecutionSummary `json:"summary"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp = doRequest(t, fix, token, http.MethodGet, "/api/v1/executions/"+submitted.ExecutionID, nil, &result)
		if resp.StatusCode == http.StatusOK && result.State == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution never reached completed state, last status %d state %q", resp.StatusCode, result.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if result.Summary.UnitsTotal != 1 || result.Summary.UnitsPassed != 1 {
		t.Errorf("summary = total %d passed %d, want 1/1", result.Summary.UnitsTotal, result.Summary.UnitsPassed)
	}

	// And from the reports listing.
	var reportsList struct {
		Count int `json:"count"`
	}
	doRequest(t, fix, token, http.MethodGet, "/api/v1/reports/", nil, &reportsList)
	if reportsList.Count != 1 {
		t.Errorf("reports count = %d, want 1", reportsList.Count)
	}
}

func TestSubmitExecution_OfflineDevice(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	var created device.Device
	doRequest(t, fix, token, http.MethodPost, "/api/v1/devices/", map[string]any{
		"name":     "offline-device",
		"platform": "android",
		"serial":   "serial-offline",
	}, &created)

	var scn scenario.Scenario
	doRequest(t, fix, token, http.MethodPost, "/api/v1/scenarios/", validScenarioBody("Offline Flow"), &scn)

	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/executions/", map[string]any{
		"requester_name": "tester",
		"device_ids":     []string{created.ID},
		"scenario_ids":   []string{scn.ID},
		"repeat_count":   1,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("submit status = %d, want 400 for offline device", resp.StatusCode)
	}
}

func TestCancelExecution_Unknown(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	resp := doRequest(t, fix, token, http.MethodPost, "/api/v1/executions/ghost/cancel", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel status = %d, want 404", resp.StatusCode)
	}
}

func TestQueueSnapshot(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	var snapshot struct {
		Devices []engine.DeviceSnapshot `json:"devices"`
		Count   int                     `json:"count"`
	}
	resp := doRequest(t, fix, token, http.MethodGet, "/api/v1/queue", nil, &snapshot)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("queue status = %d, want 200", resp.StatusCode)
	}
	if snapshot.Count != 0 {
		t.Errorf("fresh queue count = %d, want 0", snapshot.Count)
	}
}

func TestDeviceQueueStatus(t *testing.T) {
	fix := setupServer(t)
	token := loginToken(t, fix)

	deviceID := setupConnectedDevice(t, fix, token, "status-device")

	var status struct {
		Status engine.DeviceQueueStatus `json:"status"`
	}
	path := fmt.Sprintf("/api/v1/devices/%s/queue", deviceID)
	resp := doRequest(t, fix, token, http.MethodGet, path, nil, &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("queue status = %d, want 200", resp.StatusCode)
	}
	if status.Status != engine.DeviceAvailable {
		t.Errorf("device status = %q, want available", status.Status)
	}
}
