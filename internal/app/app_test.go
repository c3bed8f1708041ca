package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const fleetJSONL = `{"year": 2015, "make": "Honda", "model": "Civic", "total_complaint_count": 12,
  "buckets": [{"from_mileage": 30000, "to_mileage": 70000, "total_complaints": 6, "categories": ["Brakes"]}],
  "content": {"reliability": 72, "units_sold": 4000}}
{"year": 2016, "make": "Honda", "model": "Civic", "buckets": []}
`

// testConfig points the config loader at a temp file backed by a temp database.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "db_path: " + filepath.Join(dir, "app.db") + "\nlog_level: error\ntimezone: UTC\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("REDIS_URL", "")
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestReadVehiclesFormats(t *testing.T) {
	lines, err := readVehicles(strings.NewReader(fleetJSONL))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 2015, lines[0].Year)
	assert.Equal(t, 12, lines[0].TotalComplaintCount.IntOr(0))
	require.Len(t, lines[0].Buckets, 1)

	array, err := readVehicles(strings.NewReader("\n  [{\"year\": 2014, \"make\": \"Mazda\", \"model\": \"3\"}]"))
	require.NoError(t, err)
	require.Len(t, array, 1)
	assert.Equal(t, "Mazda", array[0].Make)

	empty, err := readVehicles(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = readVehicles(strings.NewReader("{\"year\": 2015}\n{oops"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document 2")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, testConfig(t), "version")
	require.NoError(t, err)
	assert.Equal(t, "vehiclereport version dev\n", out)
}

func TestUsersAndCreditsCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "users", "create", "buyer@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "buyer@example.com")

	out, err = run(t, cfg, "credits", "add", "BUYER@example.com", "3", "--reason", "promo")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com: 0 -> 3 credits\n", out)

	_, err = run(t, cfg, "credits", "add", "buyer@example.com", "zero")
	require.Error(t, err)

	_, err = run(t, cfg, "credits", "balance", "nobody@example.com")
	require.Error(t, err)

	out, err = run(t, cfg, "credits", "balance", "buyer@example.com", "--history")
	require.NoError(t, err)
	assert.Contains(t, out, "buyer@example.com: 3 credits")
	assert.Contains(t, out, "+3  0 -> 3  promo")
}

func TestImportPopulateAndExport(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	fleet := filepath.Join(dir, "fleet.jsonl")
	require.NoError(t, os.WriteFile(fleet, []byte(fleetJSONL), 0o600))

	out, err := run(t, cfg, "vehicles", "import", fleet)
	require.NoError(t, err)
	assert.Equal(t, "imported 2 vehicles\n", out)

	out, err = run(t, cfg, "stats", "populate")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 2 vehicle documents")

	book := filepath.Join(dir, "stats.xlsx")
	out, err = run(t, cfg, "stats", "export", "--out", book)
	require.NoError(t, err)
	assert.Contains(t, out, book)

	f, err := excelize.OpenFile(book)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Stats")
	require.NoError(t, err)
	assert.Greater(t, len(rows), 1)
}

func TestSubmitAndStatus(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "submit", "--year", "1850", "--make", "Honda", "--model", "Civic")
	require.Error(t, err)

	out, err := run(t, cfg, "submit", "--year", "2015", "--make", "Honda", "--model", "Civic", "--mileage", "50000")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = run(t, cfg, "reports", "status", id)
	require.NoError(t, err)
	assert.Equal(t, id+" pending free 2015 Honda Civic (mileage 50000)\n", out)

	_, err = run(t, cfg, "reports", "show", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is pending")

	_, err = run(t, cfg, "submit", "--tier", "premium", "--user", "ghost@example.com", "--year", "2015", "--make", "Honda", "--model", "Civic")
	require.Error(t, err)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	rt, err := newRuntime(testConfig(t))
	require.NoError(t, err)
	defer rt.Close()

	srv := httptest.NewServer(rt.mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rt.metrics.ObserveReport("free", "completed", 0)
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
