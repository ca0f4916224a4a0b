package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestNewAddsFunctionName(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "medassist-api")
	r := New(Namespace)
	if r.dimensions["FunctionName"] != "medassist-api" {
		t.Errorf("FunctionName = %q", r.dimensions["FunctionName"])
	}
}

func TestFlushWritesEMFDocument(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	buf := captureOutput(t)

	New(Namespace).
		Dimension("Route", "POST /analyze").
		Duration("LatencyMs", 1500*time.Millisecond).
		Count("Requests").
		Property("requestId", "abc-123").
		Flush()

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("EMF must be a single line, got %q", line)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, line)
	}
	if doc["Route"] != "POST /analyze" || doc["LatencyMs"] != 1500.0 || doc["Requests"] != 1.0 {
		t.Errorf("values = %v", doc)
	}
	if doc["requestId"] != "abc-123" {
		t.Errorf("property missing: %v", doc)
	}

	aws := doc["_aws"].(map[string]any)
	group := aws["CloudWatchMetrics"].([]any)[0].(map[string]any)
	if group["Namespace"] != Namespace {
		t.Errorf("namespace = %v", group["Namespace"])
	}
	dims := group["Dimensions"].([]any)[0].([]any)
	if len(dims) != 1 || dims[0] != "Route" {
		t.Errorf("dimensions = %v", dims)
	}
	defs := group["Metrics"].([]any)
	if len(defs) != 2 || defs[0].(map[string]any)["Name"] != "LatencyMs" {
		t.Errorf("metric definitions = %v", defs)
	}
}

func TestFlushWithoutMetricsIsSilent(t *testing.T) {
	buf := captureOutput(t)
	New(Namespace).Dimension("Route", "GET /health").Property("x", 1).Flush()
	if buf.Len() != 0 {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
