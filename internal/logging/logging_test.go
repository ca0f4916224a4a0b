package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStartupEventOmitsEmptyResources(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	NewStartupLogger("medassist-server").
		Mode("local").
		DynamoTable("records", "medassist-records").
		S3Bucket("media", "").
		Feature("persistImages", false).
		Config("model", "gemini-2.5-flash").
		Event(logger.Info()).
		Msg("startup")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	proc := got["process"].(map[string]any)
	if proc["name"] != "medassist-server" || proc["mode"] != "local" {
		t.Errorf("process = %v", proc)
	}
	resources := got["resources"].(map[string]any)
	if _, ok := resources["s3Buckets"]; ok {
		t.Error("empty bucket name should not be registered")
	}
	tables := resources["dynamoTables"].(map[string]any)
	if tables["records"] != "medassist-records" {
		t.Errorf("tables = %v", tables)
	}
	if got["features"].(map[string]any)["persistImages"] != false {
		t.Error("feature flag missing")
	}
}
