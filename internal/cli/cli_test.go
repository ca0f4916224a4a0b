package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/config"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/session"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 << 20, "5.0 MiB"},
		{1536 * 1024, "1.5 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestPrintDiagnosisOrder(t *testing.T) {
	d := medapi.Diagnosis{
		ImageType:        "ECG",
		DiagnosisEnglish: "Normal sinus rhythm",
		DiagnosisArabic:  "نظم جيبي طبيعي",
		ConfidenceScore:  0.85,
		Findings:         []string{"Regular rate"},
	}

	var en, ar bytes.Buffer
	PrintDiagnosis(&en, d, "en")
	PrintDiagnosis(&ar, d, "ar")

	if !strings.Contains(en.String(), "85%") || !strings.Contains(en.String(), "- Regular rate") {
		t.Errorf("english output:\n%s", en.String())
	}
	enIdx := strings.Index(ar.String(), "Normal sinus rhythm")
	arIdx := strings.Index(ar.String(), "نظم جيبي طبيعي")
	if arIdx < 0 || enIdx < 0 || arIdx > enIdx {
		t.Errorf("arabic output does not lead with Arabic:\n%s", ar.String())
	}
}

func TestPrintRecordLineTruncates(t *testing.T) {
	var buf bytes.Buffer
	PrintRecordLine(&buf, medapi.Record{
		ID:        "r1",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		Diagnosis: medapi.Diagnosis{ImageType: "Radiology Report Scan", DiagnosisEnglish: strings.Repeat("x", 100)},
	})
	line := buf.String()
	if strings.Count(line, "\n") != 1 || !strings.Contains(line, "…") {
		t.Errorf("line = %q", line)
	}
}

func TestPromptForLine(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("alice@example.com\n\n"), &out)

	if got := p.PromptForLine("Email", ""); got != "alice@example.com" {
		t.Errorf("first answer = %q", got)
	}
	if got := p.PromptForLine("Language", "en"); got != "en" {
		t.Errorf("empty answer = %q, want default", got)
	}
	if got := p.PromptForLine("Name", "anon"); got != "anon" {
		t.Errorf("EOF answer = %q, want default", got)
	}
	if !strings.Contains(out.String(), "Language [en]: ") {
		t.Errorf("prompt output = %q", out.String())
	}
}

func TestValidateImageFile(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "scan.jpg")
	if err := os.WriteFile(img, []byte{0xFF, 0xD8, 0xFF}, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ValidateImageFile(img)
	if err != nil || !filepath.IsAbs(got) {
		t.Errorf("ValidateImageFile() = %q, %v", got, err)
	}
	if _, err := ValidateImageFile(filepath.Join(dir, "missing.jpg")); ExitCode(err) != ExitUsage {
		t.Errorf("missing file exit code = %d, err = %v", ExitCode(err), err)
	}
	if _, err := ValidateImageFile(dir); ExitCode(err) != ExitUsage {
		t.Errorf("directory exit code = %d, err = %v", ExitCode(err), err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{apierr.Validation("bad"), ExitUsage},
		{apierr.New(apierr.CodeAuthRequired, nil), ExitAuth},
		{apierr.New(apierr.CodeTimeout, nil), ExitRetryable},
		{apierr.New(apierr.CodeUpstreamAuth, nil), ExitFailure},
		{errors.New("plain"), ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type memSessions struct{ s *session.Session }

func (m *memSessions) Load() (*session.Session, error) { return m.s, nil }
func (m *memSessions) Save(s *session.Session) error   { m.s = s; return nil }
func (m *memSessions) Clear() error                    { m.s = &session.Session{}; return nil }

func TestInitClientsLanguageOverride(t *testing.T) {
	store := &memSessions{s: &session.Session{Token: "t", Language: "en"}}
	cfg := &config.Config{
		APIURL:      "http://api.local",
		ChatAPIURL:  "http://chat.local",
		AuthURL:     "http://auth.local",
		SessionFile: "unused",
		Language:    "ar",
	}
	c, err := InitClients(cfg, store)
	if err != nil {
		t.Fatalf("InitClients() error = %v", err)
	}
	if c.Session.Language != "ar" || c.Med == nil || c.Consult == nil || c.Account == nil {
		t.Errorf("clients = %+v", c)
	}
}
