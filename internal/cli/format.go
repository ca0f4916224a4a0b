package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/medassist/internal/medapi"
)

// FormatBytes renders n as B, KiB or MiB with one decimal.
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// FormatConfidence renders a 0-1 score as a whole percentage.
func FormatConfidence(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}

// FormatTime renders t in local time, minute precision.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// PrintDiagnosis writes a diagnosis for a terminal. Arabic is shown first
// when language is "ar".
func PrintDiagnosis(w io.Writer, d medapi.Diagnosis, language string) {
	fmt.Fprintf(w, "Image type:  %s\n", d.ImageType)
	fmt.Fprintf(w, "Confidence:  %s\n", FormatConfidence(d.ConfidenceScore))
	if language == "ar" {
		fmt.Fprintf(w, "التشخيص:     %s\n", d.DiagnosisArabic)
		fmt.Fprintf(w, "Diagnosis:   %s\n", d.DiagnosisEnglish)
	} else {
		fmt.Fprintf(w, "Diagnosis:   %s\n", d.DiagnosisEnglish)
		fmt.Fprintf(w, "التشخيص:     %s\n", d.DiagnosisArabic)
	}
	if len(d.Findings) > 0 {
		fmt.Fprintln(w, "Findings:")
		for _, f := range d.Findings {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	if d.Recommendations != "" {
		fmt.Fprintf(w, "Advice:      %s\n", d.Recommendations)
	}
}

// PrintRecordLine writes one record as a single summary line.
func PrintRecordLine(w io.Writer, r medapi.Record) {
	fmt.Fprintf(w, "%s  %s  %-14s %4s  %s\n",
		r.ID, FormatTime(r.CreatedAt), truncate(r.Diagnosis.ImageType, 14),
		FormatConfidence(r.Diagnosis.ConfidenceScore), truncate(r.Diagnosis.DiagnosisEnglish, 60))
}

// PrintConversation writes a chat session's messages in order.
func PrintConversation(w io.Writer, s medapi.ChatSession) {
	fmt.Fprintf(w, "Session %s (updated %s)\n", s.SessionID, FormatTime(s.UpdatedAt))
	for _, m := range s.Messages {
		fmt.Fprintf(w, "  [%s] %s\n", m.Role, strings.TrimSpace(m.Content))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
