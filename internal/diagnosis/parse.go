package diagnosis

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/fpang/medassist/internal/medapi"
)

// Defaults used when the model's JSON omits a field.
const (
	DefaultImageType       = "Medical Image"
	DefaultDiagnosis       = "Analysis completed"
	DefaultDiagnosisArabic = "تم التحليل"
	DefaultFinding         = "Image analyzed"
	DefaultRecommendation  = "Consult a healthcare professional"
	DefaultConfidence      = 0.75
)

// Fallbacks used when the model did not answer with JSON at all.
const (
	fallbackArabic          = "يرجى استشارة أخصائي طبي للحصول على تشخيص دقيق"
	fallbackRecommendation  = "Please consult with a qualified healthcare professional for proper diagnosis and treatment."
	fallbackEnglishMaxRunes = 500
)

var (
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

	confidencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`confidence[:\s]+(\d+)%`),
		regexp.MustCompile(`(\d+)%\s+confiden`),
		regexp.MustCompile(`score[:\s]+(\d+)`),
	}

	findingKeywords = []string{"finding", "observed", "shows", "indicates"}
)

// Parse converts the model's answer into a Diagnosis. A JSON object anywhere
// in the text is preferred; otherwise the text is split into English and
// Arabic sections line by line.
func Parse(text string) medapi.Diagnosis {
	if obj := extractJSON(text); obj.Exists() {
		return fromJSON(obj)
	}
	return fromText(text)
}

// extractJSON returns the span from the first '{' to the last '}' when it is
// a valid JSON object.
func extractJSON(text string) gjson.Result {
	match := jsonObject.FindString(text)
	if match == "" || !gjson.Valid(match) {
		return gjson.Result{}
	}
	obj := gjson.Parse(match)
	if !obj.IsObject() {
		return gjson.Result{}
	}
	return obj
}

func fromJSON(obj gjson.Result) medapi.Diagnosis {
	d := medapi.Diagnosis{
		ImageType:        stringOr(obj.Get("image_type"), DefaultImageType),
		DiagnosisEnglish: stringOr(obj.Get("diagnosis_english"), DefaultDiagnosis),
		DiagnosisArabic:  stringOr(obj.Get("diagnosis_arabic"), DefaultDiagnosisArabic),
		ConfidenceScore:  normalizeConfidence(obj.Get("confidence_score")),
		Recommendations:  stringOr(obj.Get("recommendations"), DefaultRecommendation),
	}

	findings := obj.Get("findings")
	switch {
	case findings.IsArray():
		for _, f := range findings.Array() {
			if s := strings.TrimSpace(f.String()); s != "" {
				d.Findings = append(d.Findings, s)
			}
		}
		if d.Findings == nil {
			d.Findings = []string{}
		}
	case findings.Type == gjson.String && findings.String() != "":
		d.Findings = []string{findings.String()}
	default:
		d.Findings = []string{DefaultFinding}
	}
	return d
}

// normalizeConfidence maps a 0-100 score onto 0-1. Scores already in 0-1 are
// kept.
func normalizeConfidence(v gjson.Result) float64 {
	var c float64
	switch v.Type {
	case gjson.Number:
		c = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v.String()), "%"), 64)
		if err != nil {
			return DefaultConfidence
		}
		c = parsed
	default:
		return DefaultConfidence
	}
	if c > 1 {
		c /= 100
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

func stringOr(v gjson.Result, def string) string {
	if !v.Exists() || v.Type == gjson.Null {
		return def
	}
	return v.String()
}

func fromText(text string) medapi.Diagnosis {
	var english, arabic, findings []string
	arabicStarted := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if containsArabic(line) {
			arabicStarted = true
			arabic = append(arabic, line)
			continue
		}
		if arabicStarted || strings.HasPrefix(line, "{") {
			continue
		}
		english = append(english, line)
		lower := strings.ToLower(line)
		for _, kw := range findingKeywords {
			if strings.Contains(lower, kw) {
				findings = append(findings, line)
				break
			}
		}
	}

	d := medapi.Diagnosis{
		ImageType:        DefaultImageType,
		DiagnosisEnglish: strings.Join(english, " "),
		DiagnosisArabic:  strings.Join(arabic, " "),
		ConfidenceScore:  ExtractConfidence(text),
		Findings:         findings,
		Recommendations:  fallbackRecommendation,
	}
	if len(english) == 0 {
		d.DiagnosisEnglish = truncateRunes(text, fallbackEnglishMaxRunes)
	}
	if len(arabic) == 0 {
		d.DiagnosisArabic = fallbackArabic
	}
	if len(findings) == 0 {
		d.Findings = []string{DefaultDiagnosis}
	}
	return d
}

// ExtractConfidence finds a percentage confidence in free text, or returns
// DefaultConfidence.
func ExtractConfidence(text string) float64 {
	lower := strings.ToLower(text)
	for _, re := range confidencePatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return float64(n) / 100
			}
		}
	}
	return DefaultConfidence
}

func containsArabic(s string) bool {
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
