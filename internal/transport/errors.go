package transport

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/fpang/medassist/internal/apierr"
)

// Paths probed for the machine-readable code and human message in an error
// body. The diagnosis backend sends {"code","message"}; the security service
// nests them under "error"; FastAPI-style services use "detail".
var (
	errorCodePaths    = []string{"code", "error.code", "detail.code", "errorCode"}
	errorMessagePaths = []string{"message", "error.message", "detail.message", "detail", "error", "msg"}
)

// classifyResponse turns a non-2xx response into a classified failure.
func classifyResponse(status int, body []byte) *apierr.Error {
	code, message, structured := decodeErrorBody(body)
	if structured {
		return fromCode(apierr.Code(code), message, status)
	}
	return fromStatus(status, message)
}

// decodeErrorBody extracts a code and message. structured is true only when
// the body is JSON and carries a code.
func decodeErrorBody(body []byte) (code, message string, structured bool) {
	if !gjson.ValidBytes(body) {
		return "", "", false
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return "", "", false
	}
	message = firstString(parsed, errorMessagePaths)
	code = firstString(parsed, errorCodePaths)
	return code, message, code != ""
}

func firstString(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		v := doc.Get(p)
		if v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// fromCode classifies a structured backend error. Codes outside the taxonomy
// keep their wire value but are KindUnknown, with the server's message or the
// generic fallback.
func fromCode(code apierr.Code, serverMessage string, status int) *apierr.Error {
	return &apierr.Error{
		Kind:    code.Kind(),
		Code:    code,
		Message: code.Message(serverMessage),
		Status:  status,
		Err:     fmt.Errorf("backend error %s: %s", code, serverMessage),
	}
}

// fromStatus synthesizes a classification for an unstructured error body.
// Rejected credentials and plain-text validation details are recognised;
// every other status is a generic network error.
func fromStatus(status int, serverMessage string) *apierr.Error {
	cause := fmt.Errorf("HTTP %d %s", status, http.StatusText(status))
	var e *apierr.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = apierr.New(apierr.CodeAuthRequired, cause)
	case (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) && serverMessage != "":
		e = apierr.Newf(apierr.CodeValidation, cause, "%s", serverMessage)
	default:
		e = apierr.New(apierr.CodeNetwork, cause)
	}
	e.Status = status
	return e
}
