package medapi

import "time"

// Diagnosis is the analysis of one medical image, in English and Arabic.
type Diagnosis struct {
	ImageType        string   `json:"image_type"`
	DiagnosisEnglish string   `json:"diagnosis_english"`
	DiagnosisArabic  string   `json:"diagnosis_arabic"`
	ConfidenceScore  float64  `json:"confidence_score"`
	Findings         []string `json:"findings"`
	Recommendations  string   `json:"recommendations"`
}

// Record is a stored diagnosis together with the analysed image.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	ImageKey  string    `json:"image_key,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Diagnosis Diagnosis `json:"diagnosis"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordList is the body of GET /records.
type RecordList struct {
	Records []Record `json:"records"`
}

// ChatRequest is the body of POST /chat. SessionID is empty to start a new
// conversation; RecordID optionally grounds the conversation in a stored
// diagnosis.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Language  string `json:"language,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
}

// ChatResponse is the assistant's reply to one message.
type ChatResponse struct {
	SessionID string    `json:"session_id"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is one turn in a conversation. Role is "user" or "assistant".
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is a conversation and its messages in order.
type ChatSession struct {
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id,omitempty"`
	RecordID  string        `json:"record_id,omitempty"`
	Language  string        `json:"language,omitempty"`
	Messages  []ChatMessage `json:"messages"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ChatHistory is the body of GET /chat/history.
type ChatHistory struct {
	Sessions []ChatSession `json:"sessions"`
}

// Deleted acknowledges a delete.
type Deleted struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// ErrorBody is the structured error every endpoint returns on failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
