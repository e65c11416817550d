package knowunity

import (
	"encoding/json"
	"fmt"
)

// Student is a simulated learner available in a set.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Topic is a subject area a student can be tutored on.
type Topic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reply is the student's answer to one tutor message.
type Reply struct {
	StudentResponse string `json:"student_response"`
	IsComplete      bool   `json:"is_complete"`
}

// Prediction is one submitted level estimate.
type Prediction struct {
	StudentID      string `json:"student_id"`
	TopicID        string `json:"topic_id"`
	PredictedLevel int    `json:"predicted_level"`
}

// MSEResult is the scoring response for submitted predictions.
type MSEResult struct {
	MSEScore float64         `json:"mse_score"`
	Raw      json.RawMessage `json:"-"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("knowunity API: HTTP %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

type studentsResponse struct {
	Students []Student `json:"students"`
}

type topicsResponse struct {
	Topics []Topic `json:"topics"`
}

type startRequest struct {
	StudentID string `json:"student_id"`
	TopicID   string `json:"topic_id"`
}

type startResponse struct {
	ConversationID string `json:"conversation_id"`
}

type interactRequest struct {
	ConversationID string `json:"conversation_id"`
	TutorMessage   string `json:"tutor_message"`
}

type mseRequest struct {
	Predictions []Prediction `json:"predictions"`
	SetType     string       `json:"set_type"`
}

type setTypeRequest struct {
	SetType string `json:"set_type"`
}
