package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"llmchat-api/internal/service"
)

// maxBodyBytes caps the request body independently of the message limit.
const maxBodyBytes = 1 << 20

// HistoryMessage is one prior turn sent by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the HTTP request payload for both chat endpoints.
type ChatRequest struct {
	Message     string           `json:"message" validate:"notblank,maxbytes"`
	ChatHistory []HistoryMessage `json:"chat_history,omitempty"`
}

// requestDecoder reads and validates ChatRequest bodies.
type requestDecoder struct {
	validate        *validator.Validate
	maxMessageBytes int
}

func newRequestDecoder(maxMessageBytes int) *requestDecoder {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return maxMessageBytes <= 0 || len(fl.Field().String()) <= maxMessageBytes
	})
	return &requestDecoder{validate: v, maxMessageBytes: maxMessageBytes}
}

// decode parses the body of r into a service request. Every failure is a
// *service.ValidationError.
func (d *requestDecoder) decode(w http.ResponseWriter, r *http.Request) (service.ChatRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return service.ChatRequest{}, &service.ValidationError{
				Field:   "body",
				Message: fmt.Sprintf("exceeds %d bytes", maxBytesErr.Limit),
			}
		}
		return service.ChatRequest{}, &service.ValidationError{
			Field:   "body",
			Message: "invalid JSON",
		}
	}

	if err := d.validate.Struct(req); err != nil {
		return service.ChatRequest{}, d.validationError(err)
	}

	return toServiceRequest(req), nil
}

func (d *requestDecoder) validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &service.ValidationError{Field: "body", Message: err.Error()}
	}

	fe := fieldErrs[0]
	msg := fmt.Sprintf("failed %s validation", fe.Tag())
	switch fe.Tag() {
	case "notblank":
		msg = "cannot be empty"
	case "maxbytes":
		msg = fmt.Sprintf("exceeds %d bytes", d.maxMessageBytes)
	}
	return &service.ValidationError{Field: fe.Field(), Message: msg}
}

func toServiceRequest(req ChatRequest) service.ChatRequest {
	svcReq := service.ChatRequest{Message: req.Message}
	if len(req.ChatHistory) > 0 {
		svcReq.History = make([]service.ChatMessage, len(req.ChatHistory))
		for i, m := range req.ChatHistory {
			svcReq.History[i] = service.ChatMessage{
				Role:    service.Role(m.Role),
				Content: m.Content,
			}
		}
	}
	return svcReq
}
