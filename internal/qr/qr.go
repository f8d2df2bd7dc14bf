// Package qr builds and decodes the payloads carried by instructor and lab
// key QR codes. Rendering the image is left to the client.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"comlab-status-backend/internal/model"
)

const (
	TypeInstructor = "instructor"
	TypeLabKey     = "labKey"

	selectionPage = "/lab-selection.html"
)

// ErrInvalidPayload is returned when scanned data cannot be decoded.
var ErrInvalidPayload = errors.New("invalid qr payload")

// InstructorData is the content of an instructor badge.
type InstructorData struct {
	Type           string `json:"type"`
	InstructorID   string `json:"instructorId"`
	Name           string `json:"name,omitempty"`
	InstructorName string `json:"instructorName,omitempty"`
	Lastname       string `json:"lastname,omitempty"`
	Email          string `json:"email,omitempty"`
}

// DisplayName joins the first and last name, preferring name over
// instructorName.
func (d InstructorData) DisplayName() string {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = strings.TrimSpace(d.InstructorName)
	}
	if d.Lastname != "" && !strings.Contains(name, d.Lastname) {
		name = strings.TrimSpace(name + " " + d.Lastname)
	}
	return name
}

// LabKeyData is the content of a lab key code.
type LabKeyData struct {
	Type      string `json:"type"`
	LabNumber string `json:"labNumber"`
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// InstructorURL returns the lab selection link encoded in an instructor's badge.
func InstructorURL(baseURL string, in model.Instructor) (string, error) {
	raw, err := json.Marshal(InstructorData{
		Type:         TypeInstructor,
		InstructorID: in.ID,
		Name:         in.Name,
		Lastname:     in.Lastname,
		Email:        in.Email,
	})
	if err != nil {
		return "", err
	}
	q := url.Values{"data": {base64.StdEncoding.EncodeToString(raw)}}
	return strings.TrimRight(baseURL, "/") + selectionPage + "?" + q.Encode(), nil
}

// LabKeyPayload returns the JSON text of a lab key code.
func LabKeyPayload(labNumber string, now time.Time) (string, error) {
	raw, err := json.Marshal(LabKeyData{
		Type:      TypeLabKey,
		LabNumber: labNumber,
		Timestamp: now.UTC().Format(time.RFC3339),
		Nonce:     uuid.NewString(),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseScan decodes an instructor badge. It accepts the JSON itself, its
// base64 form or the full selection URL.
func ParseScan(qrData string) (InstructorData, error) {
	s := strings.TrimSpace(qrData)
	if s == "" {
		return InstructorData{}, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		if data := u.Query().Get("data"); data != "" {
			s = data
		}
	}
	if !strings.HasPrefix(s, "{") {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			decoded, err = base64.URLEncoding.DecodeString(s)
		}
		if err != nil {
			return InstructorData{}, fmt.Errorf("%w: not json or base64", ErrInvalidPayload)
		}
		s = string(decoded)
	}

	var data InstructorData
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return InstructorData{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if data.Type != "" && data.Type != TypeInstructor {
		return InstructorData{}, fmt.Errorf("%w: unexpected type %q", ErrInvalidPayload, data.Type)
	}
	if data.InstructorID == "" || data.DisplayName() == "" {
		return InstructorData{}, fmt.Errorf("%w: instructor id and name are required", ErrInvalidPayload)
	}
	return data, nil
}
