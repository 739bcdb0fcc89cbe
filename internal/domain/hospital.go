// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

var ErrHospitalEmpty = errors.New("hospital id empty")

type HospitalID string

type Hospital struct {
	ID      HospitalID `json:"id"`
	Name    string     `json:"name"`
	Address string     `json:"address"`
	Phone   string     `json:"phone"`
}

// SessionID is the conversation handle issued by the chat backend.
type SessionID string

// ChatSession binds a backend conversation handle to the hospital it serves.
type ChatSession struct {
	ID       SessionID  `json:"session_id"`
	Hospital HospitalID `json:"hospital_id"`
	Name     string     `json:"hospital_name"`
}

// NewChatSession avoids raw literals in adapters and keeps construction obvious.
func NewChatSession(id SessionID, hospital HospitalID, name string) (*ChatSession, error) {
	if hospital == "" {
		return nil, ErrHospitalEmpty
	}
	return &ChatSession{ID: id, Hospital: hospital, Name: name}, nil
}
