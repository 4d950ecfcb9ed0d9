package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Admin struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Identity is the verified principal behind a session token.
type Identity struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AuditEntry struct {
	ID          string    `json:"id"`
	AdminID     string    `json:"admin_id"`
	AdminEmail  string    `json:"admin_email"`
	AdminName   string    `json:"admin_name"`
	Action      string    `json:"action"`
	ActionType  string    `json:"action_type"`
	Target      string    `json:"target"`
	TargetType  string    `json:"target_type"`
	TargetID    string    `json:"target_id"`
	Details     string    `json:"details"`
	IPAddress   string    `json:"ip_address"`
	SummaryText string    `json:"summary_text,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type AuditQuery struct {
	Q          string
	ActionType string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

type AuditSummary struct {
	UserApproved   int `json:"user_approved"`
	UserBanned     int `json:"user_banned"`
	ReportResolved int `json:"report_resolved"`
	Total          int `json:"total"`
}

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyInfo    NotificationKind = "info"
)

type Notification struct {
	ID          string           `json:"id"`
	AdminID     string           `json:"admin_id"`
	Kind        NotificationKind `json:"kind"`
	Message     string           `json:"message"`
	Resource    string           `json:"resource,omitempty"`
	TargetID    string           `json:"target_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	DismissedAt *time.Time       `json:"dismissed_at,omitempty"`
}

// ID accepts both JSON strings and numbers; the backend emits either.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Timestamp accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
