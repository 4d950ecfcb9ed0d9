package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names a moderated resource collection. Values double as backend path segments.
type Kind string

const (
	KindUsers          Kind = "users"
	KindCollaborations Kind = "collaborations"
	KindReports        Kind = "reports"
)

func ParseKind(v string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(v))); k {
	case KindUsers, KindCollaborations, KindReports:
		return k, nil
	}
	return "", fmt.Errorf("unknown resource %q", v)
}

func (k Kind) Singular() string {
	switch k {
	case KindUsers:
		return "user"
	case KindCollaborations:
		return "collaboration"
	case KindReports:
		return "report"
	}
	return string(k)
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusApproved Status = "approved"
	StatusBanned   Status = "banned"
	StatusResolved Status = "resolved"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionBan     Action = "ban"
	ActionResolve Action = "resolve"
	ActionDelete  Action = "delete"
)

func ParseAction(v string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(v))); a {
	case ActionApprove, ActionBan, ActionResolve, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", v)
}

// PastTense is used in audit action types and notification text.
func (a Action) PastTense() string {
	switch a {
	case ActionApprove:
		return "approved"
	case ActionBan:
		return "banned"
	case ActionResolve:
		return "resolved"
	case ActionDelete:
		return "deleted"
	}
	return string(a)
}

var ErrInvalidTransition = errors.New("invalid status transition")

type transition struct {
	from []Status
	to   Status
}

// Transitions only move forward: nothing leaves banned and resolved reports are final.
var transitions = map[Kind]map[Action]transition{
	KindUsers: {
		ActionApprove: {from: []Status{StatusPending}, to: StatusActive},
		ActionBan:     {from: []Status{StatusPending, StatusActive, StatusResolved}, to: StatusBanned},
	},
	KindCollaborations: {
		ActionApprove: {from: []Status{StatusPending}, to: StatusApproved},
		ActionBan:     {from: []Status{StatusPending, StatusApproved}, to: StatusBanned},
	},
	KindReports: {
		ActionResolve: {from: []Status{StatusPending}, to: StatusResolved},
		ActionBan:     {from: []Status{StatusPending}, to: StatusBanned},
	},
}

var statuses = map[Kind][]Status{
	KindUsers:          {StatusPending, StatusActive, StatusBanned, StatusResolved},
	KindCollaborations: {StatusPending, StatusApproved, StatusBanned},
	KindReports:        {StatusPending, StatusResolved, StatusBanned},
}

// Statuses lists the valid status values for k.
func Statuses(k Kind) []Status {
	return append([]Status(nil), statuses[k]...)
}

// NextStatus returns the status an entity of kind k moves to when action is applied from
// status from. Delete is not a status transition and is rejected here.
func NextStatus(k Kind, from Status, action Action) (Status, error) {
	t, ok := transitions[k][action]
	if !ok {
		return "", fmt.Errorf("%w: %s cannot be applied to %s", ErrInvalidTransition, action, k)
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	return "", fmt.Errorf("%w: %s %s from %s", ErrInvalidTransition, action, k.Singular(), from)
}

// CanDelete reports whether kind k supports removal from the console.
func CanDelete(k Kind) bool {
	return k == KindUsers || k == KindCollaborations
}

// AuditActionType is the stable action code recorded for a successful moderation action.
func AuditActionType(k Kind, action Action) string {
	return k.Singular() + "_" + action.PastTense()
}

// Record is the read side every moderated entity exposes to list views.
type Record interface {
	Key() string
	CurrentStatus() Status
	Label() string
	SearchFields() []string
	FilterValue(field string) string
	CreatedOn() time.Time
}

// Entity adds the status copy used by optimistic updates.
type Entity[E any] interface {
	Record
	WithStatus(Status) E
}

type User struct {
	ID             ID        `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Status         Status    `json:"status"`
	Gender         string    `json:"gender,omitempty"`
	Year           string    `json:"year,omitempty"`
	JoinDate       Timestamp `json:"joinDate"`
	Collaborations int       `json:"collaborations"`
	Reports        int       `json:"reports"`
}

func (u User) Key() string            { return string(u.ID) }
func (u User) CurrentStatus() Status  { return u.Status }
func (u User) Label() string          { return u.Name }
func (u User) SearchFields() []string { return []string{u.Name, u.Email} }
func (u User) CreatedOn() time.Time   { return u.JoinDate.Time }

func (u User) FilterValue(field string) string {
	switch field {
	case "status":
		return string(u.Status)
	case "gender":
		return u.Gender
	case "year":
		return u.Year
	}
	return ""
}

func (u User) WithStatus(s Status) User {
	u.Status = s
	return u
}

type Collaboration struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	Status      Status    `json:"status"`
	Members     int       `json:"members"`
	MaxMembers  int       `json:"maxMembers"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   Timestamp `json:"createdAt"`
}

func (c Collaboration) Key() string           { return string(c.ID) }
func (c Collaboration) CurrentStatus() Status { return c.Status }
func (c Collaboration) Label() string         { return c.Title }
func (c Collaboration) CreatedOn() time.Time  { return c.CreatedAt.Time }

func (c Collaboration) SearchFields() []string {
	out := make([]string, 0, 2+len(c.Tags))
	out = append(out, c.Title, c.CreatedBy)
	return append(out, c.Tags...)
}

func (c Collaboration) FilterValue(field string) string {
	if field == "status" {
		return string(c.Status)
	}
	return ""
}

func (c Collaboration) WithStatus(s Status) Collaboration {
	c.Status = s
	if c.Tags != nil {
		c.Tags = append([]string(nil), c.Tags...)
	}
	return c
}

type Report struct {
	ID           ID        `json:"id"`
	ReportedUser string    `json:"reportedUser"`
	ReportedBy   string    `json:"reportedBy"`
	Reason       string    `json:"reason"`
	Description  string    `json:"description,omitempty"`
	Severity     string    `json:"severity"`
	Status       Status    `json:"status"`
	CreatedAt    Timestamp `json:"createdAt"`
}

func (r Report) Key() string            { return string(r.ID) }
func (r Report) CurrentStatus() Status  { return r.Status }
func (r Report) Label() string          { return r.ReportedUser }
func (r Report) SearchFields() []string { return []string{r.ReportedUser, r.Reason} }
func (r Report) CreatedOn() time.Time   { return r.CreatedAt.Time }

func (r Report) FilterValue(field string) string {
	switch field {
	case "status":
		return string(r.Status)
	case "severity":
		return r.Severity
	}
	return ""
}

func (r Report) WithStatus(s Status) Report {
	r.Status = s
	return r
}
