package kpi

import "time"

// Type classifies a scoring record. Each completed or overdue task
// yields at most one record per (task, type, user) triple.
type Type string

const (
	TypeAssigneeEarly      Type = "assignee_early"
	TypeAssigneeOnTime     Type = "assignee_ontime"
	TypeAssigneeLate       Type = "assignee_late"
	TypeCreatorCompletion  Type = "creator_completion"
	TypeCreatorOnTimeBonus Type = "creator_ontime_bonus"
	TypeStreakBonus        Type = "streak_bonus"
	TypePenaltyOverdue     Type = "penalty_overdue"
)

// Role identifies the capacity in which the user earned the points.
type Role string

const (
	RoleAssignee Role = "assignee"
	RoleCreator  Role = "creator"
	RoleBonus    Role = "bonus"
	RolePenalty  Role = "penalty"
)

// RoleFor returns the role bucket a record type belongs to.
func RoleFor(t Type) Role {
	switch t {
	case TypeAssigneeEarly, TypeAssigneeOnTime, TypeAssigneeLate:
		return RoleAssignee
	case TypeCreatorCompletion, TypeCreatorOnTimeBonus:
		return RoleCreator
	case TypeStreakBonus:
		return RoleBonus
	default:
		return RolePenalty
	}
}

// Record is one signed point delta for one user.
type Record struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	GroupID    string            `json:"group_id"`
	TaskID     string            `json:"task_id,omitempty"`
	Type       Type              `json:"type"`
	Role       Role              `json:"role"`
	Points     int               `json:"points"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// countsAsCompletion reports whether the record represents a task the
// user completed as assignee. Leaderboard tie-breaking counts these.
func (r *Record) countsAsCompletion() bool {
	switch r.Type {
	case TypeAssigneeEarly, TypeAssigneeOnTime, TypeAssigneeLate:
		return true
	}
	return false
}

// onTime reports whether the record extends an on-time streak.
func (r *Record) onTime() bool {
	return r.Type == TypeAssigneeEarly || r.Type == TypeAssigneeOnTime
}

// breaksStreak reports whether the record resets an on-time streak.
func (r *Record) breaksStreak() bool {
	return r.Type == TypeAssigneeLate || r.Type == TypePenaltyOverdue
}

// Window bounds a leaderboard query. From is inclusive, To exclusive.
// A zero From or To leaves that side unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// DayWindow covers the 24 hours ending at now.
func DayWindow(now time.Time) Window {
	return Window{From: now.Add(-24 * time.Hour), To: now}
}

// WeekWindow covers the 7 days ending at now.
func WeekWindow(now time.Time) Window {
	return Window{From: now.AddDate(0, 0, -7), To: now}
}

// MonthWindow covers the rolling month ending at now.
func MonthWindow(now time.Time) Window {
	return Window{From: now.AddDate(0, -1, 0), To: now}
}

// UserScore is one leaderboard row.
type UserScore struct {
	UserID string `json:"user_id"`

	// Points is the signed sum over the window.
	Points int `json:"points"`

	// Completed counts tasks the user finished as assignee.
	Completed int `json:"completed"`

	// AchievedAt is when the user last changed their score. Earlier
	// wins ties.
	AchievedAt time.Time `json:"achieved_at"`
}
