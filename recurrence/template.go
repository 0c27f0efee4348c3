package recurrence

import (
	"time"

	"github.com/vinayprograms/groupkit/task"
)

// Kind selects the recurrence rule family.
type Kind string

const (
	KindDaily     Kind = "daily"
	KindWeekly    Kind = "weekly"
	KindMonthly   Kind = "monthly"
	KindQuarterly Kind = "quarterly"

	// KindCustom is driven entirely by Params: day-of-month rules when
	// DayOfMonth is set, weekday rules when Weekdays is set, otherwise
	// plain day intervals.
	KindCustom Kind = "custom"
)

// Params tunes the recurrence rule.
type Params struct {
	// Interval is the step between occurrences in the rule's base unit
	// (days, weeks, months or quarters). Zero means 1.
	Interval int `json:"interval,omitempty"`

	// Weekdays restricts weekly/custom rules to these days. An empty
	// set with a weekly rule behaves like every Interval weeks.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	// DayOfMonth anchors monthly/custom rules. Months too short for the
	// anchor clamp to their last day; the anchor is preserved so a
	// Jan 31 schedule yields Feb 28/29 and then Mar 31.
	DayOfMonth int `json:"day_of_month,omitempty"`
}

// interval returns the step, defaulting to 1.
func (p Params) interval() int {
	if p.Interval <= 0 {
		return 1
	}
	return p.Interval
}

// Template is the reusable definition periodic task instances are
// generated from.
type Template struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Kind   Kind   `json:"kind"`
	Params Params `json:"params"`

	// InitialDueTime is the due time of the first instance. Its clock
	// time (in Timezone) carries to every generated instance.
	InitialDueTime time.Time `json:"initial_due_time"`

	// Timezone is the IANA zone all date arithmetic happens in.
	Timezone string `json:"timezone"`

	Priority  task.Priority `json:"priority,omitempty"`
	CreatedBy string        `json:"created_by"`
	Assignees []string      `json:"assignees"`
	Reviewer  string        `json:"reviewer,omitempty"`

	// IsActive gates generation. Templates are deactivated, never
	// deleted.
	IsActive bool `json:"is_active"`

	// TotalInstancesGenerated only increases.
	TotalInstancesGenerated int `json:"total_instances_generated"`

	// LastGeneratedDueTime is the generation cursor: the due time of
	// the most recent instance. Zero until the first instance exists.
	// It never decreases.
	LastGeneratedDueTime time.Time `json:"last_generated_due_time,omitempty"`
}

// Location resolves the template's timezone, falling back to UTC when
// unset.
func (t *Template) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.Timezone)
}

// Clone creates a deep copy of the template.
func (t *Template) Clone() *Template {
	clone := *t
	if t.Assignees != nil {
		clone.Assignees = make([]string, len(t.Assignees))
		copy(clone.Assignees, t.Assignees)
	}
	if t.Params.Weekdays != nil {
		clone.Params.Weekdays = make([]time.Weekday, len(t.Params.Weekdays))
		copy(clone.Params.Weekdays, t.Params.Weekdays)
	}
	return &clone
}
