package model

import "time"

// FieldType is the closed set of supported field kinds. Values mirror the
// Airtable field type names so a form definition can be authored straight
// from a base schema.
type FieldType string

const (
	FieldText         FieldType = "singleLineText"
	FieldLongText     FieldType = "multilineText"
	FieldSingleSelect FieldType = "singleSelect"
	FieldMultiSelect  FieldType = "multipleSelects"
	FieldAttachments  FieldType = "multipleAttachments"
)

func (t FieldType) Known() bool {
	switch t {
	case FieldText, FieldLongText, FieldSingleSelect, FieldMultiSelect, FieldAttachments:
		return true
	}
	return false
}

// Multi reports whether the field holds a collection of values.
func (t FieldType) Multi() bool {
	return t == FieldMultiSelect || t == FieldAttachments
}

type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
)

func (op Operator) Known() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains:
		return true
	}
	return false
}

type RuleAction string

const (
	ActionShow RuleAction = "show"
	ActionHide RuleAction = "hide"
)

func (a RuleAction) Known() bool {
	return a == ActionShow || a == ActionHide
}

type Choice struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// FieldDef describes one form input bound to a column of the source table.
// Immutable once the form is published, except through a whole-definition
// update.
type FieldDef struct {
	ID            string    `json:"id"`
	SourceFieldID string    `json:"sourceFieldId"`
	Label         string    `json:"label"`
	Type          FieldType `json:"type"`
	Required      bool      `json:"required"`
	Options       []Choice  `json:"options,omitempty"`
}

// Rule conditionally shows or hides its target field based on the current
// value of its trigger field. Rules are evaluated in declared order.
type Rule struct {
	ID             string     `json:"id,omitempty"`
	TriggerFieldID string     `json:"triggerFieldId"`
	Operator       Operator   `json:"operator"`
	CompareValue   string     `json:"value"`
	Action         RuleAction `json:"action"`
	TargetFieldID  string     `json:"targetFieldId"`
}

type Form struct {
	ID          string     `json:"id,omitempty"`
	AccountID   string     `json:"-"`
	BaseID      string     `json:"baseId"`
	TableID     string     `json:"tableId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Version     int        `json:"version,omitempty"`
	Fields      []FieldDef `json:"fields"`
	Rules       []Rule     `json:"rules"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

// Credential is the persisted access/refresh token pair for one connected
// account. ExpiresAt is nil when the provider did not report a lifetime.
type Credential struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	LastLogin time.Time `json:"lastLogin"`
}

// Submission is the append-only record of one accepted form submission.
type Submission struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	Values      map[string]any `json:"values"`
	RecordID    string         `json:"recordId"`
	SubmittedAt time.Time      `json:"submittedAt"`
	IP          string         `json:"ip"`
}
