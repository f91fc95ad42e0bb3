// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the record types shared across the assistant
// services: the ITSM entities mirrored from the remote platform, the
// versioned Snapshot that holds them, and the per-turn grounding types.
//
// Records are validated at the fetch boundary (services/assistant/remote)
// before they enter the core, so every field here is already typed and
// every optional field is an explicit pointer.
package datatypes

import "time"

// CurrentSchemaVersion is the snapshot schema version written by this
// build. A stored snapshot with any other version is treated as absent
// and triggers a full rebuild.
const CurrentSchemaVersion = 4

// FreshnessWindow is the maximum age after which a snapshot is stale
// regardless of schema match.
const FreshnessWindow = 30 * time.Minute

// TicketKind distinguishes the two ticket collections the platform serves.
type TicketKind string

const (
	// KindIncident is an unplanned interruption or degradation.
	KindIncident TicketKind = "incident"

	// KindServiceRequest is a user-initiated request for a service.
	KindServiceRequest TicketKind = "service_request"
)

// TicketStatus enumerates ticket lifecycle states.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusPending    TicketStatus = "pending"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityMedium   TicketPriority = "medium"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

// Ticket is a single incident or service request.
//
// ID is the platform's internal 32-hex identifier; Number is the
// human-facing reference ("INC #1042").
type Ticket struct {
	ID          string         `json:"id"`
	Number      int            `json:"number"`
	Kind        TicketKind     `json:"kind"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      TicketStatus   `json:"status"`
	Priority    TicketPriority `json:"priority"`
	RequesterID string         `json:"requester_id"`
	AssigneeID  *string        `json:"assignee_id,omitempty"`
	TeamID      *string        `json:"team_id,omitempty"`
	CategoryID  *string        `json:"category_id,omitempty"`
	ServiceID   *string        `json:"service_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
}

// RecordID implements snapshot.Identifiable.
func (t Ticket) RecordID() string { return t.ID }

// Employee is a directory entry for a platform user.
type Employee struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	JobTitle     string    `json:"job_title,omitempty"`
	DepartmentID *string   `json:"department_id,omitempty"`
	RoleIDs      []string  `json:"role_ids,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecordID implements snapshot.Identifiable.
func (e Employee) RecordID() string { return e.ID }

// Category is a ticket classification node.
type Category struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
}

// RecordID implements snapshot.Identifiable.
func (c Category) RecordID() string { return c.ID }

// Service is a catalog entry users can request against.
type Service struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	OwnerTeamID *string `json:"owner_team_id,omitempty"`
}

// RecordID implements snapshot.Identifiable.
func (s Service) RecordID() string { return s.ID }

// Team is a fulfillment group.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// RecordID implements snapshot.Identifiable.
func (t Team) RecordID() string { return t.ID }

// Department is an organizational unit.
type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordID implements snapshot.Identifiable.
func (d Department) RecordID() string { return d.ID }

// Role is a named permission bundle as the platform reports it.
type Role struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// RecordID implements snapshot.Identifiable.
func (r Role) RecordID() string { return r.ID }

// Capabilities are the boolean visibility/edit flags supplied per actor.
// They are inputs to the core, never derived or mutated by it.
type Capabilities struct {
	CanViewAllTickets bool `json:"can_view_all_tickets"`
	CanViewAllUsers   bool `json:"can_view_all_users"`
	CanEditAllTickets bool `json:"can_edit_all_tickets"`
	CanManageServices bool `json:"can_manage_services"`
}

// Actor identifies the person a conversational turn is running for,
// together with the capability flags the caller resolved for them.
type Actor struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	DisplayName  string       `json:"display_name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Snapshot is a versioned point-in-time mirror of the remote entity
// collections. It is owned exclusively by the snapshot builder and
// rebuilt wholesale, never patched field by field.
type Snapshot struct {
	Employees           []Employee   `json:"employees"`
	Incidents           []Ticket     `json:"incidents"`
	ServiceRequests     []Ticket     `json:"service_requests"`
	Categories          []Category   `json:"categories"`
	Services            []Service    `json:"services"`
	Teams               []Team       `json:"teams"`
	Departments         []Department `json:"departments"`
	Roles               []Role       `json:"roles"`
	OwnRequesterTickets []Ticket     `json:"own_requester_tickets"`
	LastUpdated         time.Time    `json:"last_updated"`
	SchemaVersion       int          `json:"schema_version"`
}

// Usable reports whether the snapshot can serve reads: schema version
// matches the current build and the freshness window has not elapsed.
func (s *Snapshot) Usable(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.SchemaVersion != CurrentSchemaVersion {
		return false
	}
	return now.Sub(s.LastUpdated) < FreshnessWindow
}

// GroundedFactSet is the set of facts actually supplied to the language
// model for one conversational turn. It is ephemeral and never persisted.
type GroundedFactSet struct {
	// Facts maps fact names to the values disclosed this turn.
	Facts map[string]any `json:"facts"`

	// MissingInfo lists data the turn needed but could not obtain.
	MissingInfo []string `json:"missing_info,omitempty"`

	// Errors lists degraded sections (logged, never surfaced raw).
	Errors []string `json:"errors,omitempty"`
}

// NewGroundedFactSet creates an empty fact set.
func NewGroundedFactSet() *GroundedFactSet {
	return &GroundedFactSet{Facts: make(map[string]any)}
}

// ChangeType classifies a detected remote modification.
type ChangeType string

const (
	// ChangeCreated is a record seen for the first time.
	ChangeCreated ChangeType = "created"

	// ChangeUpdated is a record whose modification stamp moved.
	ChangeUpdated ChangeType = "updated"
)

// ChangeEvent describes one detected remote modification.
type ChangeEvent struct {
	Type          ChangeType `json:"type"`
	ID            string     `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
}
