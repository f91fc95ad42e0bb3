// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assembler renders the grounding digest a conversational turn
// receives alongside the user's question.
//
// The digest is built from the local snapshot, never from live remote
// calls. Capability gates are evaluated before any record is touched:
// a section the actor may not see contributes nothing to the digest,
// so redaction bugs cannot leak content that was appended first and
// filtered later. Every section is bounded, with an explicit "and N
// more" marker when records are held back, and the digest closes with
// the provenance rules the model must follow.
package assembler

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/NotTwinkle/ServiceIT-AI-Extension-sub000/services/assistant/datatypes"
)

// Disclosure bounds. Section limits are clamped into this range.
const (
	minSectionLines = 10
	maxSectionLines = 150
)

// Config bounds per-section disclosure.
type Config struct {
	// MaxTicketLines caps disclosed tickets. Default: 50.
	MaxTicketLines int

	// MaxEmployeeLines caps disclosed directory entries. Default: 25.
	MaxEmployeeLines int

	// MaxCatalogLines caps disclosed categories, services, teams and
	// departments, each. Default: 20.
	MaxCatalogLines int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxTicketLines:   50,
		MaxEmployeeLines: 25,
		MaxCatalogLines:  20,
	}
}

// Request is one assembly invocation.
type Request struct {
	// Actor is the person this turn runs for.
	Actor datatypes.Actor

	// Query is the user's message, consulted only for temporal hints.
	Query string

	// Now anchors temporal parsing. Zero means time.Now().
	Now time.Time
}

// Assembler renders grounding digests.
//
// Thread Safety: Safe for concurrent use, Assemble is stateless.
type Assembler struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs an Assembler, clamping section limits into the
// allowed disclosure range.
func New(cfg Config, logger *slog.Logger) *Assembler {
	def := DefaultConfig()
	if cfg.MaxTicketLines == 0 {
		cfg.MaxTicketLines = def.MaxTicketLines
	}
	if cfg.MaxEmployeeLines == 0 {
		cfg.MaxEmployeeLines = def.MaxEmployeeLines
	}
	if cfg.MaxCatalogLines == 0 {
		cfg.MaxCatalogLines = def.MaxCatalogLines
	}
	cfg.MaxTicketLines = clampLines(cfg.MaxTicketLines)
	cfg.MaxEmployeeLines = clampLines(cfg.MaxEmployeeLines)
	cfg.MaxCatalogLines = clampLines(cfg.MaxCatalogLines)

	return &Assembler{cfg: cfg, logger: logger}
}

func clampLines(n int) int {
	if n < minSectionLines {
		return minSectionLines
	}
	if n > maxSectionLines {
		return maxSectionLines
	}
	return n
}

// Assemble renders the digest for one turn.
//
// Inputs:
//
//	snap - The current snapshot. Must not be nil.
//	req - Actor, query and clock for this turn.
//
// Outputs:
//
//	string - The digest text handed to the model.
//	*datatypes.GroundedFactSet - The facts the digest disclosed, fed
//	to the grounding validator afterwards.
func (a *Assembler) Assemble(snap *datatypes.Snapshot, req Request) (string, *datatypes.GroundedFactSet) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	facts := datatypes.NewGroundedFactSet()
	win := parseWindow(req.Query, now)

	var b strings.Builder
	b.WriteString("SERVICE DESK CONTEXT\n")
	fmt.Fprintf(&b, "Acting user: %s <%s> (id=%s)\n", req.Actor.DisplayName, req.Actor.Email, req.Actor.ID)
	fmt.Fprintf(&b, "Time window: %s\n", win.Label)
	facts.Facts["actor_id"] = req.Actor.ID
	facts.Facts["actor_email"] = req.Actor.Email

	a.appendTickets(&b, snap, req.Actor, win, facts)
	a.appendEmployees(&b, snap, req.Actor, facts)
	a.appendCatalog(&b, snap, facts)
	a.appendOrg(&b, snap, req.Actor, facts)

	if snap.LastUpdated.IsZero() {
		facts.MissingInfo = append(facts.MissingInfo, "snapshot has never completed a build")
	} else {
		fmt.Fprintf(&b, "\nData as of: %s\n", snap.LastUpdated.Format(time.RFC3339))
	}

	b.WriteString(provenanceBlock)
	return b.String(), facts
}

// appendTickets discloses the ticket section. The capability gate runs
// before any ticket is read: without the all-tickets capability only
// the actor's own requester tickets are considered at all.
func (a *Assembler) appendTickets(b *strings.Builder, snap *datatypes.Snapshot, actor datatypes.Actor, win window, facts *datatypes.GroundedFactSet) {
	var pool []datatypes.Ticket
	if actor.Capabilities.CanViewAllTickets {
		pool = append(pool, snap.Incidents...)
		pool = append(pool, snap.ServiceRequests...)
	} else {
		pool = append(pool, snap.OwnRequesterTickets...)
		facts.MissingInfo = append(facts.MissingInfo, "ticket visibility limited to the acting user's own requests")
	}

	// The window scopes creation time only: "last week" asks for
	// tickets filed last week, not old tickets that happened to churn.
	var visible []datatypes.Ticket
	for _, t := range pool {
		if win.contains(t.CreatedAt) {
			visible = append(visible, t)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].UpdatedAt.After(visible[j].UpdatedAt)
	})

	fmt.Fprintf(b, "\nTICKETS (%s):\n", win.Label)
	if len(visible) == 0 {
		b.WriteString("(none in this window)\n")
		return
	}

	var ids, refs []string
	shown := visible
	if len(shown) > a.cfg.MaxTicketLines {
		shown = shown[:a.cfg.MaxTicketLines]
	}
	for _, t := range shown {
		ref := ticketRef(t)
		fmt.Fprintf(b, "- [%s] %s (status=%s, priority=%s, updated=%s) id=%s\n",
			ref, t.Title, t.Status, t.Priority, t.UpdatedAt.Format("2006-01-02"), t.ID)
		ids = append(ids, t.ID)
		refs = append(refs, ref)
	}
	if hidden := len(visible) - len(shown); hidden > 0 {
		fmt.Fprintf(b, "... and %d more\n", hidden)
	}

	facts.Facts["ticket_ids"] = ids
	facts.Facts["ticket_refs"] = refs
}

// appendEmployees discloses the directory only to actors holding the
// all-users capability; everyone else gets just their own entry.
func (a *Assembler) appendEmployees(b *strings.Builder, snap *datatypes.Snapshot, actor datatypes.Actor, facts *datatypes.GroundedFactSet) {
	if !actor.Capabilities.CanViewAllUsers {
		facts.MissingInfo = append(facts.MissingInfo, "employee directory hidden from the acting user")
		return
	}

	b.WriteString("\nEMPLOYEES:\n")
	var ids, emails []string
	shown := snap.Employees
	if len(shown) > a.cfg.MaxEmployeeLines {
		shown = shown[:a.cfg.MaxEmployeeLines]
	}
	for _, e := range shown {
		fmt.Fprintf(b, "- %s <%s> id=%s\n", e.DisplayName, e.Email, e.ID)
		ids = append(ids, e.ID)
		emails = append(emails, e.Email)
	}
	if hidden := len(snap.Employees) - len(shown); hidden > 0 {
		fmt.Fprintf(b, "... and %d more\n", hidden)
	}

	facts.Facts["employee_ids"] = ids
	facts.Facts["employee_emails"] = emails
}

// appendCatalog discloses categories and services, visible to every
// actor.
func (a *Assembler) appendCatalog(b *strings.Builder, snap *datatypes.Snapshot, facts *datatypes.GroundedFactSet) {
	if len(snap.Categories) > 0 {
		b.WriteString("\nCATEGORIES:\n")
		var names []string
		shown := snap.Categories
		if len(shown) > a.cfg.MaxCatalogLines {
			shown = shown[:a.cfg.MaxCatalogLines]
		}
		for _, c := range shown {
			fmt.Fprintf(b, "- %s id=%s\n", c.Name, c.ID)
			names = append(names, c.Name)
		}
		if hidden := len(snap.Categories) - len(shown); hidden > 0 {
			fmt.Fprintf(b, "... and %d more\n", hidden)
		}
		facts.Facts["category_names"] = names
	}

	if len(snap.Services) > 0 {
		b.WriteString("\nSERVICES:\n")
		var names []string
		shown := snap.Services
		if len(shown) > a.cfg.MaxCatalogLines {
			shown = shown[:a.cfg.MaxCatalogLines]
		}
		for _, s := range shown {
			fmt.Fprintf(b, "- %s id=%s\n", s.Name, s.ID)
			names = append(names, s.Name)
		}
		if hidden := len(snap.Services) - len(shown); hidden > 0 {
			fmt.Fprintf(b, "... and %d more\n", hidden)
		}
		facts.Facts["service_names"] = names
	}
}

// appendOrg discloses teams and departments to actors who can see the
// directory.
func (a *Assembler) appendOrg(b *strings.Builder, snap *datatypes.Snapshot, actor datatypes.Actor, facts *datatypes.GroundedFactSet) {
	if !actor.Capabilities.CanViewAllUsers {
		return
	}

	if len(snap.Teams) > 0 {
		b.WriteString("\nTEAMS:\n")
		shown := snap.Teams
		if len(shown) > a.cfg.MaxCatalogLines {
			shown = shown[:a.cfg.MaxCatalogLines]
		}
		var names []string
		for _, tm := range shown {
			fmt.Fprintf(b, "- %s id=%s\n", tm.Name, tm.ID)
			names = append(names, tm.Name)
		}
		if hidden := len(snap.Teams) - len(shown); hidden > 0 {
			fmt.Fprintf(b, "... and %d more\n", hidden)
		}
		facts.Facts["team_names"] = names
	}

	if len(snap.Departments) > 0 {
		b.WriteString("\nDEPARTMENTS:\n")
		shown := snap.Departments
		if len(shown) > a.cfg.MaxCatalogLines {
			shown = shown[:a.cfg.MaxCatalogLines]
		}
		var names []string
		for _, d := range shown {
			fmt.Fprintf(b, "- %s id=%s\n", d.Name, d.ID)
			names = append(names, d.Name)
		}
		if hidden := len(snap.Departments) - len(shown); hidden > 0 {
			fmt.Fprintf(b, "... and %d more\n", hidden)
		}
		facts.Facts["department_names"] = names
	}
}

// ticketRef renders the human-facing ticket reference, matching the
// form the grounding validator checks.
func ticketRef(t datatypes.Ticket) string {
	kind := "request"
	if t.Kind == datatypes.KindIncident {
		kind = "incident"
	}
	return fmt.Sprintf("%s #%d", kind, t.Number)
}

// provenanceBlock closes every digest. Kept as a single constant so
// the terminator is byte-stable for downstream checks.
const provenanceBlock = `
GROUNDING RULES:
- Answer only from the records listed above.
- Copy identifiers, emails and ticket references verbatim from this context.
- If a record is not listed here, say the information is not available.
- Never state that a ticket was created, updated or assigned unless a record above shows it.
END OF CONTEXT
`
