// Package domain provides domain models used across the collector.
package domain

import (
	"time"
)

// CaseRecord represents a single diarium case row collected from a region.
// CaseNumber together with Source identifies the record; everything else is
// best-effort and may be empty.
type CaseRecord struct {
	// Source is the region id the record was collected from.
	Source string `db:"source" json:"source"`
	// CaseNumber is the registrar's case number (diarienummer).
	CaseNumber string `db:"case_number" json:"case_number"`
	// Title is the case heading (ärenderubrik).
	Title string `db:"title" json:"title"`
	// Status is the case status as published by the source.
	Status string `db:"status" json:"status"`
	// Sender is the sender/receiver column (avsändare/mottagare).
	Sender string `db:"sender" json:"sender,omitempty"`
	// Location is the place the case concerns.
	Location string `db:"location" json:"location,omitempty"`
	// Municipality is the municipality (kommun) the case concerns.
	Municipality string `db:"municipality" json:"municipality,omitempty"`
	// URL is the absolute link to the case detail page.
	URL string `db:"url" json:"url,omitempty"`
	// RegisteredAt is the registration date (indatum), nil when unknown.
	RegisteredAt *time.Time `db:"registered_at" json:"registered_at,omitempty"`
	// DecidedAt is the decision date (beslutsdatum), nil when not decided.
	DecidedAt *time.Time `db:"decided_at" json:"decided_at,omitempty"`
}

// CaseDocument is one row of a case's document list.
type CaseDocument struct {
	Title  string     `json:"title"`
	URL    string     `json:"url,omitempty"`
	Sender string     `json:"sender,omitempty"`
	Date   *time.Time `json:"date,omitempty"`
}

// CaseDetails holds the fields only available on a case's detail page.
type CaseDetails struct {
	// CaseNumber as stated on the detail page, used to verify the page
	// belongs to the expected case.
	CaseNumber string `json:"case_number,omitempty"`
	// Diarium names the register the case belongs to, e.g.
	// "Länsstyrelsen i Stockholms län".
	Diarium string `json:"diarium,omitempty"`
	// Status as shown on the detail page, often richer than the list value.
	Status string `json:"status,omitempty"`
	// Sender is the sender/receiver (avsändare/mottagare).
	Sender string `json:"sender,omitempty"`
	// Title is the case heading.
	Title string `json:"title,omitempty"`
	// Municipality the case concerns.
	Municipality string `json:"municipality,omitempty"`
	// RegisteredAt is the registration date (indatum).
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	// DecidedAt is the decision date (beslutsdatum).
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	// Documents lists the case's published documents.
	Documents []CaseDocument `json:"documents,omitempty"`
}

// UpsertResult discriminates whether an upsert created or updated a record.
type UpsertResult string

const (
	// ResultCreated means the record did not exist and was inserted.
	ResultCreated UpsertResult = "created"
	// ResultUpdated means an existing record was refreshed.
	ResultUpdated UpsertResult = "updated"
)
