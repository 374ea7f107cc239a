package api

import (
	"github.com/starford/dagaz/internal/freebusy"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/session"
)

// PlanRequest is the request body for POST /ai/plan.
type PlanRequest struct {
	UserMessage string `json:"userMessage" example:"Move tomorrow's standup to 10am" validate:"required"`
	// ExistingEvents is the client's view of the collection. When absent the
	// stored collection is used.
	ExistingEvents *[]models.Entity `json:"existingEvents,omitempty"`
	// Today is the client's local date (YYYY-MM-DD) used to resolve relative
	// dates. Defaults to the server's date.
	Today string `json:"today,omitempty" example:"2026-10-17"`
}

// Plan is the planning response (aliased from the domain layer).
type Plan = models.Plan

// ReplaceRequest is the request body for PUT /entities.
type ReplaceRequest struct {
	Entities []models.Entity `json:"entities" validate:"required"`
}

// CollectionResponse is a user's entities with their checksum (aliased from
// the domain layer).
type CollectionResponse = session.Collection

// SlotResponse is a free interval (aliased from the domain layer).
type SlotResponse = freebusy.Slot
