// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - external_id_mapping.go: identifier map rows, one per (entity, channel)
// - taxonomy_term.go: resolved taxonomy terms cached across runs
package models
