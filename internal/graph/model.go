// Package graph implements the knowledge graph store: claims, sources,
// entities, topics and their typed relations, with provenance-chain and
// related-claim traversals and lightweight contradiction detection.
//
// See DESIGN.md for the grounding of the Claim shape, CopyFrom bulk
// insert, and Evidence/SourceType enums.
package graph

import (
	"time"

	"github.com/google/uuid"
)

// EntityType enumerates the kinds of entity a claim can mention.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityFile         EntityType = "FILE"
	EntityFunction     EntityType = "FUNCTION"
	EntityClass        EntityType = "CLASS"
	EntityModule       EntityType = "MODULE"
	EntityVariable     EntityType = "VARIABLE"
	EntityDependency   EntityType = "DEPENDENCY"
	EntityOther        EntityType = "OTHER"
)

// Entity identity is the pair (Name, Type). Temporal validity is inclusive
// on both bounds; a nil bound is unbounded.
type Entity struct {
	Name           string
	Type           EntityType
	Metadata       map[string]any
	ValidFrom      *time.Time
	ValidTo        *time.Time
	SourceLocation string
}

// Key returns the identity tuple used for map lookups and equality.
func (e Entity) Key() EntityKey { return EntityKey{Name: e.Name, Type: e.Type} }

// EntityKey is Entity's comparable identity.
type EntityKey struct {
	Name string
	Type EntityType
}

// IsValid reports whether t falls within [ValidFrom, ValidTo] inclusive,
// treating a nil bound as unbounded (Entity temporal validity).
func (e Entity) IsValid(t time.Time) bool {
	t = t.UTC()
	if e.ValidFrom != nil && t.Before(e.ValidFrom.UTC()) {
		return false
	}
	if e.ValidTo != nil && t.After(e.ValidTo.UTC()) {
		return false
	}
	return true
}

// Source is identified by its URL.
type Source struct {
	URL             string
	Title           string
	PublicationDate *time.Time
	Author          string
	Domain          string
	LastAccessed    time.Time
	Metadata        map[string]any
}

// RelationType enumerates the directed edge kinds between graph nodes.
type RelationType string

const (
	RelationSourcedFrom RelationType = "SOURCED_FROM"
	RelationDerivedFrom RelationType = "DERIVED_FROM"
	RelationMentions    RelationType = "MENTIONS"
	RelationAbout       RelationType = "ABOUT"
	RelationGeneratedIn RelationType = "GENERATED_IN"
	RelationContradicts RelationType = "CONTRADICTS"
	RelationSupports    RelationType = "SUPPORTS"
	RelationRelatedTo   RelationType = "RELATED_TO"
)

// Relation is a directed edge; the triple (FromID, ToID, Type) is the
// primary key.
type Relation struct {
	FromID   string
	ToID     string
	Type     RelationType
	Metadata map[string]any
}

// Claim is a sentence-level assertion with optional embedding, attributed
// to a source and session.
type Claim struct {
	ClaimID         uuid.UUID
	Text            string
	Confidence      float64
	SourceURL       string
	SourceTitle     string
	PublicationDate *time.Time
	Entities        []Entity
	Topics          []string
	AgentID         string
	SessionID       string
	Embedding       []float32
	CreatedAt       time.Time
	Metadata        map[string]any
}

// ProvenanceNode is one step of a provenance-chain walk: either a claim or
// a source.
type ProvenanceNode struct {
	Type   string // "claim" or "source"
	ID     string
	Claim  *Claim
	Source *Source
}

// RelatedClaim pairs a claim with its minimum BFS hop distance from the
// query claim (get_related_claims).
type RelatedClaim struct {
	Claim       Claim
	HopDistance int
}
