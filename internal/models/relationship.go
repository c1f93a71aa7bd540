package models

import "time"

// RelationshipKind selects which relationship table a record lives in
type RelationshipKind string

const (
	KindInterpersonal RelationshipKind = "interpersonal"
	KindParentChild   RelationshipKind = "parent-child"
)

// RelationshipKinds lists the supported kinds
var RelationshipKinds = []RelationshipKind{KindInterpersonal, KindParentChild}

// ParseRelationshipKind converts a URL segment into a kind
func ParseRelationshipKind(s string) (RelationshipKind, bool) {
	for _, k := range RelationshipKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Label is the human readable name of the kind
func (k RelationshipKind) Label() string {
	if k == KindParentChild {
		return "Parent-child relationships"
	}
	return "Interpersonal relationships"
}

// PersonLabel names the first endpoint of the kind
func (k RelationshipKind) PersonLabel() string {
	if k == KindParentChild {
		return "Parent"
	}
	return "Person"
}

// RelativeLabel names the second endpoint of the kind
func (k RelationshipKind) RelativeLabel() string {
	if k == KindParentChild {
		return "Child"
	}
	return "Relative"
}

// RelationshipType names the relation, e.g. "mother" or "son"
type RelationshipType struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Relationship is a directed, typed edge between two people.
// For parent-child relationships PersonID is the parent and RelativeID the child.
type Relationship struct {
	ID               int64
	Kind             RelationshipKind
	PersonID         int64
	RelativeID       int64
	RelationTypeID   int64
	RelationTypeName string
	PersonName       string
	RelativeName     string
	CreatedBy        *int64
	UpdatedBy        *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FamilyMember is one edge seen from a given person
type FamilyMember struct {
	Kind     RelationshipKind
	PersonID int64
	Name     string
	Relation string
	Outgoing bool
}
