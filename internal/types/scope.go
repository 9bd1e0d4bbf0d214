package types

// Scope says which configuration a segment row belongs to: the live
// published configuration, or exactly one draft ChangeSet. It replaces the
// nullable change-set column idiom so call sites cannot forget the nil check.
//
// The zero value is the published scope.
type Scope struct {
	changeSetID string
}

// Published is the scope of the live configuration the runtime consumes.
var Published = Scope{}

// Draft returns the scope of one draft ChangeSet.
func Draft(changeSetID string) Scope {
	return Scope{changeSetID: changeSetID}
}

// IsPublished reports whether the scope is the live configuration.
func (s Scope) IsPublished() bool { return s.changeSetID == "" }

// ChangeSetID returns the draft's ChangeSet id, and false for the published
// scope.
func (s Scope) ChangeSetID() (string, bool) {
	return s.changeSetID, s.changeSetID != ""
}

// Column returns the value persisted for this scope. The published scope is
// stored as the empty string because SQLite unique indexes treat NULLs as
// distinct and (routing, name) must stay unique in the published scope too.
func (s Scope) Column() string { return s.changeSetID }

// ScopeFromColumn reconstructs a Scope from its persisted value.
func ScopeFromColumn(v string) Scope { return Scope{changeSetID: v} }

func (s Scope) String() string {
	if s.changeSetID == "" {
		return "published"
	}
	return "draft:" + s.changeSetID
}
