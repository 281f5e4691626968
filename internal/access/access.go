// Package access is the club's permission policy.
//
// Can is a pure decision over an already-resolved identity: it never authenticates and has
// no side effects, so HTTP middleware, services and the CLI can all ask the same question.
//
// Three roles exist:
//   - anonymous: reads public aggregates only (round definitions, competition results, ladder)
//   - archer:    reads and writes their own scores while the session is Preliminary,
//     reads their own history and personal bests, reads other archers' Final sessions
//   - recorder:  everything, including approving sessions and managing reference data
package access

import "github.com/trentd187/archery-club/internal/models"

// Role is the caller's permission level.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleArcher    Role = "archer"
	RoleRecorder  Role = "recorder"
)

// Operation is what the caller wants to do.
type Operation string

const (
	// OpReadPublic reads round definitions, competition results and the ladder.
	OpReadPublic Operation = "read_public"
	// OpReadScores reads a session, score history or personal bests of Resource.OwnerArcherID.
	OpReadScores Operation = "read_scores"
	// OpWriteScores creates a session or saves an end for Resource.OwnerArcherID.
	OpWriteScores Operation = "write_scores"
	// OpApproveSession moves a session from Preliminary to Final.
	OpApproveSession Operation = "approve_session"
	// OpManageReference covers rounds, ranges, divisions, age classes, categories,
	// competitions and competition entries.
	OpManageReference Operation = "manage_reference"
)

// Identity is the resolved caller. ArcherID is zero for anonymous callers and for members
// that are not on the archer roster.
type Identity struct {
	Role     Role
	MemberID int64
	ArcherID int64
}

// Anonymous is the identity of an unauthenticated caller.
var Anonymous = Identity{Role: RoleAnonymous}

// Authenticated reports whether the identity came from a verified token.
func (id Identity) Authenticated() bool {
	return id.Role == RoleArcher || id.Role == RoleRecorder
}

// Owns reports whether archerID is the caller's own archer record.
func (id Identity) Owns(archerID int64) bool {
	return id.ArcherID != 0 && id.ArcherID == archerID
}

// Resource describes the data an operation touches. For score operations OwnerArcherID is
// the archer the session (or history) belongs to and Status is the session status, empty
// when there is no session yet.
type Resource struct {
	OwnerArcherID int64
	Status        models.SessionStatus
}

// SessionResource describes an existing session.
func SessionResource(s models.Session) Resource {
	return Resource{OwnerArcherID: s.ArcherID, Status: s.Status}
}

// OwnerResource describes an archer's data as a whole (history, personal bests, a new session).
func OwnerResource(archerID int64) Resource {
	return Resource{OwnerArcherID: archerID}
}

// Public is the resource of public aggregates.
var Public = Resource{}

// Can reports whether id may perform op on res.
func Can(id Identity, op Operation, res Resource) bool {
	switch id.Role {
	case RoleRecorder:
		return true
	case RoleArcher:
		switch op {
		case OpReadPublic:
			return true
		case OpReadScores:
			return id.Owns(res.OwnerArcherID) || res.Status == models.SessionStatusFinal
		case OpWriteScores:
			return id.Owns(res.OwnerArcherID) && res.Status != models.SessionStatusFinal
		default:
			return false
		}
	case RoleAnonymous:
		return op == OpReadPublic
	default:
		return false
	}
}
