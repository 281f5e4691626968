// Package models defines the data structures (models) that map to database tables.
// GORM uses these structs to generate SQL queries and map database rows back to Go values.
// The struct field tags (the backtick strings like `gorm:"..."`) tell GORM how to handle
// each field: its column type, constraints, default values, and relationships.
//
// The data model represents an archery club score system where:
//   - Archers shoot Sessions of a Round on a given date
//   - A Round is an ordered set of RoundRanges (distance + target face + number of ends)
//   - A Session owns Ends, each scoped to one RoundRange, and each End owns up to 6 Arrows
//   - Competitions group Sessions into Categories (age class + gender + division) and rank them
//
// The schema itself lives in migrations/ (golang-migrate); these structs must stay in step
// with it. CHECK and UNIQUE constraints are declared there, not through AutoMigrate.
package models

import "time"

// --- Enums ---
// Named string types plus constants, so a SessionStatus can't be passed where an
// ArrowValue is expected while the values stay human-readable in the database.

// GenderCode is the fixed set of genders an archer can be registered under.
type GenderCode string

const (
	GenderMale   GenderCode = "M"
	GenderFemale GenderCode = "F"
)

// DivisionCode is the bow type an archer shoots.
type DivisionCode string

const (
	DivisionRecurve        DivisionCode = "R"
	DivisionCompound       DivisionCode = "C"
	DivisionBarebow        DivisionCode = "B"
	DivisionLongbow        DivisionCode = "L"
	DivisionRecurveBarebow DivisionCode = "RB"
)

// SessionStatus tracks the lifecycle of a scored session.
// A session is created Preliminary, filled in end by end, and approved to Final by a recorder.
// Once Final it is immutable.
type SessionStatus string

const (
	SessionStatusPreliminary SessionStatus = "Preliminary"
	SessionStatusFinal       SessionStatus = "Final"
)

// ArrowValue is the scored value of a single arrow as written on the score sheet.
// "X" is the inner ten (scores 10) and "M" is a miss (scores 0).
type ArrowValue string

const (
	ArrowX     ArrowValue = "X"
	ArrowTen   ArrowValue = "10"
	ArrowNine  ArrowValue = "9"
	ArrowEight ArrowValue = "8"
	ArrowSeven ArrowValue = "7"
	ArrowSix   ArrowValue = "6"
	ArrowFive  ArrowValue = "5"
	ArrowFour  ArrowValue = "4"
	ArrowThree ArrowValue = "3"
	ArrowTwo   ArrowValue = "2"
	ArrowOne   ArrowValue = "1"
	ArrowMiss  ArrowValue = "M"
)

// Face sizes (cm) and ends-per-range values a RoundRange may use.
const (
	FaceSize80  = 80
	FaceSize122 = 122

	ArrowsPerEnd = 6
	MaxEndNo     = 6
)

// --- Models ---
// Each struct below maps to a database table. GORM uses the struct name (snake_cased and
// pluralized) as the table name by default: Archer -> archers, RoundRange -> round_ranges, etc.

// Gender is a lookup row for GenderCode.
type Gender struct {
	ID   int64      `gorm:"primaryKey"`
	Code GenderCode `gorm:"uniqueIndex;not null"`
}

// Division is a bow type. Inactive divisions remain on old records but an archer registered
// under one cannot start new sessions.
type Division struct {
	ID       int64        `gorm:"primaryKey"`
	Code     DivisionCode `gorm:"uniqueIndex;not null"`
	IsActive bool         `gorm:"not null;default:true"`
}

// AgeClass is one birth-year window for a policy year. Age brackets are redefined
// periodically, so the same code (e.g. "U18") appears once per policy year.
type AgeClass struct {
	ID           int64  `gorm:"primaryKey"`
	Code         string `gorm:"not null;uniqueIndex:idx_age_class_policy"`
	MinBirthYear int    `gorm:"not null"`
	MaxBirthYear int    `gorm:"not null"`
	PolicyYear   int    `gorm:"not null;uniqueIndex:idx_age_class_policy"`
}

// Contains reports whether birthYear falls inside the window (bounds inclusive).
func (a AgeClass) Contains(birthYear int) bool {
	return birthYear >= a.MinBirthYear && birthYear <= a.MaxBirthYear
}

// Category is a competition bucket: (age class, gender, division).
type Category struct {
	ID         int64    `gorm:"primaryKey"`
	AgeClassID int64    `gorm:"not null;uniqueIndex:idx_category_combination"`
	AgeClass   AgeClass `gorm:"foreignKey:AgeClassID"`
	GenderID   int64    `gorm:"not null;uniqueIndex:idx_category_combination"`
	Gender     Gender   `gorm:"foreignKey:GenderID"`
	DivisionID int64    `gorm:"not null;uniqueIndex:idx_category_combination"`
	Division   Division `gorm:"foreignKey:DivisionID"`
}

// Archer is a club archer on the roster.
type Archer struct {
	ID         int64    `gorm:"primaryKey"`
	BirthYear  int      `gorm:"not null"`
	GenderID   int64    `gorm:"not null"`
	Gender     Gender   `gorm:"foreignKey:GenderID"`
	DivisionID int64    `gorm:"not null"`
	Division   Division `gorm:"foreignKey:DivisionID"`
}

// ClubMember is a login identity. The identity collaborator hands out the member id;
// ArcherID links the member to the archer whose sessions they own (recorders may have none).
type ClubMember struct {
	ID         int64   `gorm:"primaryKey"`
	FullName   string  `gorm:"not null"`
	AVNumber   *string `gorm:"column:av_number;uniqueIndex"`
	IsRecorder bool    `gorm:"not null;default:false"`
	ArcherID   *int64
}

// Round is a named competition format made of an ordered set of ranges.
type Round struct {
	ID     int64        `gorm:"primaryKey"`
	Name   string       `gorm:"uniqueIndex;not null"`
	Ranges []RoundRange `gorm:"foreignKey:RoundID"`
}

// RoundRange is one distance/face segment of a round.
// (round, distance, face) is unique; face is 80 or 122 cm; a range has 5 or 6 ends.
type RoundRange struct {
	ID           int64 `gorm:"primaryKey"`
	RoundID      int64 `gorm:"not null;uniqueIndex:idx_round_distance"`
	DistanceM    int   `gorm:"column:distance_m;not null;uniqueIndex:idx_round_distance"`
	FaceSize     int   `gorm:"not null;uniqueIndex:idx_round_distance"`
	EndsPerRange int   `gorm:"not null"`
}

// ArrowCount is the number of arrows shot across the whole range.
func (r RoundRange) ArrowCount() int { return r.EndsPerRange * ArrowsPerEnd }

// Session is one archer shooting one round on one date.
type Session struct {
	ID        int64         `gorm:"primaryKey"`
	ArcherID  int64         `gorm:"not null;index"`
	Archer    Archer        `gorm:"foreignKey:ArcherID"`
	RoundID   int64         `gorm:"not null"`
	Round     Round         `gorm:"foreignKey:RoundID"`
	ShootDate time.Time     `gorm:"type:date;not null"`
	Status    SessionStatus `gorm:"not null;default:'Preliminary'"`
	Ends      []End         `gorm:"foreignKey:SessionID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFinal reports whether the session has been approved and is immutable.
func (s Session) IsFinal() bool { return s.Status == SessionStatusFinal }

// End is one batch of up to six arrows, numbered 1..6 within its (session, range).
type End struct {
	ID           int64      `gorm:"primaryKey"`
	SessionID    int64      `gorm:"not null;uniqueIndex:idx_session_range_end"`
	RoundRangeID int64      `gorm:"not null;uniqueIndex:idx_session_range_end"`
	RoundRange   RoundRange `gorm:"foreignKey:RoundRangeID"`
	EndNo        int        `gorm:"not null;uniqueIndex:idx_session_range_end"`
	Arrows       []Arrow    `gorm:"foreignKey:EndID"`
}

// Arrow is one scored arrow. ArrowNo is unique within its end.
type Arrow struct {
	ID      int64      `gorm:"primaryKey"`
	EndID   int64      `gorm:"not null;uniqueIndex:idx_end_arrow"`
	ArrowNo int        `gorm:"not null;uniqueIndex:idx_end_arrow"`
	Value   ArrowValue `gorm:"column:arrow_value;type:varchar(2);not null"`
}

// Competition links sessions of one round to categories.
type Competition struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	RoundID   int64     `gorm:"not null"`
	Round     Round     `gorm:"foreignKey:RoundID"`
	StartDate time.Time `gorm:"type:date;not null"`
	EndDate   time.Time `gorm:"type:date;not null"`
	RulesNote *string
}

// CompetitionEntry places one session in a competition category.
// FinalTotal, XCount, TenCount and RankInCategory are cached derivations of the arrow rows;
// they are recomputed whenever the session is finalized and can be verified at any time.
type CompetitionEntry struct {
	ID             int64       `gorm:"primaryKey"`
	SessionID      int64       `gorm:"not null;uniqueIndex:idx_competition_session"`
	Session        Session     `gorm:"foreignKey:SessionID"`
	CompetitionID  int64       `gorm:"not null;uniqueIndex:idx_competition_session"`
	Competition    Competition `gorm:"foreignKey:CompetitionID"`
	CategoryID     int64       `gorm:"not null"`
	Category       Category    `gorm:"foreignKey:CategoryID"`
	FinalTotal     *int
	XCount         *int
	TenCount       *int
	RankInCategory *int
}
