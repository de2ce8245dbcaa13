package seatsnatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain types and collaborator interfaces are defined in this file

// A Course groups the sections students can subscribe to. Disabled courses
// reject new subscriptions. HasReservedSeats changes how openings are
// detected for every section of the course.
type Course struct {
	ID               string    `json:"courseid" bson:"courseid"`
	DisplayName      string    `json:"displayname" bson:"displayname"`
	Title            string    `json:"title" bson:"title"`
	Disabled         bool      `json:"disabled" bson:"disabled"`
	HasReservedSeats bool      `json:"has_reserved_seats" bson:"has_reserved_seats"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updated_at"`
}

func (c Course) Valid() error {
	if c.ID == "" {
		return errors.New("Course ID cannot be empty")
	}
	if c.DisplayName == "" {
		return errors.New("Course display name cannot be empty")
	}
	return nil
}

// A Section is one schedulable class of a Course. Enrollment is the only
// field mutated outside this system; PrevEnrollment is the last-seen
// enrollment marker used by reserved-seat courses only.
type Section struct {
	ClassID        string   `json:"classid" bson:"classid"`
	CourseID       string   `json:"courseid" bson:"courseid"`
	Name           string   `json:"section" bson:"section"`
	Type           string   `json:"type_name" bson:"type_name"`
	Enrollment     int      `json:"enrollment" bson:"enrollment"`
	Capacity       int      `json:"capacity" bson:"capacity"`
	PrevEnrollment int      `json:"prev_enrollment" bson:"prev_enrollment"`
	SwapOut        []string `json:"swap_out" bson:"swap_out"`
}

func (s Section) Valid() error {
	if s.ClassID == "" {
		return errors.New("Section class ID cannot be empty")
	}
	if s.CourseID == "" {
		return errors.New("Section course ID cannot be empty")
	}
	if s.Capacity < 0 || s.Enrollment < 0 {
		return errors.New("Section counts cannot be negative")
	}
	return nil
}

func (s Section) String() string {
	return fmt.Sprintf("%s*%s", s.CourseID, s.ClassID)
}

// Full reports whether the section has no headroom left.
func (s Section) Full() bool {
	return s.Enrollment >= s.Capacity
}

// A User is created on first login. Waitlists holds the classids the user
// subscribes to; CurrentSections maps courseid to the classid the user is
// enrolled in, which drives trade matching.
type User struct {
	NetID           string            `json:"netid" bson:"netid"`
	Email           string            `json:"email" bson:"email"`
	Phone           string            `json:"phone" bson:"phone"`
	Waitlists       []string          `json:"waitlists" bson:"waitlists"`
	CurrentSections map[string]string `json:"current_sections" bson:"current_sections"`
	AutoResub       bool              `json:"auto_resub" bson:"auto_resub"`
}

func (u User) Valid() error {
	if u.NetID == "" {
		return errors.New("User netid cannot be empty")
	}
	return nil
}

func (u User) String() string {
	return fmt.Sprintf("%s:%s", u.NetID, u.Email)
}

// Subscribed reports whether the user holds a subscription for classid.
func (u User) Subscribed(classid string) bool {
	for _, id := range u.Waitlists {
		if id == classid {
			return true
		}
	}
	return false
}

// Counts is an enrollment/capacity pair fetched from the external course
// data source.
type Counts struct {
	Enrollment int `json:"enrollment"`
	Capacity   int `json:"capacity"`
}

// A Match is one mutual trade candidate returned by the matcher.
type Match struct {
	NetID       string `json:"netid"`
	SectionName string `json:"section"`
	Email       string `json:"email"`
}

// LogKind selects which of a user's activity logs an entry belongs to.
type LogKind string

const (
	WaitlistLog LogKind = "waitlist"
	TradeLog    LogKind = "trade"
)

// Repository is the persistent store shared by every component. Each
// mutation is atomic for the location it touches; compound two-location
// updates are serialized by the callers (see the waitlist package).
type Repository interface {
	// Users
	CreateUser(ctx context.Context, netid string) error
	GetUser(ctx context.Context, netid string) (User, error)
	UpdateUserContact(ctx context.Context, netid, email, phone string) error
	SetAutoResub(ctx context.Context, netid string, enabled bool) error

	// Courses and sections
	GetCourse(ctx context.Context, courseid string) (Course, error)
	UpsertCourse(ctx context.Context, course Course) error
	GetSection(ctx context.Context, classid string) (Section, error)
	SectionsInCourse(ctx context.Context, courseid string) ([]Section, error)
	UpsertSection(ctx context.Context, section Section) error
	UpdateEnrollment(ctx context.Context, classid string, enrollment, capacity int) error
	SetPrevEnrollment(ctx context.Context, classid string, enrollment int) error
	SetCourseDisabled(ctx context.Context, courseid string, disabled bool) error

	// Waitlists. AddSubscription appends the user to the tail of the
	// section queue and records the classid in the user's subscription
	// set; RemoveSubscription is the symmetric removal and deletes the
	// queue once drained, resetting the reserved-seat marker.
	AddSubscription(ctx context.Context, netid, classid string) error
	RemoveSubscription(ctx context.Context, netid, classid string) error
	Waitlist(ctx context.Context, classid string) ([]string, error)
	WaitedSections(ctx context.Context) ([]string, error)

	// Trades
	SetCurrentSection(ctx context.Context, netid, courseid, classid string) error
	ClearCurrentSection(ctx context.Context, netid, courseid string) error

	// Activity logs and term bookkeeping
	AppendActivity(ctx context.Context, netid string, kind LogKind, entry string) error
	Activity(ctx context.Context, netid string, kind LogKind) ([]string, error)
	SetTerm(ctx context.Context, code, name string) error
	Term(ctx context.Context) (code, name string, err error)
}

// Service that fetches live enrollment data from the institution's
// course data source.
type CourseDataService interface {
	SectionCounts(ctx context.Context, classid string) (Counts, error)
	CourseCounts(ctx context.Context, courseid string) (map[string]Counts, error)
}

// A Notice is everything a channel needs to render one notification.
type Notice struct {
	User     User
	Course   Course
	Section  Section
	Slots    int
	Resubbed bool
}

// A Channel delivers a notice over one transport. Failures are reported as
// a boolean by contract, not an error; the dispatcher logs and moves on.
type Channel interface {
	Name() string
	Send(ctx context.Context, notice Notice) bool
}

// Dispatcher consumes a slot-opening event for a section.
type Dispatcher interface {
	Notify(ctx context.Context, classid string, slots int) error
}

// AuthProvider supplies the verified identity for a request. Verification
// happens upstream; the engine only consumes the identity string.
type AuthProvider interface {
	Identify(ctx context.Context, token string) (string, error)
}
