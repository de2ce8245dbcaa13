package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

var _ seatsnatch.Repository = (*Memory)(nil)

// Memory is a map-backed repository for tests and local development. A
// single mutex serializes every operation, which trivially satisfies the
// per-location atomicity the interface requires.
type Memory struct {
	mu        sync.Mutex
	users     map[string]*seatsnatch.User
	courses   map[string]*seatsnatch.Course
	sections  map[string]*seatsnatch.Section
	waitlists map[string][]string
	logs      map[string]map[seatsnatch.LogKind][]string
	termCode  string
	termName  string
}

func NewMemory() *Memory {
	return &Memory{
		users:     map[string]*seatsnatch.User{},
		courses:   map[string]*seatsnatch.Course{},
		sections:  map[string]*seatsnatch.Section{},
		waitlists: map[string][]string{},
		logs:      map[string]map[seatsnatch.LogKind][]string{},
	}
}

func (m *Memory) CreateUser(ctx context.Context, netid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[netid]; ok {
		return nil
	}
	m.users[netid] = &seatsnatch.User{
		NetID:           netid,
		Waitlists:       []string{},
		CurrentSections: map[string]string{},
	}
	m.logs[netid] = map[seatsnatch.LogKind][]string{}
	return nil
}

func (m *Memory) GetUser(ctx context.Context, netid string) (seatsnatch.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[netid]
	if !ok {
		return seatsnatch.User{}, fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	return copyUser(user), nil
}

func (m *Memory) UpdateUserContact(ctx context.Context, netid, email, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[netid]
	if !ok {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	user.Email = email
	user.Phone = phone
	return nil
}

func (m *Memory) SetAutoResub(ctx context.Context, netid string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[netid]
	if !ok {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	user.AutoResub = enabled
	return nil
}

func (m *Memory) GetCourse(ctx context.Context, courseid string) (seatsnatch.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	course, ok := m.courses[courseid]
	if !ok {
		return seatsnatch.Course{}, fmt.Errorf("course %s: %w", courseid, seatsnatch.ErrNotFound)
	}
	return *course, nil
}

func (m *Memory) UpsertCourse(ctx context.Context, course seatsnatch.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := course
	m.courses[course.ID] = &c
	return nil
}

func (m *Memory) GetSection(ctx context.Context, classid string) (seatsnatch.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	section, ok := m.sections[classid]
	if !ok {
		return seatsnatch.Section{}, fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	return copySection(section), nil
}

func (m *Memory) SectionsInCourse(ctx context.Context, courseid string) ([]seatsnatch.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sections []seatsnatch.Section
	for _, section := range m.sections {
		if section.CourseID == courseid {
			sections = append(sections, copySection(section))
		}
	}
	return sections, nil
}

func (m *Memory) UpsertSection(ctx context.Context, section seatsnatch.Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sections[section.ClassID]; ok {
		existing.CourseID = section.CourseID
		existing.Name = section.Name
		existing.Type = section.Type
		existing.Enrollment = section.Enrollment
		existing.Capacity = section.Capacity
		return nil
	}
	s := section
	s.PrevEnrollment = 0
	s.SwapOut = []string{}
	m.sections[section.ClassID] = &s
	return nil
}

func (m *Memory) UpdateEnrollment(ctx context.Context, classid string, enrollment, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	section, ok := m.sections[classid]
	if !ok {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	section.Enrollment = enrollment
	section.Capacity = capacity
	return nil
}

func (m *Memory) SetPrevEnrollment(ctx context.Context, classid string, enrollment int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	section, ok := m.sections[classid]
	if !ok {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	section.PrevEnrollment = enrollment
	return nil
}

func (m *Memory) SetCourseDisabled(ctx context.Context, courseid string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	course, ok := m.courses[courseid]
	if !ok {
		return fmt.Errorf("course %s: %w", courseid, seatsnatch.ErrNotFound)
	}
	course.Disabled = disabled
	return nil
}

func (m *Memory) AddSubscription(ctx context.Context, netid, classid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[netid]
	if !ok {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	if !contains(user.Waitlists, classid) {
		user.Waitlists = append(user.Waitlists, classid)
	}
	if !contains(m.waitlists[classid], netid) {
		m.waitlists[classid] = append(m.waitlists[classid], netid)
	}
	return nil
}

func (m *Memory) RemoveSubscription(ctx context.Context, netid, classid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[netid]
	if !ok {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	user.Waitlists = remove(user.Waitlists, classid)

	queue := remove(m.waitlists[classid], netid)
	if len(queue) == 0 {
		delete(m.waitlists, classid)
		if section, ok := m.sections[classid]; ok {
			if course, ok := m.courses[section.CourseID]; ok && course.HasReservedSeats {
				section.PrevEnrollment = 0
			}
		}
	} else {
		m.waitlists[classid] = queue
	}
	return nil
}

func (m *Memory) Waitlist(ctx context.Context, classid string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, ok := m.waitlists[classid]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), queue...), nil
}

func (m *Memory) WaitedSections(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	classids := make([]string, 0, len(m.waitlists))
	for classid := range m.waitlists {
		classids = append(classids, classid)
	}
	return classids, nil
}

func (m *Memory) SetCurrentSection(ctx context.Context, netid, courseid, classid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[netid]
	if !ok {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	if prev, ok := user.CurrentSections[courseid]; ok && prev != classid {
		if section, ok := m.sections[prev]; ok {
			section.SwapOut = remove(section.SwapOut, netid)
		}
	}

	user.CurrentSections[courseid] = classid
	section, ok := m.sections[classid]
	if !ok {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	if !contains(section.SwapOut, netid) {
		section.SwapOut = append(section.SwapOut, netid)
	}
	return nil
}

func (m *Memory) ClearCurrentSection(ctx context.Context, netid, courseid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[netid]
	if !ok {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	classid, ok := user.CurrentSections[courseid]
	if !ok {
		return fmt.Errorf("current section of %s for %s: %w", courseid, netid, seatsnatch.ErrNoCurrentSection)
	}

	delete(user.CurrentSections, courseid)
	if section, ok := m.sections[classid]; ok {
		section.SwapOut = remove(section.SwapOut, netid)
	}
	return nil
}

func (m *Memory) AppendActivity(ctx context.Context, netid string, kind seatsnatch.LogKind, entry string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.logs[netid]; !ok {
		m.logs[netid] = map[seatsnatch.LogKind][]string{}
	}
	stamped := fmt.Sprintf("%s: %s", time.Now().Format("Jan 2, 2006 @ 3:04 PM"), entry)
	m.logs[netid][kind] = append([]string{stamped}, m.logs[netid][kind]...)
	return nil
}

func (m *Memory) Activity(ctx context.Context, netid string, kind seatsnatch.LogKind) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.logs[netid]
	if !ok {
		return nil, fmt.Errorf("logs for %s: %w", netid, seatsnatch.ErrNotFound)
	}
	return append([]string(nil), entries[kind]...), nil
}

func (m *Memory) SetTerm(ctx context.Context, code, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.termCode, m.termName = code, name
	return nil
}

func (m *Memory) Term(ctx context.Context) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.termCode == "" {
		return "", "", fmt.Errorf("term record: %w", seatsnatch.ErrNotFound)
	}
	return m.termCode, m.termName, nil
}

func copyUser(u *seatsnatch.User) seatsnatch.User {
	out := *u
	out.Waitlists = append([]string(nil), u.Waitlists...)
	out.CurrentSections = map[string]string{}
	for k, v := range u.CurrentSections {
		out.CurrentSections[k] = v
	}
	return out
}

func copySection(s *seatsnatch.Section) seatsnatch.Section {
	out := *s
	out.SwapOut = append([]string(nil), s.SwapOut...)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
