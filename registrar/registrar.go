// Package registrar talks to the institution's course data API. It is the
// only component that sees live enrollment numbers; everything else works
// off the persistent store.
package registrar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/config"
)

var _ seatsnatch.CourseDataService = Client{}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient builds a registrar client. The configured timeout bounds every
// request so a stalled upstream cannot stall page rendering.
func NewClient(cfg config.Registrar) Client {
	return Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

type ClassPayload struct {
	ClassNumber string `json:"class_number"`
	Section     string `json:"section"`
	TypeName    string `json:"type_name"`
	Enrollment  int    `json:"enrollment"`
	Capacity    int    `json:"capacity"`
}

type CoursePayload struct {
	CourseID         string         `json:"course_id"`
	Subject          string         `json:"subject"`
	CatalogNumber    string         `json:"catalog_number"`
	Title            string         `json:"title"`
	SeatReservations string         `json:"seat_reservations"`
	Crosslistings    []Crosslisting `json:"crosslistings"`
	Classes          []ClassPayload `json:"classes"`
}

type Crosslisting struct {
	Subject       string `json:"subject"`
	CatalogNumber string `json:"catalog_number"`
}

type TermPayload struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// SectionCounts fetches live enrollment and capacity for one section.
func (c Client) SectionCounts(ctx context.Context, classid string) (seatsnatch.Counts, error) {
	var payload ClassPayload
	if err := c.get(ctx, "/classes/"+url.PathEscape(classid), &payload); err != nil {
		return seatsnatch.Counts{}, err
	}
	return seatsnatch.Counts{Enrollment: payload.Enrollment, Capacity: payload.Capacity}, nil
}

// CourseCounts fetches live counts for every section of a course in one
// request, keyed by classid.
func (c Client) CourseCounts(ctx context.Context, courseid string) (map[string]seatsnatch.Counts, error) {
	var payload struct {
		Classes []ClassPayload `json:"classes"`
	}
	if err := c.get(ctx, "/courses/"+url.PathEscape(courseid)+"/classes", &payload); err != nil {
		return nil, err
	}

	counts := make(map[string]seatsnatch.Counts, len(payload.Classes))
	for _, class := range payload.Classes {
		counts[class.ClassNumber] = seatsnatch.Counts{Enrollment: class.Enrollment, Capacity: class.Capacity}
	}
	return counts, nil
}

// CurrentTerm returns the code and name of the term the registrar marks
// current.
func (c Client) CurrentTerm(ctx context.Context) (string, string, error) {
	var payload struct {
		Terms []TermPayload `json:"terms"`
	}
	if err := c.get(ctx, "/terms", &payload); err != nil {
		return "", "", err
	}

	for _, term := range payload.Terms {
		if term.Current {
			return term.Code, term.Name, nil
		}
	}
	return "", "", fmt.Errorf("no current term in registrar response: %w", seatsnatch.ErrUpstreamUnavailable)
}

// Subjects lists every department code offered in a term.
func (c Client) Subjects(ctx context.Context, term string) ([]string, error) {
	var payload struct {
		Subjects []string `json:"subjects"`
	}
	if err := c.get(ctx, "/terms/"+url.PathEscape(term)+"/subjects", &payload); err != nil {
		return nil, err
	}
	return payload.Subjects, nil
}

// Courses lists every course of a subject in a term, sections included.
func (c Client) Courses(ctx context.Context, term, subject string) ([]CoursePayload, error) {
	var payload struct {
		Courses []CoursePayload `json:"courses"`
	}
	path := "/terms/" + url.PathEscape(term) + "/subjects/" + url.PathEscape(subject) + "/courses"
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Courses, nil
}

func (c Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registrar request failed: %w", seatsnatch.ErrUpstreamUnavailable)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("registrar returned %d for %s: %w", res.StatusCode, path, seatsnatch.ErrUpstreamUnavailable)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registrar response: %w", seatsnatch.ErrUpstreamUnavailable)
	}
	return nil
}
