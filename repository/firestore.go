package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/config"
)

var _ seatsnatch.Repository = FirestoreRepository{}

// FirestoreRepository keys every document by its natural identifier
// (netid, courseid, classid) so lookups are direct reads. Array fields are
// mutated with ArrayUnion/ArrayRemove, which the server applies atomically.
type FirestoreRepository struct {
	firestore *firestore.Client
}

func newFirestoreRepository(ctx context.Context, cfg config.Firestore) (FirestoreRepository, error) {
	// Create a new Firestore client using application default credentials.
	if cfg.CredentialsFile == "" {
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return FirestoreRepository{}, err
		}
		return FirestoreRepository{client}, nil
	}

	// Create a new Firestore client using supplied credentials file.
	client, err := firestore.NewClient(ctx, cfg.ProjectID, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return FirestoreRepository{}, err
	}
	return FirestoreRepository{client}, nil
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (f FirestoreRepository) CreateUser(ctx context.Context, netid string) error {
	ref := f.firestore.Collection("users").Doc(netid)
	err := f.firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if err == nil {
			return nil
		}
		if !notFound(err) {
			return err
		}
		return tx.Set(ref, seatsnatch.User{
			NetID:           netid,
			Waitlists:       []string{},
			CurrentSections: map[string]string{},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", netid, err)
	}
	return nil
}

func (f FirestoreRepository) GetUser(ctx context.Context, netid string) (seatsnatch.User, error) {
	doc, err := f.firestore.Collection("users").Doc(netid).Get(ctx)
	if notFound(err) {
		return seatsnatch.User{}, fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to get user %s: %w", netid, err)
	}

	var user seatsnatch.User
	if err := doc.DataTo(&user); err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to deserialize user: %w", err)
	}
	return user, nil
}

func (f FirestoreRepository) UpdateUserContact(ctx context.Context, netid, email, phone string) error {
	_, err := f.firestore.Collection("users").Doc(netid).Update(ctx, []firestore.Update{
		{Path: "Email", Value: email},
		{Path: "Phone", Value: phone},
	})
	if notFound(err) {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update contact for %s: %w", netid, err)
	}
	return nil
}

func (f FirestoreRepository) SetAutoResub(ctx context.Context, netid string, enabled bool) error {
	_, err := f.firestore.Collection("users").Doc(netid).Update(ctx, []firestore.Update{
		{Path: "AutoResub", Value: enabled},
	})
	if notFound(err) {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to set auto resub for %s: %w", netid, err)
	}
	return nil
}

func (f FirestoreRepository) GetCourse(ctx context.Context, courseid string) (seatsnatch.Course, error) {
	doc, err := f.firestore.Collection("courses").Doc(courseid).Get(ctx)
	if notFound(err) {
		return seatsnatch.Course{}, fmt.Errorf("course %s: %w", courseid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.Course{}, fmt.Errorf("failed to get course %s: %w", courseid, err)
	}

	var course seatsnatch.Course
	if err := doc.DataTo(&course); err != nil {
		return seatsnatch.Course{}, fmt.Errorf("failed to deserialize course: %w", err)
	}
	return course, nil
}

func (f FirestoreRepository) UpsertCourse(ctx context.Context, course seatsnatch.Course) error {
	_, err := f.firestore.Collection("courses").Doc(course.ID).Set(ctx, course)
	if err != nil {
		return fmt.Errorf("failed to upsert course %s: %w", course.ID, err)
	}
	return nil
}

func (f FirestoreRepository) GetSection(ctx context.Context, classid string) (seatsnatch.Section, error) {
	doc, err := f.firestore.Collection("sections").Doc(classid).Get(ctx)
	if notFound(err) {
		return seatsnatch.Section{}, fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.Section{}, fmt.Errorf("failed to get section %s: %w", classid, err)
	}

	var section seatsnatch.Section
	if err := doc.DataTo(&section); err != nil {
		return seatsnatch.Section{}, fmt.Errorf("failed to deserialize section: %w", err)
	}
	return section, nil
}

func (f FirestoreRepository) SectionsInCourse(ctx context.Context, courseid string) ([]seatsnatch.Section, error) {
	documents, err := f.firestore.Collection("sections").Where("CourseID", "==", courseid).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list sections of course %s: %w", courseid, err)
	}

	var sections []seatsnatch.Section
	for _, document := range documents {
		var section seatsnatch.Section
		if err := document.DataTo(&section); err != nil {
			return nil, fmt.Errorf("failed to deserialize section: %w", err)
		}
		sections = append(sections, section)
	}
	return sections, nil
}

func (f FirestoreRepository) UpsertSection(ctx context.Context, section seatsnatch.Section) error {
	ref := f.firestore.Collection("sections").Doc(section.ClassID)
	err := f.firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil && !notFound(err) {
			return err
		}
		if err == nil {
			// keep swap_out and the reserved-seat marker across catalog refreshes
			var existing seatsnatch.Section
			if err := doc.DataTo(&existing); err != nil {
				return err
			}
			section.PrevEnrollment = existing.PrevEnrollment
			section.SwapOut = existing.SwapOut
		} else {
			section.PrevEnrollment = 0
			section.SwapOut = []string{}
		}
		return tx.Set(ref, section)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert section %s: %w", section.ClassID, err)
	}
	return nil
}

func (f FirestoreRepository) UpdateEnrollment(ctx context.Context, classid string, enrollment, capacity int) error {
	_, err := f.firestore.Collection("sections").Doc(classid).Update(ctx, []firestore.Update{
		{Path: "Enrollment", Value: enrollment},
		{Path: "Capacity", Value: capacity},
	})
	if notFound(err) {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update enrollment for %s: %w", classid, err)
	}
	return nil
}

func (f FirestoreRepository) SetPrevEnrollment(ctx context.Context, classid string, enrollment int) error {
	_, err := f.firestore.Collection("sections").Doc(classid).Update(ctx, []firestore.Update{
		{Path: "PrevEnrollment", Value: enrollment},
	})
	if notFound(err) {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update prev enrollment for %s: %w", classid, err)
	}
	return nil
}

func (f FirestoreRepository) SetCourseDisabled(ctx context.Context, courseid string, disabled bool) error {
	_, err := f.firestore.Collection("courses").Doc(courseid).Update(ctx, []firestore.Update{
		{Path: "Disabled", Value: disabled},
	})
	if notFound(err) {
		return fmt.Errorf("course %s: %w", courseid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to set disabled flag for %s: %w", courseid, err)
	}
	return nil
}

func (f FirestoreRepository) AddSubscription(ctx context.Context, netid, classid string) error {
	_, err := f.firestore.Collection("users").Doc(netid).Update(ctx, []firestore.Update{
		{Path: "Waitlists", Value: firestore.ArrayUnion(classid)},
	})
	if notFound(err) {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to add %s to subscriptions of %s: %w", classid, netid, err)
	}

	// ArrayUnion appends at the tail when absent, keeping queue order
	_, err = f.firestore.Collection("waitlists").Doc(classid).Set(ctx, map[string]interface{}{
		"ClassID":  classid,
		"Waitlist": firestore.ArrayUnion(netid),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to append %s to waitlist of %s: %w", netid, classid, err)
	}
	return nil
}

func (f FirestoreRepository) RemoveSubscription(ctx context.Context, netid, classid string) error {
	_, err := f.firestore.Collection("users").Doc(netid).Update(ctx, []firestore.Update{
		{Path: "Waitlists", Value: firestore.ArrayRemove(classid)},
	})
	if notFound(err) {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s from subscriptions of %s: %w", classid, netid, err)
	}

	ref := f.firestore.Collection("waitlists").Doc(classid)
	drained := false
	err = f.firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if notFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		var wl struct {
			ClassID  string
			Waitlist []string
		}
		if err := doc.DataTo(&wl); err != nil {
			return err
		}

		remaining := make([]string, 0, len(wl.Waitlist))
		for _, id := range wl.Waitlist {
			if id != netid {
				remaining = append(remaining, id)
			}
		}

		if len(remaining) == 0 {
			drained = true
			return tx.Delete(ref)
		}
		return tx.Update(ref, []firestore.Update{{Path: "Waitlist", Value: remaining}})
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s from waitlist of %s: %w", netid, classid, err)
	}

	if drained {
		section, err := f.GetSection(ctx, classid)
		if err != nil {
			return err
		}
		course, err := f.GetCourse(ctx, section.CourseID)
		if err != nil {
			return err
		}
		if course.HasReservedSeats {
			if err := f.SetPrevEnrollment(ctx, classid, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f FirestoreRepository) Waitlist(ctx context.Context, classid string) ([]string, error) {
	doc, err := f.firestore.Collection("waitlists").Doc(classid).Get(ctx)
	if notFound(err) {
		// absence is equivalent to an empty queue
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist for %s: %w", classid, err)
	}

	var wl struct {
		ClassID  string
		Waitlist []string
	}
	if err := doc.DataTo(&wl); err != nil {
		return nil, fmt.Errorf("failed to deserialize waitlist: %w", err)
	}
	return wl.Waitlist, nil
}

func (f FirestoreRepository) WaitedSections(ctx context.Context) ([]string, error) {
	documents, err := f.firestore.Collection("waitlists").Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list waited sections: %w", err)
	}

	classids := make([]string, 0, len(documents))
	for _, document := range documents {
		classids = append(classids, document.Ref.ID)
	}
	return classids, nil
}

func (f FirestoreRepository) SetCurrentSection(ctx context.Context, netid, courseid, classid string) error {
	user, err := f.GetUser(ctx, netid)
	if err != nil {
		return err
	}

	if prev, ok := user.CurrentSections[courseid]; ok && prev != classid {
		_, err := f.firestore.Collection("sections").Doc(prev).Update(ctx, []firestore.Update{
			{Path: "SwapOut", Value: firestore.ArrayRemove(netid)},
		})
		if err != nil && !notFound(err) {
			return fmt.Errorf("failed to clear previous swap_out entry for %s: %w", netid, err)
		}
	}

	_, err = f.firestore.Collection("users").Doc(netid).Update(ctx, []firestore.Update{
		{Path: "CurrentSections." + courseid, Value: classid},
	})
	if err != nil {
		return fmt.Errorf("failed to set current section for %s: %w", netid, err)
	}

	_, err = f.firestore.Collection("sections").Doc(classid).Update(ctx, []firestore.Update{
		{Path: "SwapOut", Value: firestore.ArrayUnion(netid)},
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to swap_out of %s: %w", netid, classid, err)
	}
	return nil
}

func (f FirestoreRepository) ClearCurrentSection(ctx context.Context, netid, courseid string) error {
	user, err := f.GetUser(ctx, netid)
	if err != nil {
		return err
	}

	classid, ok := user.CurrentSections[courseid]
	if !ok {
		return fmt.Errorf("current section of %s for %s: %w", courseid, netid, seatsnatch.ErrNoCurrentSection)
	}

	_, err = f.firestore.Collection("users").Doc(netid).Update(ctx, []firestore.Update{
		{Path: "CurrentSections." + courseid, Value: firestore.Delete},
	})
	if err != nil {
		return fmt.Errorf("failed to clear current section for %s: %w", netid, err)
	}

	_, err = f.firestore.Collection("sections").Doc(classid).Update(ctx, []firestore.Update{
		{Path: "SwapOut", Value: firestore.ArrayRemove(netid)},
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s from swap_out of %s: %w", netid, classid, err)
	}
	return nil
}

func (f FirestoreRepository) AppendActivity(ctx context.Context, netid string, kind seatsnatch.LogKind, entry string) error {
	_, _, err := f.firestore.Collection("logs").Doc(netid).Collection(string(kind)).Add(ctx, map[string]interface{}{
		"Entry":     entry,
		"CreatedAt": firestore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to append %s log entry for %s: %w", kind, netid, err)
	}
	return nil
}

func (f FirestoreRepository) Activity(ctx context.Context, netid string, kind seatsnatch.LogKind) ([]string, error) {
	documents, err := f.firestore.Collection("logs").Doc(netid).Collection(string(kind)).
		OrderBy("CreatedAt", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s log for %s: %w", kind, netid, err)
	}

	var entries []string
	for _, document := range documents {
		var rec struct {
			Entry     string
			CreatedAt interface{}
		}
		if err := document.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to deserialize log entry: %w", err)
		}
		entries = append(entries, rec.Entry)
	}
	return entries, nil
}

func (f FirestoreRepository) SetTerm(ctx context.Context, code, name string) error {
	_, err := f.firestore.Collection("admin").Doc("term").Set(ctx, map[string]interface{}{
		"Code": code,
		"Name": name,
	})
	if err != nil {
		return fmt.Errorf("failed to set term: %w", err)
	}
	return nil
}

func (f FirestoreRepository) Term(ctx context.Context) (string, string, error) {
	doc, err := f.firestore.Collection("admin").Doc("term").Get(ctx)
	if notFound(err) {
		return "", "", fmt.Errorf("term record: %w", seatsnatch.ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to get term: %w", err)
	}

	var rec struct {
		Code string
		Name string
	}
	if err := doc.DataTo(&rec); err != nil {
		return "", "", fmt.Errorf("failed to deserialize term: %w", err)
	}
	return rec.Code, rec.Name, nil
}
