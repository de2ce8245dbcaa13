package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/config"
)

var _ seatsnatch.Repository = MongoRepository{}

// MongoRepository is the primary store. Every per-location mutation maps to
// a single atomic update ($addToSet, $push, $pull, $set), so concurrent
// read-modify-write races on a document cannot lose updates.
type MongoRepository struct {
	db  *mongo.Database
	cfg config.Mongo
}

type waitlistDoc struct {
	ClassID  string   `bson:"classid"`
	Waitlist []string `bson:"waitlist"`
}

type logDoc struct {
	NetID       string   `bson:"netid"`
	WaitlistLog []string `bson:"waitlist_log"`
	TradeLog    []string `bson:"trade_log"`
}

func newMongoRepository(ctx context.Context, cfg config.Mongo) (MongoRepository, error) {
	opts := options.Client().ApplyURI(cfg.URI).SetAppName("seatsnatch")
	opts.SetConnectTimeout(cfg.OperationTimeout)

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return MongoRepository{}, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return MongoRepository{}, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)

	// unique keys for the lookup fields every operation filters on
	for coll, key := range map[string]string{
		"users":       "netid",
		"courses":     "courseid",
		"enrollments": "classid",
		"waitlists":   "classid",
		"logs":        "netid",
	} {
		_, err := db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return MongoRepository{}, fmt.Errorf("failed to create %s index: %w", coll, err)
		}
	}

	return MongoRepository{db, cfg}, nil
}

func (r MongoRepository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.OperationTimeout)
}

func (r MongoRepository) CreateUser(ctx context.Context, netid string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	user := seatsnatch.User{
		NetID:           netid,
		Waitlists:       []string{},
		CurrentSections: map[string]string{},
	}
	_, err := r.db.Collection("users").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$setOnInsert": user},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", netid, err)
	}

	_, err = r.db.Collection("logs").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$setOnInsert": logDoc{NetID: netid, WaitlistLog: []string{}, TradeLog: []string{}}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to create log document for %s: %w", netid, err)
	}

	return nil
}

func (r MongoRepository) GetUser(ctx context.Context, netid string) (seatsnatch.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var user seatsnatch.User
	err := r.db.Collection("users").FindOne(ctx, bson.M{"netid": netid}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return seatsnatch.User{}, fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to get user %s: %w", netid, err)
	}

	return user, nil
}

func (r MongoRepository) UpdateUserContact(ctx context.Context, netid, email, phone string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.Collection("users").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$set": bson.M{"email": email, "phone": phone}})
	if err != nil {
		return fmt.Errorf("failed to update contact for %s: %w", netid, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	return nil
}

func (r MongoRepository) SetAutoResub(ctx context.Context, netid string, enabled bool) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.Collection("users").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$set": bson.M{"auto_resub": enabled}})
	if err != nil {
		return fmt.Errorf("failed to set auto resub for %s: %w", netid, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	return nil
}

func (r MongoRepository) GetCourse(ctx context.Context, courseid string) (seatsnatch.Course, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var course seatsnatch.Course
	err := r.db.Collection("courses").FindOne(ctx, bson.M{"courseid": courseid}).Decode(&course)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return seatsnatch.Course{}, fmt.Errorf("course %s: %w", courseid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.Course{}, fmt.Errorf("failed to get course %s: %w", courseid, err)
	}

	return course, nil
}

func (r MongoRepository) UpsertCourse(ctx context.Context, course seatsnatch.Course) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := r.db.Collection("courses").ReplaceOne(ctx,
		bson.M{"courseid": course.ID},
		course,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert course %s: %w", course.ID, err)
	}

	return nil
}

func (r MongoRepository) GetSection(ctx context.Context, classid string) (seatsnatch.Section, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var section seatsnatch.Section
	err := r.db.Collection("enrollments").FindOne(ctx, bson.M{"classid": classid}).Decode(&section)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return seatsnatch.Section{}, fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.Section{}, fmt.Errorf("failed to get section %s: %w", classid, err)
	}

	return section, nil
}

func (r MongoRepository) SectionsInCourse(ctx context.Context, courseid string) ([]seatsnatch.Section, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	cursor, err := r.db.Collection("enrollments").Find(ctx, bson.M{"courseid": courseid})
	if err != nil {
		return nil, fmt.Errorf("failed to list sections of course %s: %w", courseid, err)
	}

	var sections []seatsnatch.Section
	if err := cursor.All(ctx, &sections); err != nil {
		return nil, fmt.Errorf("failed to decode sections of course %s: %w", courseid, err)
	}

	return sections, nil
}

func (r MongoRepository) UpsertSection(ctx context.Context, section seatsnatch.Section) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	// keep swap_out and the reserved-seat marker if the section already
	// exists; a catalog refresh must not wipe trade or monitor state
	_, err := r.db.Collection("enrollments").UpdateOne(ctx,
		bson.M{"classid": section.ClassID},
		bson.M{
			"$set": bson.M{
				"courseid":   section.CourseID,
				"section":    section.Name,
				"type_name":  section.Type,
				"enrollment": section.Enrollment,
				"capacity":   section.Capacity,
			},
			"$setOnInsert": bson.M{
				"prev_enrollment": 0,
				"swap_out":        []string{},
			},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert section %s: %w", section.ClassID, err)
	}

	return nil
}

func (r MongoRepository) UpdateEnrollment(ctx context.Context, classid string, enrollment, capacity int) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.Collection("enrollments").UpdateOne(ctx,
		bson.M{"classid": classid},
		bson.M{"$set": bson.M{"enrollment": enrollment, "capacity": capacity}})
	if err != nil {
		return fmt.Errorf("failed to update enrollment for %s: %w", classid, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}

	return nil
}

func (r MongoRepository) SetPrevEnrollment(ctx context.Context, classid string, enrollment int) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.Collection("enrollments").UpdateOne(ctx,
		bson.M{"classid": classid},
		bson.M{"$set": bson.M{"prev_enrollment": enrollment}})
	if err != nil {
		return fmt.Errorf("failed to update prev enrollment for %s: %w", classid, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}

	return nil
}

func (r MongoRepository) SetCourseDisabled(ctx context.Context, courseid string, disabled bool) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.Collection("courses").UpdateOne(ctx,
		bson.M{"courseid": courseid},
		bson.M{"$set": bson.M{"disabled": disabled}})
	if err != nil {
		return fmt.Errorf("failed to set disabled flag for %s: %w", courseid, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("course %s: %w", courseid, seatsnatch.ErrNotFound)
	}

	return nil
}

func (r MongoRepository) AddSubscription(ctx context.Context, netid, classid string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	// $addToSet keeps the subscription set duplicate-free without a
	// read-modify-write cycle
	res, err := r.db.Collection("users").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$addToSet": bson.M{"waitlists": classid}})
	if err != nil {
		return fmt.Errorf("failed to add %s to subscriptions of %s: %w", classid, netid, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	// $addToSet appends at the tail when absent, so queue order is the
	// order the writes commit
	_, err = r.db.Collection("waitlists").UpdateOne(ctx,
		bson.M{"classid": classid},
		bson.M{"$addToSet": bson.M{"waitlist": netid}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to append %s to waitlist of %s: %w", netid, classid, err)
	}

	return nil
}

func (r MongoRepository) RemoveSubscription(ctx context.Context, netid, classid string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.Collection("users").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$pull": bson.M{"waitlists": classid}})
	if err != nil {
		return fmt.Errorf("failed to remove %s from subscriptions of %s: %w", classid, netid, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	_, err = r.db.Collection("waitlists").UpdateOne(ctx,
		bson.M{"classid": classid},
		bson.M{"$pull": bson.M{"waitlist": netid}})
	if err != nil {
		return fmt.Errorf("failed to remove %s from waitlist of %s: %w", netid, classid, err)
	}

	// a drained waitlist is deleted, not kept empty
	delRes, err := r.db.Collection("waitlists").DeleteOne(ctx,
		bson.M{"classid": classid, "waitlist": bson.M{"$size": 0}})
	if err != nil {
		return fmt.Errorf("failed to clean up waitlist of %s: %w", classid, err)
	}

	if delRes.DeletedCount > 0 {
		// reopenings of reserved-seat sections are measured from a clean
		// baseline once nobody is waiting
		section, err := r.GetSection(ctx, classid)
		if err != nil {
			return err
		}
		course, err := r.GetCourse(ctx, section.CourseID)
		if err != nil {
			return err
		}
		if course.HasReservedSeats {
			if err := r.SetPrevEnrollment(ctx, classid, 0); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r MongoRepository) Waitlist(ctx context.Context, classid string) ([]string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var doc waitlistDoc
	err := r.db.Collection("waitlists").FindOne(ctx, bson.M{"classid": classid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// absence is equivalent to an empty queue
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist for %s: %w", classid, err)
	}

	return doc.Waitlist, nil
}

func (r MongoRepository) WaitedSections(ctx context.Context) ([]string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	cursor, err := r.db.Collection("waitlists").Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list waited sections: %w", err)
	}

	var docs []waitlistDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode waited sections: %w", err)
	}

	classids := make([]string, 0, len(docs))
	for _, doc := range docs {
		classids = append(classids, doc.ClassID)
	}

	return classids, nil
}

func (r MongoRepository) SetCurrentSection(ctx context.Context, netid, courseid, classid string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	user, err := r.GetUser(ctx, netid)
	if err != nil {
		return err
	}

	// moving between sections of the same course leaves no stale
	// swap_out entry behind
	if prev, ok := user.CurrentSections[courseid]; ok && prev != classid {
		_, err := r.db.Collection("enrollments").UpdateOne(ctx,
			bson.M{"classid": prev},
			bson.M{"$pull": bson.M{"swap_out": netid}})
		if err != nil {
			return fmt.Errorf("failed to clear previous swap_out entry for %s: %w", netid, err)
		}
	}

	_, err = r.db.Collection("users").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$set": bson.M{"current_sections." + courseid: classid}})
	if err != nil {
		return fmt.Errorf("failed to set current section for %s: %w", netid, err)
	}

	_, err = r.db.Collection("enrollments").UpdateOne(ctx,
		bson.M{"classid": classid},
		bson.M{"$addToSet": bson.M{"swap_out": netid}})
	if err != nil {
		return fmt.Errorf("failed to add %s to swap_out of %s: %w", netid, classid, err)
	}

	return nil
}

func (r MongoRepository) ClearCurrentSection(ctx context.Context, netid, courseid string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	user, err := r.GetUser(ctx, netid)
	if err != nil {
		return err
	}

	classid, ok := user.CurrentSections[courseid]
	if !ok {
		return fmt.Errorf("current section of %s for %s: %w", courseid, netid, seatsnatch.ErrNoCurrentSection)
	}

	_, err = r.db.Collection("users").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$unset": bson.M{"current_sections." + courseid: ""}})
	if err != nil {
		return fmt.Errorf("failed to clear current section for %s: %w", netid, err)
	}

	_, err = r.db.Collection("enrollments").UpdateOne(ctx,
		bson.M{"classid": classid},
		bson.M{"$pull": bson.M{"swap_out": netid}})
	if err != nil {
		return fmt.Errorf("failed to remove %s from swap_out of %s: %w", netid, classid, err)
	}

	return nil
}

func (r MongoRepository) AppendActivity(ctx context.Context, netid string, kind seatsnatch.LogKind, entry string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	field := "waitlist_log"
	if kind == seatsnatch.TradeLog {
		field = "trade_log"
	}

	stamped := fmt.Sprintf("%s: %s", time.Now().Format("Jan 2, 2006 @ 3:04 PM"), entry)

	// newest entries first
	_, err := r.db.Collection("logs").UpdateOne(ctx,
		bson.M{"netid": netid},
		bson.M{"$push": bson.M{field: bson.M{"$each": []string{stamped}, "$position": 0}}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to append %s log entry for %s: %w", kind, netid, err)
	}

	return nil
}

func (r MongoRepository) Activity(ctx context.Context, netid string, kind seatsnatch.LogKind) ([]string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var doc logDoc
	err := r.db.Collection("logs").FindOne(ctx, bson.M{"netid": netid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("logs for %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s log for %s: %w", kind, netid, err)
	}

	if kind == seatsnatch.TradeLog {
		return doc.TradeLog, nil
	}
	return doc.WaitlistLog, nil
}

func (r MongoRepository) SetTerm(ctx context.Context, code, name string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := r.db.Collection("admin").UpdateOne(ctx,
		bson.M{"_id": "term"},
		bson.M{"$set": bson.M{"code": code, "name": name}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set term: %w", err)
	}

	return nil
}

func (r MongoRepository) Term(ctx context.Context) (string, string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var doc struct {
		Code string `bson:"code"`
		Name string `bson:"name"`
	}
	err := r.db.Collection("admin").FindOne(ctx, bson.M{"_id": "term"}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", "", fmt.Errorf("term record: %w", seatsnatch.ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to get term: %w", err)
	}

	return doc.Code, doc.Name, nil
}
