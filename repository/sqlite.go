package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/config"
)

var _ seatsnatch.Repository = SQLiteRepository{}

// SQLiteRepository keeps the whole model relational. Waitlist membership
// and queue order live in one subscriptions table ordered by rowid, and
// the swap_out index is derived from current_sections, so both stay
// consistent by construction. Compound mutations run in a transaction.
type SQLiteRepository struct {
	db  *sql.DB
	cfg config.SQLite
}

// creates a new repository backed by sqlite
// returns an error if the connection cannot be established or if a ping fails
func newSQLiteRepository(ctx context.Context, cfg config.SQLite) (SQLiteRepository, error) {
	db, err := sql.Open("sqlite", cfg.ConnectionString)
	if err != nil {
		return SQLiteRepository{}, fmt.Errorf("failed to open connection to sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return SQLiteRepository{}, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return SQLiteRepository{}, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations/sqlite", "sqlite", driver)
	if err != nil {
		return SQLiteRepository{}, fmt.Errorf("failed to create migration: %w", err)
	}

	err = m.Up()
	if err != nil && err.Error() != "no change" {
		return SQLiteRepository{}, fmt.Errorf("failed to execute migrations: %w", err)
	}

	return SQLiteRepository{db, cfg}, nil
}

func (r SQLiteRepository) CreateUser(ctx context.Context, netid string) error {
	_, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO users (netid) VALUES ($1)", netid)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", netid, err)
	}
	return nil
}

func (r SQLiteRepository) GetUser(ctx context.Context, netid string) (seatsnatch.User, error) {
	var user seatsnatch.User
	err := r.db.QueryRowContext(ctx,
		"SELECT netid, email, phone, auto_resub FROM users WHERE netid=$1", netid).
		Scan(&user.NetID, &user.Email, &user.Phone, &user.AutoResub)
	if errors.Is(err, sql.ErrNoRows) {
		return seatsnatch.User{}, fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to get user %s: %w", netid, err)
	}

	user.Waitlists = []string{}
	rows, err := r.db.QueryContext(ctx,
		"SELECT classid FROM subscriptions WHERE netid=$1 ORDER BY id", netid)
	if err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to get subscriptions of %s: %w", netid, err)
	}
	defer rows.Close()
	for rows.Next() {
		var classid string
		if err := rows.Scan(&classid); err != nil {
			return seatsnatch.User{}, fmt.Errorf("failed to scan row: %w", err)
		}
		user.Waitlists = append(user.Waitlists, classid)
	}
	if err := rows.Err(); err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to iterate rows: %w", err)
	}

	user.CurrentSections = map[string]string{}
	currRows, err := r.db.QueryContext(ctx,
		"SELECT courseid, classid FROM current_sections WHERE netid=$1", netid)
	if err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to get current sections of %s: %w", netid, err)
	}
	defer currRows.Close()
	for currRows.Next() {
		var courseid, classid string
		if err := currRows.Scan(&courseid, &classid); err != nil {
			return seatsnatch.User{}, fmt.Errorf("failed to scan row: %w", err)
		}
		user.CurrentSections[courseid] = classid
	}
	if err := currRows.Err(); err != nil {
		return seatsnatch.User{}, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return user, nil
}

func (r SQLiteRepository) UpdateUserContact(ctx context.Context, netid, email, phone string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET email=$1, phone=$2 WHERE netid=$3", email, phone, netid)
	if err != nil {
		return fmt.Errorf("failed to update contact for %s: %w", netid, err)
	}
	return requireRow(res, fmt.Sprintf("user %s", netid))
}

func (r SQLiteRepository) SetAutoResub(ctx context.Context, netid string, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET auto_resub=$1 WHERE netid=$2", enabled, netid)
	if err != nil {
		return fmt.Errorf("failed to set auto resub for %s: %w", netid, err)
	}
	return requireRow(res, fmt.Sprintf("user %s", netid))
}

func (r SQLiteRepository) GetCourse(ctx context.Context, courseid string) (seatsnatch.Course, error) {
	var course seatsnatch.Course
	err := r.db.QueryRowContext(ctx,
		"SELECT courseid, displayname, title, disabled, has_reserved_seats, updated_at FROM courses WHERE courseid=$1",
		courseid).
		Scan(&course.ID, &course.DisplayName, &course.Title, &course.Disabled, &course.HasReservedSeats, &course.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return seatsnatch.Course{}, fmt.Errorf("course %s: %w", courseid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.Course{}, fmt.Errorf("failed to get course %s: %w", courseid, err)
	}
	return course, nil
}

func (r SQLiteRepository) UpsertCourse(ctx context.Context, course seatsnatch.Course) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (courseid, displayname, title, disabled, has_reserved_seats, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT(courseid) DO UPDATE SET
		   displayname=excluded.displayname, title=excluded.title,
		   has_reserved_seats=excluded.has_reserved_seats, updated_at=excluded.updated_at`,
		course.ID, course.DisplayName, course.Title, course.Disabled, course.HasReservedSeats, course.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert course %s: %w", course.ID, err)
	}
	return nil
}

func (r SQLiteRepository) GetSection(ctx context.Context, classid string) (seatsnatch.Section, error) {
	var section seatsnatch.Section
	err := r.db.QueryRowContext(ctx,
		"SELECT classid, courseid, name, type_name, enrollment, capacity, prev_enrollment FROM sections WHERE classid=$1",
		classid).
		Scan(&section.ClassID, &section.CourseID, &section.Name, &section.Type,
			&section.Enrollment, &section.Capacity, &section.PrevEnrollment)
	if errors.Is(err, sql.ErrNoRows) {
		return seatsnatch.Section{}, fmt.Errorf("section %s: %w", classid, seatsnatch.ErrNotFound)
	}
	if err != nil {
		return seatsnatch.Section{}, fmt.Errorf("failed to get section %s: %w", classid, err)
	}

	swapOut, err := r.swapOut(ctx, classid)
	if err != nil {
		return seatsnatch.Section{}, err
	}
	section.SwapOut = swapOut

	return section, nil
}

// the swap_out index is a view over current_sections here, not stored state
func (r SQLiteRepository) swapOut(ctx context.Context, classid string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT netid FROM current_sections WHERE classid=$1", classid)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap_out for %s: %w", classid, err)
	}
	defer rows.Close()

	swapOut := []string{}
	for rows.Next() {
		var netid string
		if err := rows.Scan(&netid); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		swapOut = append(swapOut, netid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return swapOut, nil
}

func (r SQLiteRepository) SectionsInCourse(ctx context.Context, courseid string) ([]seatsnatch.Section, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT classid FROM sections WHERE courseid=$1", courseid)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections of course %s: %w", courseid, err)
	}
	defer rows.Close()

	var classids []string
	for rows.Next() {
		var classid string
		if err := rows.Scan(&classid); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		classids = append(classids, classid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	var sections []seatsnatch.Section
	for _, classid := range classids {
		section, err := r.GetSection(ctx, classid)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, nil
}

func (r SQLiteRepository) UpsertSection(ctx context.Context, section seatsnatch.Section) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sections (classid, courseid, name, type_name, enrollment, capacity)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT(classid) DO UPDATE SET
		   courseid=excluded.courseid, name=excluded.name, type_name=excluded.type_name,
		   enrollment=excluded.enrollment, capacity=excluded.capacity`,
		section.ClassID, section.CourseID, section.Name, section.Type, section.Enrollment, section.Capacity)
	if err != nil {
		return fmt.Errorf("failed to upsert section %s: %w", section.ClassID, err)
	}
	return nil
}

func (r SQLiteRepository) UpdateEnrollment(ctx context.Context, classid string, enrollment, capacity int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sections SET enrollment=$1, capacity=$2 WHERE classid=$3", enrollment, capacity, classid)
	if err != nil {
		return fmt.Errorf("failed to update enrollment for %s: %w", classid, err)
	}
	return requireRow(res, fmt.Sprintf("section %s", classid))
}

func (r SQLiteRepository) SetPrevEnrollment(ctx context.Context, classid string, enrollment int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sections SET prev_enrollment=$1 WHERE classid=$2", enrollment, classid)
	if err != nil {
		return fmt.Errorf("failed to update prev enrollment for %s: %w", classid, err)
	}
	return requireRow(res, fmt.Sprintf("section %s", classid))
}

func (r SQLiteRepository) SetCourseDisabled(ctx context.Context, courseid string, disabled bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE courses SET disabled=$1 WHERE courseid=$2", disabled, courseid)
	if err != nil {
		return fmt.Errorf("failed to set disabled flag for %s: %w", courseid, err)
	}
	return requireRow(res, fmt.Sprintf("course %s", courseid))
}

func (r SQLiteRepository) AddSubscription(ctx context.Context, netid, classid string) error {
	txCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(txCtx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(txCtx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE netid=$1)", netid).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user %s: %w", netid, err)
	}
	if !exists {
		return fmt.Errorf("user %s: %w", netid, seatsnatch.ErrNotFound)
	}

	// queue position is the autoincrement rowid, so order is commit order
	_, err = tx.ExecContext(txCtx,
		"INSERT OR IGNORE INTO subscriptions (classid, netid) VALUES ($1, $2)", classid, netid)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r SQLiteRepository) RemoveSubscription(ctx context.Context, netid, classid string) error {
	txCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(txCtx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(txCtx,
		"DELETE FROM subscriptions WHERE classid=$1 AND netid=$2", classid, netid)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	var remaining int
	err = tx.QueryRowContext(txCtx,
		"SELECT COUNT(*) FROM subscriptions WHERE classid=$1", classid).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("failed to count remaining subscriptions: %w", err)
	}

	if remaining == 0 {
		// reserved-seat sections restart delta tracking once drained
		_, err = tx.ExecContext(txCtx,
			`UPDATE sections SET prev_enrollment=0
			 WHERE classid=$1
			   AND courseid IN (SELECT courseid FROM courses WHERE has_reserved_seats=1)`,
			classid)
		if err != nil {
			return fmt.Errorf("failed to reset prev enrollment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r SQLiteRepository) Waitlist(ctx context.Context, classid string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT netid FROM subscriptions WHERE classid=$1 ORDER BY id", classid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch waitlist for %s: %w", classid, err)
	}
	defer rows.Close()

	var waitlist []string
	for rows.Next() {
		var netid string
		if err := rows.Scan(&netid); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		waitlist = append(waitlist, netid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return waitlist, nil
}

func (r SQLiteRepository) WaitedSections(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT classid FROM subscriptions")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch waited sections: %w", err)
	}
	defer rows.Close()

	var classids []string
	for rows.Next() {
		var classid string
		if err := rows.Scan(&classid); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		classids = append(classids, classid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return classids, nil
}

func (r SQLiteRepository) SetCurrentSection(ctx context.Context, netid, courseid, classid string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO current_sections (netid, courseid, classid) VALUES ($1, $2, $3)
		 ON CONFLICT(netid, courseid) DO UPDATE SET classid=excluded.classid`,
		netid, courseid, classid)
	if err != nil {
		return fmt.Errorf("failed to set current section for %s: %w", netid, err)
	}
	return nil
}

func (r SQLiteRepository) ClearCurrentSection(ctx context.Context, netid, courseid string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM current_sections WHERE netid=$1 AND courseid=$2", netid, courseid)
	if err != nil {
		return fmt.Errorf("failed to clear current section for %s: %w", netid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to fetch affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("current section of %s for %s: %w", courseid, netid, seatsnatch.ErrNoCurrentSection)
	}
	return nil
}

func (r SQLiteRepository) AppendActivity(ctx context.Context, netid string, kind seatsnatch.LogKind, entry string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO activity_logs (netid, kind, entry, created_at) VALUES ($1, $2, $3, $4)",
		netid, string(kind), entry, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append %s log entry for %s: %w", kind, netid, err)
	}
	return nil
}

func (r SQLiteRepository) Activity(ctx context.Context, netid string, kind seatsnatch.LogKind) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT entry, created_at FROM activity_logs WHERE netid=$1 AND kind=$2 ORDER BY id DESC",
		netid, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s log for %s: %w", kind, netid, err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var entry string
		var createdAt time.Time
		if err := rows.Scan(&entry, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, fmt.Sprintf("%s: %s", createdAt.Format("Jan 2, 2006 @ 3:04 PM"), entry))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return entries, nil
}

func (r SQLiteRepository) SetTerm(ctx context.Context, code, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO term (id, code, name) VALUES (1, $1, $2)
		 ON CONFLICT(id) DO UPDATE SET code=excluded.code, name=excluded.name`,
		code, name)
	if err != nil {
		return fmt.Errorf("failed to set term: %w", err)
	}
	return nil
}

func (r SQLiteRepository) Term(ctx context.Context) (string, string, error) {
	var code, name string
	err := r.db.QueryRowContext(ctx, "SELECT code, name FROM term WHERE id=1").Scan(&code, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("term record: %w", seatsnatch.ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to get term: %w", err)
	}
	return code, name, nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to fetch affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, seatsnatch.ErrNotFound)
	}
	return nil
}
