package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// SQLStore holds the queries shared by the services. Every method takes the
// querier to run on so callers decide what runs inside a transaction.
type SQLStore struct {
	db     *sql.DB
	driver db.Driver
}

func NewSQLStore(sqlDB *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: sqlDB, driver: driver}
}

func (s *SQLStore) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.WithTx(ctx, s.db, nil, fn)
}

// forUpdate locks the selected row on Postgres. SQLite runs on a single
// connection, so transactions are already serialised there.
func (s *SQLStore) forUpdate() string {
	if s.driver == db.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	buf, _ := json.Marshal(ids)
	return string(buf)
}

func decodeIDs(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}

// ---- modules ----

func (s *SQLStore) insertModule(ctx context.Context, q db.Querier, m Module) error {
	_, err := q.ExecContext(ctx, `INSERT INTO modules (id,title,created_at) VALUES ($1,$2,$3)`,
		m.ID, m.Title, millis(m.CreatedAt))
	return err
}

func (s *SQLStore) getModule(ctx context.Context, q db.Querier, id string) (Module, error) {
	var m Module
	var created int64
	err := q.QueryRowContext(ctx, `SELECT id,title,created_at FROM modules WHERE id=$1`, id).
		Scan(&m.ID, &m.Title, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Module{}, notFound("module", id)
	}
	if err != nil {
		return Module{}, err
	}
	m.CreatedAt = fromMillis(created)
	return m, nil
}

func (s *SQLStore) listModuleSummaries(ctx context.Context, q db.Querier) ([]ModuleSummary, error) {
	rows, err := q.QueryContext(ctx, `
SELECT m.id, m.title,
  COALESCE((SELECT MAX(v.number) FROM module_versions v WHERE v.module_id=m.id), 0),
  COALESCE((SELECT v.id FROM module_versions v WHERE v.module_id=m.id AND v.is_published=$1
            ORDER BY v.created_at DESC, v.number DESC LIMIT 1), ''),
  (SELECT COUNT(*) FROM module_versions v WHERE v.module_id=m.id AND v.is_published=$1),
  (SELECT COUNT(*) FROM module_versions v WHERE v.module_id=m.id AND v.is_published=$2)
FROM modules m ORDER BY m.title, m.id`, true, false)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ModuleSummary{}
	for rows.Next() {
		var ms ModuleSummary
		if err := rows.Scan(&ms.ID, &ms.Title, &ms.LatestNumber, &ms.LatestPublishedID,
			&ms.PublishedVersions, &ms.DraftVersions); err != nil {
			return nil, err
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

// ---- versions ----

func (s *SQLStore) nextVersionNumber(ctx context.Context, q db.Querier, moduleID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number),0) FROM module_versions WHERE module_id=$1`, moduleID).Scan(&n)
	return n + 1, err
}

func (s *SQLStore) insertVersion(ctx context.Context, q db.Querier, v Version) error {
	_, err := q.ExecContext(ctx, `INSERT INTO module_versions
		(id,module_id,number,is_published,duration_minutes,created_at,published_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.ID, v.ModuleID, v.Number, v.IsPublished, nullInt(v.DurationMinutes),
		millis(v.CreatedAt), nullMillis(v.PublishedAt))
	if err != nil {
		return err
	}
	return s.insertQuestions(ctx, q, v.ID, v.Questions)
}

func (s *SQLStore) insertQuestions(ctx context.Context, q db.Querier, versionID string, qs []Question) error {
	for _, qq := range qs {
		if _, err := q.ExecContext(ctx, `INSERT INTO questions
			(id,version_id,position,text,type,attachments_json) VALUES ($1,$2,$3,$4,$5,$6)`,
			qq.ID, versionID, qq.Position, qq.Text, string(qq.Type), encodeIDs(qq.Attachments)); err != nil {
			return fmt.Errorf("insert question %s: %w", qq.ID, err)
		}
		for i, a := range qq.Answers {
			if _, err := q.ExecContext(ctx, `INSERT INTO answers
				(id,question_id,position,text,is_correct,attachments_json) VALUES ($1,$2,$3,$4,$5,$6)`,
				a.ID, qq.ID, i, a.Text, a.IsCorrect, encodeIDs(a.Attachments)); err != nil {
				return fmt.Errorf("insert answer %s: %w", a.ID, err)
			}
		}
	}
	return nil
}

func (s *SQLStore) replaceDraftContent(ctx context.Context, q db.Querier, versionID string, c Content) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM answers WHERE question_id IN (SELECT id FROM questions WHERE version_id=$1)`, versionID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM questions WHERE version_id=$1`, versionID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `UPDATE module_versions SET duration_minutes=$1 WHERE id=$2`,
		nullInt(c.DurationMinutes), versionID); err != nil {
		return err
	}
	return s.insertQuestions(ctx, q, versionID, c.Questions)
}

// getVersionHeader reads the version row only; lock takes a row lock where supported.
func (s *SQLStore) getVersionHeader(ctx context.Context, q db.Querier, id string, lock bool) (Version, error) {
	query := `SELECT id,module_id,number,is_published,duration_minutes,created_at,published_at
		FROM module_versions WHERE id=$1`
	if lock {
		query += s.forUpdate()
	}
	var v Version
	var dur, pub sql.NullInt64
	var created int64
	err := q.QueryRowContext(ctx, query, id).
		Scan(&v.ID, &v.ModuleID, &v.Number, &v.IsPublished, &dur, &created, &pub)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, notFound("version", id)
	}
	if err != nil {
		return Version{}, err
	}
	v.DurationMinutes = intPtr(dur)
	v.CreatedAt = fromMillis(created)
	v.PublishedAt = timePtr(pub)
	return v, nil
}

func (s *SQLStore) getVersion(ctx context.Context, q db.Querier, id string, lock bool) (Version, error) {
	v, err := s.getVersionHeader(ctx, q, id, lock)
	if err != nil {
		return Version{}, err
	}
	v.Questions, err = s.loadQuestions(ctx, q, id)
	if err != nil {
		return Version{}, err
	}
	return v, nil
}

func (s *SQLStore) loadQuestions(ctx context.Context, q db.Querier, versionID string) ([]Question, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,position,text,type,attachments_json
		FROM questions WHERE version_id=$1 ORDER BY position, id`, versionID)
	if err != nil {
		return nil, err
	}
	out := []Question{}
	index := map[string]int{}
	for rows.Next() {
		var qq Question
		var typ, att string
		if err := rows.Scan(&qq.ID, &qq.Position, &qq.Text, &typ, &att); err != nil {
			rows.Close()
			return nil, err
		}
		qq.VersionID = versionID
		qq.Type = QuestionType(typ)
		qq.Attachments = decodeIDs(att)
		qq.Answers = []Answer{}
		index[qq.ID] = len(out)
		out = append(out, qq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := q.QueryContext(ctx, `SELECT a.id,a.question_id,a.text,a.is_correct,a.attachments_json
		FROM answers a JOIN questions q ON q.id=a.question_id
		WHERE q.version_id=$1 ORDER BY a.question_id, a.position`, versionID)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var a Answer
		var qid, att string
		if err := arows.Scan(&a.ID, &qid, &a.Text, &a.IsCorrect, &att); err != nil {
			return nil, err
		}
		a.Attachments = decodeIDs(att)
		if i, ok := index[qid]; ok {
			out[i].Answers = append(out[i].Answers, a)
		}
	}
	return out, arows.Err()
}

func (s *SQLStore) markPublished(ctx context.Context, q db.Querier, id string, at time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE module_versions SET is_published=$1, published_at=$2 WHERE id=$3`,
		true, millis(at), id)
	return err
}

func (s *SQLStore) latestPublishedID(ctx context.Context, q db.Querier, moduleID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM module_versions
		WHERE module_id=$1 AND is_published=$2
		ORDER BY created_at DESC, number DESC LIMIT 1`, moduleID, true).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: no published version of module %s", ErrNotFound, moduleID)
	}
	return id, err
}

// questionVersion returns the version a question belongs to.
func (s *SQLStore) questionVersion(ctx context.Context, q db.Querier, questionID string) (string, error) {
	var vid string
	err := q.QueryRowContext(ctx, `SELECT version_id FROM questions WHERE id=$1`, questionID).Scan(&vid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("question", questionID)
	}
	return vid, err
}

// ---- progress ----

const progressCols = `id,exam_taker_id,assignment_id,module_id,module_version_id,duration_minutes,started_at,completed_at`

func scanProgress(row interface{ Scan(...any) error }) (Progress, error) {
	var p Progress
	var dur, done sql.NullInt64
	var started int64
	if err := row.Scan(&p.ID, &p.ExamTakerID, &p.AssignmentID, &p.ModuleID, &p.ModuleVersionID,
		&dur, &started, &done); err != nil {
		return Progress{}, err
	}
	p.DurationMinutes = intPtr(dur)
	p.StartedAt = fromMillis(started)
	p.CompletedAt = timePtr(done)
	return p, nil
}

func (s *SQLStore) insertProgress(ctx context.Context, q db.Querier, p Progress) (bool, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO progress (`+progressCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (exam_taker_id, module_version_id) DO NOTHING`,
		p.ID, p.ExamTakerID, p.AssignmentID, p.ModuleID, p.ModuleVersionID,
		nullInt(p.DurationMinutes), millis(p.StartedAt), nullMillis(p.CompletedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLStore) getProgress(ctx context.Context, q db.Querier, id string, lock bool) (Progress, error) {
	query := `SELECT ` + progressCols + ` FROM progress WHERE id=$1`
	if lock {
		query += s.forUpdate()
	}
	p, err := scanProgress(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Progress{}, notFound("progress", id)
	}
	return p, err
}

// findProgress looks up a taker's progress on any version of a module within an assignment.
func (s *SQLStore) findProgress(ctx context.Context, q db.Querier, takerID, assignmentID, moduleID string) (Progress, bool, error) {
	p, err := scanProgress(q.QueryRowContext(ctx, `SELECT `+progressCols+` FROM progress
		WHERE exam_taker_id=$1 AND assignment_id=$2 AND module_id=$3
		ORDER BY started_at DESC LIMIT 1`, takerID, assignmentID, moduleID))
	if errors.Is(err, sql.ErrNoRows) {
		return Progress{}, false, nil
	}
	return p, err == nil, err
}

func (s *SQLStore) findProgressByVersion(ctx context.Context, q db.Querier, takerID, versionID string) (Progress, bool, error) {
	p, err := scanProgress(q.QueryRowContext(ctx, `SELECT `+progressCols+` FROM progress
		WHERE exam_taker_id=$1 AND module_version_id=$2`, takerID, versionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Progress{}, false, nil
	}
	return p, err == nil, err
}

// completedProgress returns the taker's completed attempts on a module, newest
// first. Attempts belong to (taker, version), so a completion counts in every
// assignment that contains the module.
func (s *SQLStore) completedProgress(ctx context.Context, q db.Querier, takerID, moduleID string) ([]Progress, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+progressCols+` FROM progress
		WHERE exam_taker_id=$1 AND module_id=$2 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC`, takerID, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) loadResponses(ctx context.Context, q db.Querier, progressID string) (map[string]Response, error) {
	rows, err := q.QueryContext(ctx, `SELECT question_id,selected_json,text_response,responded_at
		FROM responses WHERE progress_id=$1`, progressID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]Response{}
	for rows.Next() {
		var r Response
		var sel string
		var at int64
		if err := rows.Scan(&r.QuestionID, &sel, &r.TextResponse, &at); err != nil {
			return nil, err
		}
		r.SelectedAnswerIDs = decodeIDs(sel)
		r.RespondedAt = fromMillis(at)
		out[r.QuestionID] = r
	}
	return out, rows.Err()
}

func (s *SQLStore) upsertResponse(ctx context.Context, q db.Querier, progressID string, r Response) error {
	_, err := q.ExecContext(ctx, `INSERT INTO responses
		(progress_id,question_id,selected_json,text_response,responded_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (progress_id, question_id) DO UPDATE SET
		  selected_json=excluded.selected_json,
		  text_response=excluded.text_response,
		  responded_at=excluded.responded_at`,
		progressID, r.QuestionID, encodeIDs(r.SelectedAnswerIDs), r.TextResponse, millis(r.RespondedAt))
	return err
}

// setCompleted only writes when the row is still open, so a lost race leaves
// the first completion time in place.
func (s *SQLStore) setCompleted(ctx context.Context, q db.Querier, id string, at time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE progress SET completed_at=$1 WHERE id=$2 AND completed_at IS NULL`,
		millis(at), id)
	return err
}

// ---- groups ----

func (s *SQLStore) insertGroup(ctx context.Context, q db.Querier, g Group, at time.Time) error {
	_, err := q.ExecContext(ctx, `INSERT INTO module_groups
		(id,title,wait_module_completion,is_member_order_locked,created_at) VALUES ($1,$2,$3,$4,$5)`,
		g.ID, g.Title, g.WaitModuleCompletion, g.IsMemberOrderLocked, millis(at))
	return err
}

func (s *SQLStore) getGroup(ctx context.Context, q db.Querier, id string) (Group, error) {
	var g Group
	err := q.QueryRowContext(ctx, `SELECT id,title,wait_module_completion,is_member_order_locked
		FROM module_groups WHERE id=$1`, id).
		Scan(&g.ID, &g.Title, &g.WaitModuleCompletion, &g.IsMemberOrderLocked)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, notFound("group", id)
	}
	if err != nil {
		return Group{}, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id,group_id,module_id,order_number
		FROM group_members WHERE group_id=$1 ORDER BY order_number`, id)
	if err != nil {
		return Group{}, err
	}
	defer rows.Close()
	g.Members = []GroupMember{}
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.ID, &m.GroupID, &m.ModuleID, &m.OrderNumber); err != nil {
			return Group{}, err
		}
		g.Members = append(g.Members, m)
	}
	return g, rows.Err()
}

func (s *SQLStore) getMember(ctx context.Context, q db.Querier, id string) (GroupMember, error) {
	var m GroupMember
	err := q.QueryRowContext(ctx, `SELECT id,group_id,module_id,order_number
		FROM group_members WHERE id=$1`+s.forUpdate(), id).
		Scan(&m.ID, &m.GroupID, &m.ModuleID, &m.OrderNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return GroupMember{}, notFound("group member", id)
	}
	return m, err
}

func (s *SQLStore) insertMember(ctx context.Context, q db.Querier, m GroupMember) error {
	_, err := q.ExecContext(ctx, `INSERT INTO group_members (id,group_id,module_id,order_number)
		VALUES ($1,$2,$3,$4)`, m.ID, m.GroupID, m.ModuleID, m.OrderNumber)
	return err
}

func (s *SQLStore) deleteMember(ctx context.Context, q db.Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM group_members WHERE id=$1`, id)
	return err
}

func (s *SQLStore) setMemberOrder(ctx context.Context, q db.Querier, id string, order int) error {
	_, err := q.ExecContext(ctx, `UPDATE group_members SET order_number=$1 WHERE id=$2`, order, id)
	return err
}

// lockGroup serialises membership changes on one group.
func (s *SQLStore) lockGroup(ctx context.Context, q db.Querier, id string) error {
	var got string
	err := q.QueryRowContext(ctx, `SELECT id FROM module_groups WHERE id=$1`+s.forUpdate(), id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("group", id)
	}
	return err
}

// ---- assignments ----

func (s *SQLStore) insertAssignment(ctx context.Context, q db.Querier, a Assignment, at time.Time) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO assignments (id,group_id,start_at,end_at,created_at)
		VALUES ($1,$2,$3,$4,$5)`, a.ID, a.GroupID, millis(a.StartAt), millis(a.EndAt), millis(at)); err != nil {
		return err
	}
	for _, t := range a.ExamTakers {
		if _, err := q.ExecContext(ctx, `INSERT INTO assignment_takers (assignment_id,exam_taker_id)
			VALUES ($1,$2) ON CONFLICT DO NOTHING`, a.ID, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) getAssignment(ctx context.Context, q db.Querier, id string) (Assignment, error) {
	var a Assignment
	var start, end int64
	err := q.QueryRowContext(ctx, `SELECT id,group_id,start_at,end_at FROM assignments WHERE id=$1`, id).
		Scan(&a.ID, &a.GroupID, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, notFound("assignment", id)
	}
	if err != nil {
		return Assignment{}, err
	}
	a.StartAt, a.EndAt = fromMillis(start), fromMillis(end)
	rows, err := q.QueryContext(ctx, `SELECT exam_taker_id FROM assignment_takers
		WHERE assignment_id=$1 ORDER BY exam_taker_id`, id)
	if err != nil {
		return Assignment{}, err
	}
	defer rows.Close()
	a.ExamTakers = []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return Assignment{}, err
		}
		a.ExamTakers = append(a.ExamTakers, t)
	}
	return a, rows.Err()
}
