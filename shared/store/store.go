// Package store persists normalized alerts to PostgreSQL + PostGIS.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/helloharbor/harbor-workers/cap-alerts/shared/geometries"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const uniqueViolation = pq.ErrorCode("23505")

var (
	// ErrDuplicateAlert means an alert with the same identifier, sender and
	// sent is already stored.
	ErrDuplicateAlert = errors.New("duplicate alert")

	// ErrConnUnusable is returned by callers that found the session dead
	// after a failed insert.
	ErrConnUnusable = errors.New("database connection unusable")
)

type DB struct {
	db *sqlx.DB
}

// Open connects with the lib/pq driver, e.g. Open(os.Getenv("DB_CONN")).
func Open(dsn string) (*DB, error) {
	d, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func NewDB(db *sqlx.DB) *DB {
	return &DB{db: db}
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the tables and indexes if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (d *DB) CountAlerts(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.GetContext(ctx, &n, countAlertsQuery)
	return n, err
}

// Session pins one connection from the pool. Sessions are not safe for
// concurrent use; each worker opens its own.
func (d *DB) Session(ctx context.Context) (*Session, error) {
	conn, err := d.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

type Session struct {
	conn *sqlx.Conn
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// InsertAlert writes the whole graph in one transaction and returns the new
// alert id. Nothing is written if any insert fails.
func (s *Session) InsertAlert(ctx context.Context, a *models.Alert) (id int64, err error) {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.GetContext(ctx, &id, insertAlertQuery,
		a.Identifier, a.Sender, a.Sent, a.Status, a.MsgType,
		a.Source, a.Scope, a.Restriction, a.Note,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: %w", ErrDuplicateAlert, err)
		}
		return 0, fmt.Errorf("insert alert: %w", err)
	}

	w := &txWriter{ctx: ctx, tx: tx}
	for _, addr := range a.Addresses {
		w.exec(insertAddressQuery, id, addr)
	}
	for _, code := range a.Codes {
		w.exec(insertCodeQuery, id, code)
	}
	for _, ref := range a.References {
		w.exec(insertReferenceQuery, id, ref.Sender, ref.Identifier, ref.Sent)
	}
	for _, inc := range a.Incidents {
		w.exec(insertIncidentQuery, id, inc)
	}
	for i := range a.Info {
		w.info(id, &a.Info[i])
	}
	if w.err != nil {
		return 0, w.err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// txWriter stops issuing statements after the first failure.
type txWriter struct {
	ctx context.Context
	tx  *sqlx.Tx
	err error
}

func (w *txWriter) exec(query string, args ...interface{}) {
	if w.err != nil {
		return
	}
	if _, err := w.tx.ExecContext(w.ctx, query, args...); err != nil {
		w.err = err
	}
}

func (w *txWriter) insertID(query string, args ...interface{}) int64 {
	var id int64
	if w.err != nil {
		return id
	}
	if err := w.tx.GetContext(w.ctx, &id, query, args...); err != nil {
		w.err = err
	}
	return id
}

func (w *txWriter) info(alertID int64, info *models.AlertInfo) {
	id := w.insertID(insertInfoQuery,
		alertID, info.Language, info.Event, info.Urgency, info.Severity, info.Certainty,
		info.Audience, info.Effective, info.Onset, info.Expires, info.SenderName,
		info.Headline, info.Description, info.Instruction, info.Web, info.Contact,
	)

	for _, c := range info.Categories {
		w.exec(insertCategoryQuery, id, c)
	}
	for _, r := range info.ResponseTypes {
		w.exec(insertResponseTypeQuery, id, r)
	}
	for _, ec := range info.EventCodes {
		w.exec(insertEventCodeQuery, id, ec.ValueName, ec.Value)
	}
	for _, p := range info.Parameters {
		w.exec(insertParameterQuery, id, p.ValueName, p.Value)
	}
	for _, r := range info.Resources {
		w.exec(insertResourceQuery, id, r.Description, r.MimeType, r.Size, r.URI, r.DerefURI, r.Digest)
	}
	for i := range info.Areas {
		w.area(id, &info.Areas[i])
	}
}

func (w *txWriter) area(infoID int64, area *models.Area) {
	id := w.insertID(insertAreaQuery, infoID, area.Description, area.Altitude, area.Ceiling)
	for _, gc := range area.GeoCodes {
		w.exec(insertGeocodeQuery, id, gc.ValueName, gc.Value)
	}
	for _, p := range area.Polygons {
		w.exec(insertPolygonQuery, id, p.Kind, p.Geohash, geometries.EWKT(p.Geom))
	}
}
