package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/geometries"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
)

func newSession(t *testing.T) (*Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("could not create sqlmock: %s\n", err)
	}
	t.Cleanup(func() { db.Close() })

	sess, err := NewDB(sqlx.NewDb(db, "postgres")).Session(context.Background())
	if err != nil {
		t.Fatalf("could not open session: %s\n", err)
	}
	return sess, mock
}

func q(query string) string { return regexp.QuoteMeta(query) }

func strPtr(s string) *string { return &s }

func sampleAlert() *models.Alert {
	sent := time.Date(2023, 6, 1, 17, 0, 0, 0, time.UTC)
	return &models.Alert{
		Identifier: "NWS-1",
		Sender:     "w-nws.webmaster@noaa.gov",
		Sent:       &sent,
		Status:     models.StatusActual,
		MsgType:    models.MsgTypeUpdate,
		Scope:      models.ScopePublic,
		Codes:      []string{"IPAWSv1.0"},
		References: []models.Reference{{Identifier: "legacy-id-42"}},
		Info: []models.AlertInfo{{
			Language:   "en-US",
			Event:      "Flash Flood Warning",
			Urgency:    models.UrgencyImmediate,
			Severity:   models.SeveritySevere,
			Certainty:  models.CertaintyVeryLikely,
			Headline:   strPtr("Flash Flood Warning"),
			Categories: []models.Category{models.CategoryMet},
			Areas: []models.Area{{
				Description: "Harris, TX",
				GeoCodes:    []models.ValuePair{{ValueName: "SAME", Value: "048201"}},
				Polygons: []models.AreaPolygon{{
					Kind:    models.ShapePolygon,
					Geom:    orb.Polygon{{{-96, 29}, {-95, 29}, {-95, 30}, {-96, 29}}},
					SRID:    geometries.SRID,
					Geohash: "9vk0",
				}},
			}},
		}},
	}
}

func TestInsertAlert(t *testing.T) {
	t.Run("whole graph in one transaction", func(t *testing.T) {
		sess, mock := newSession(t)
		a := sampleAlert()

		mock.ExpectBegin()
		mock.ExpectQuery(q(insertAlertQuery)).
			WithArgs("NWS-1", "w-nws.webmaster@noaa.gov", *a.Sent, "Actual", "Update", nil, "Public", nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
		mock.ExpectExec(q(insertCodeQuery)).WithArgs(int64(11), "IPAWSv1.0").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(q(insertReferenceQuery)).WithArgs(int64(11), nil, "legacy-id-42", nil).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery(q(insertInfoQuery)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
		mock.ExpectExec(q(insertCategoryQuery)).WithArgs(int64(21), "Met").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery(q(insertAreaQuery)).WithArgs(int64(21), "Harris, TX", nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))
		mock.ExpectExec(q(insertGeocodeQuery)).WithArgs(int64(31), "SAME", "048201").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(q(insertPolygonQuery)).
			WithArgs(int64(31), "polygon", "9vk0", "SRID=4326;POLYGON((-96 29,-95 29,-95 30,-96 29))").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		id, err := sess.InsertAlert(context.Background(), a)
		if err != nil {
			t.Fatalf("expected nil error, got %s\n", err)
		}
		if id != 11 {
			t.Fatalf("expected id 11, got %d\n", id)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %s\n", err)
		}
	})

	t.Run("duplicate natural key rolls back", func(t *testing.T) {
		sess, mock := newSession(t)

		mock.ExpectBegin()
		mock.ExpectQuery(q(insertAlertQuery)).WillReturnError(&pq.Error{Code: "23505", Constraint: "alerts_natural_key"})
		mock.ExpectRollback()

		_, err := sess.InsertAlert(context.Background(), sampleAlert())
		if !errors.Is(err, ErrDuplicateAlert) {
			t.Fatalf("expected ErrDuplicateAlert, got %v\n", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %s\n", err)
		}
	})

	t.Run("child failure rolls back and skips the rest", func(t *testing.T) {
		sess, mock := newSession(t)

		mock.ExpectBegin()
		mock.ExpectQuery(q(insertAlertQuery)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
		mock.ExpectExec(q(insertCodeQuery)).WillReturnError(errors.New("value too long"))
		mock.ExpectRollback()

		_, err := sess.InsertAlert(context.Background(), sampleAlert())
		if err == nil || errors.Is(err, ErrDuplicateAlert) {
			t.Fatalf("expected a plain insert error, got %v\n", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %s\n", err)
		}
	})
}

func TestPing(t *testing.T) {
	sess, mock := newSession(t)
	mock.ExpectPing().WillReturnError(errors.New("broken pipe"))

	if err := sess.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error\n")
	}
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("could not create sqlmock: %s\n", err)
	}
	defer db.Close()

	mock.ExpectExec(q(schema)).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := NewDB(sqlx.NewDb(db, "postgres")).Migrate(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %s\n", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %s\n", err)
	}
}
