package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.id
	return nil
}

type fakeQuerier struct {
	sql  string
	args []any
	row  fakeRow
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return q.row
}

func TestInsertQuery(t *testing.T) {
	q, err := insertQuery("public.readings")
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "public"."readings" ("entry_id", "created_at", "ph", "do", "t", "v", "sensor_id") VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING entry_id`,
		q)

	for _, bad := range []string{"", "a.b.c", "schema.", ".table"} {
		_, err := insertQuery(bad)
		assert.Error(t, err, "table %q", bad)
	}
}

func TestPostgresSink_Persist(t *testing.T) {
	db := &fakeQuerier{row: fakeRow{id: 5}}
	s, err := newPostgresSink(db, "sensor_data", 0, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Persist(context.Background(), sampleReading()))
	assert.Equal(t, []any{int64(5), "2024-01-01T00:00:00Z", 7.1, 6.0, 25.3, 3.3, "probe-A"}, db.args)
}

func TestPostgresSink_NoRowIsNoAck(t *testing.T) {
	s, err := newPostgresSink(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}, "sensor_data", 0, testLogger())
	require.NoError(t, err)

	err = s.Persist(context.Background(), sampleReading())
	assert.True(t, errors.Is(err, ErrNoAck))
}

func TestPostgresSink_QueryError(t *testing.T) {
	s, err := newPostgresSink(&fakeQuerier{row: fakeRow{err: errors.New("connection reset")}}, "sensor_data", 0, testLogger())
	require.NoError(t, err)

	err = s.Persist(context.Background(), sampleReading())
	var sinkErr *Error
	require.True(t, errors.As(err, &sinkErr))
	assert.Equal(t, "postgres", sinkErr.Sink)
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresSink_InvalidMeasurementSkipsInsert(t *testing.T) {
	db := &fakeQuerier{row: fakeRow{id: 5}}
	s, err := newPostgresSink(db, "sensor_data", 0, testLogger())
	require.NoError(t, err)

	r := sampleReading()
	r.Fields[0] = feed.Field{Value: "n/a", Valid: true}

	err = s.Persist(context.Background(), r)
	assert.ErrorContains(t, err, "field1")
	assert.Empty(t, db.sql, "no query should be issued")
}
