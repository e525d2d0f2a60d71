package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/fundrank/internal/provider"
)

func sampleRecord() *provider.PartialRecord {
	return &provider.PartialRecord{
		EntityID: "ACME",
		Provider: "fincore",
		Fields: []provider.Field{{
			Name:       "revenue",
			Value:      provider.NumberValue(900),
			Period:     provider.PeriodTTM,
			Source:     "fincore",
			FetchedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Confidence: 0.95,
		}},
	}
}

func TestRedis_PutAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, time.Hour, zerolog.Nop())

	rec := sampleRecord()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectSet("fund:rec:fincore:ACME", raw, 30*time.Minute).SetVal("OK")
	require.NoError(t, c.Put(context.Background(), rec, 30*time.Minute))

	mock.ExpectGet("fund:rec:fincore:ACME").SetVal(string(raw))
	got, err := c.Get(context.Background(), "fincore", "ACME")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_PutDefaultsTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, time.Hour, zerolog.Nop())

	rec := sampleRecord()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectSet("fund:rec:fincore:ACME", raw, time.Hour).SetVal("OK")
	require.NoError(t, c.Put(context.Background(), rec, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_PutSkipsEmptyRecords(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, time.Hour, zerolog.Nop())

	assert.NoError(t, c.Put(context.Background(), nil, time.Hour))
	assert.NoError(t, c.Put(context.Background(), &provider.PartialRecord{EntityID: "ACME", Provider: "fincore"}, time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_MissAndDegradedReads(t *testing.T) {
	t.Run("miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		c := NewRedis(db, time.Hour, zerolog.Nop())

		mock.ExpectGet("fund:rec:fincore:ACME").RedisNil()
		got, err := c.Get(context.Background(), "fincore", "ACME")
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("transport_error_treated_as_miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		c := NewRedis(db, time.Hour, zerolog.Nop())

		mock.ExpectGet("fund:rec:fincore:ACME").SetErr(errors.New("connection reset"))
		got, err := c.Get(context.Background(), "fincore", "ACME")
		assert.NoError(t, err, "a flaky cache must not fail the entity")
		assert.Nil(t, got)
	})

	t.Run("corrupt_entry_treated_as_miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		c := NewRedis(db, time.Hour, zerolog.Nop())

		mock.ExpectGet("fund:rec:fincore:ACME").SetVal("{corrupt")
		got, err := c.Get(context.Background(), "fincore", "ACME")
		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}
