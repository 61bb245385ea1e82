package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeInserter struct {
	calls    [][]any
	failures []error
}

func (f *fakeInserter) InsertRows(ctx context.Context, table string, rows []any) error {
	f.calls = append(f.calls, rows)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	return nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaximumBackoff: 2 * time.Millisecond,
	}
}

func testRow(deliveryID string) DeliveryEventRow {
	return DeliveryEventRow{
		DeliveryID: deliveryID,
		Outcome:    "success",
		StatusCode: 200,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewWriterRequiresTable(t *testing.T) {
	_, err := newWriter(&fakeInserter{}, Config{})
	assert.Error(t, err)
}

func TestNewWriterAppliesDefaults(t *testing.T) {
	w, err := newWriter(&fakeInserter{}, Config{Table: "delivery_events"})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, w.batchSize)
	assert.Equal(t, defaultMaxAttempts, w.retry.MaxAttempts)
	assert.Equal(t, defaultInitialBackoff, w.retry.InitialBackoff)
	assert.Equal(t, defaultMaximumBackoff, w.retry.MaximumBackoff)
}

func TestRecordBuffersUntilBatchSize(t *testing.T) {
	inserter := &fakeInserter{}
	w, err := newWriter(inserter, Config{Table: "delivery_events", BatchSize: 3, RetryPolicy: fastRetry()})
	require.NoError(t, err)

	require.NoError(t, w.Record(context.Background(), testRow("d1")))
	require.NoError(t, w.Record(context.Background(), testRow("d2")))
	assert.Empty(t, inserter.calls)

	require.NoError(t, w.Record(context.Background(), testRow("d3")))
	require.Len(t, inserter.calls, 1)
	assert.Len(t, inserter.calls[0], 3)
}

func TestFlushDrainsBuffer(t *testing.T) {
	inserter := &fakeInserter{}
	w, err := newWriter(inserter, Config{Table: "delivery_events", BatchSize: 100, RetryPolicy: fastRetry()})
	require.NoError(t, err)

	require.NoError(t, w.Record(context.Background(), testRow("d1")))
	require.NoError(t, w.Flush(context.Background()))
	require.Len(t, inserter.calls, 1)

	// Nothing buffered now, so a second flush is a no-op.
	require.NoError(t, w.Flush(context.Background()))
	assert.Len(t, inserter.calls, 1)
}

func TestFlushRetriesRetryableErrors(t *testing.T) {
	inserter := &fakeInserter{failures: []error{
		&googleapi.Error{Code: 503},
		status.Error(codes.Unavailable, "backend unavailable"),
	}}
	w, err := newWriter(inserter, Config{Table: "delivery_events", RetryPolicy: fastRetry()})
	require.NoError(t, err)

	require.NoError(t, w.Record(context.Background(), testRow("d1")))
	assert.Len(t, inserter.calls, 3, "two retryable failures then success")
}

func TestFlushRetriesRowLevelRetryableErrors(t *testing.T) {
	inserter := &fakeInserter{failures: []error{
		cbigquery.PutMultiError{{
			RowIndex: 0,
			Errors:   cbigquery.MultiError{&googleapi.Error{Code: 503}},
		}},
	}}
	w, err := newWriter(inserter, Config{Table: "delivery_events", RetryPolicy: fastRetry()})
	require.NoError(t, err)

	require.NoError(t, w.Record(context.Background(), testRow("d1")))
	assert.Len(t, inserter.calls, 2, "row-level 503 retried then success")
}

func TestFlushFailsFastOnPermanentErrors(t *testing.T) {
	inserter := &fakeInserter{failures: []error{
		&googleapi.Error{Code: 400},
	}}
	w, err := newWriter(inserter, Config{Table: "delivery_events", RetryPolicy: fastRetry()})
	require.NoError(t, err)

	err = w.Record(context.Background(), testRow("d1"))
	require.Error(t, err)
	assert.Len(t, inserter.calls, 1)
}

func TestFlushGivesUpAfterMaxAttempts(t *testing.T) {
	inserter := &fakeInserter{failures: []error{
		&googleapi.Error{Code: 503},
		&googleapi.Error{Code: 503},
		&googleapi.Error{Code: 503},
	}}
	w, err := newWriter(inserter, Config{Table: "delivery_events", RetryPolicy: fastRetry()})
	require.NoError(t, err)

	err = w.Record(context.Background(), testRow("d1"))
	require.Error(t, err)
	assert.Len(t, inserter.calls, 3)
}

func TestFailedFlushKeepsRowsForLater(t *testing.T) {
	inserter := &fakeInserter{failures: []error{errors.New("schema mismatch")}}
	w, err := newWriter(inserter, Config{Table: "delivery_events", BatchSize: 100, RetryPolicy: fastRetry()})
	require.NoError(t, err)

	require.NoError(t, w.Record(context.Background(), testRow("d1")))
	require.Error(t, w.Flush(context.Background()))

	// The failed rows are retried by the next flush, oldest first.
	require.NoError(t, w.Record(context.Background(), testRow("d2")))
	require.NoError(t, w.Flush(context.Background()))

	last := inserter.calls[len(inserter.calls)-1]
	require.Len(t, last, 2)
	first, ok := last[0].(*DeliveryEventRow)
	require.True(t, ok)
	assert.Equal(t, "d1", first.DeliveryID)
}

func TestIsRetryableBigQueryError(t *testing.T) {
	assert.False(t, isRetryableBigQueryError(nil))
	assert.False(t, isRetryableBigQueryError(errors.New("boom")))
	assert.True(t, isRetryableBigQueryError(&googleapi.Error{Code: 429}))
	assert.True(t, isRetryableBigQueryError(&googleapi.Error{Code: 500}))
	assert.False(t, isRetryableBigQueryError(&googleapi.Error{Code: 404}))
	assert.True(t, isRetryableBigQueryError(status.Error(codes.ResourceExhausted, "quota")))
	assert.False(t, isRetryableBigQueryError(status.Error(codes.InvalidArgument, "bad row")))

	assert.True(t, isRetryableBigQueryError(cbigquery.PutMultiError{{
		Errors: cbigquery.MultiError{&googleapi.Error{Code: 503}},
	}}))
	assert.False(t, isRetryableBigQueryError(cbigquery.PutMultiError{{
		Errors: cbigquery.MultiError{&googleapi.Error{Code: 503}, &googleapi.Error{Code: 400}},
	}}))
	assert.False(t, isRetryableBigQueryError(cbigquery.PutMultiError{}))
	assert.True(t, isRetryableBigQueryError(cbigquery.MultiError{status.Error(codes.Unavailable, "backend unavailable")}))
}
