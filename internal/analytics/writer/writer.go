package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	OrderEventsTable  string
	OrderSummaryTable string
	// BatchSize rows are buffered per table before a streaming insert.
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds retries of transient insert failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(p.InitialBackoff, defaultMaximumBackoff)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaximumBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// TableInserter is satisfied by pkg/bigquery.Client.
type TableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// pending buffers rows for one table. insertID gives BigQuery a best-effort
// dedupe key so a redelivered event does not double count revenue.
type pending[T any] struct {
	table    string
	rows     []T
	insertID func(T) string
}

func (p *pending[T]) savers() []any {
	out := make([]any, len(p.rows))
	for i := range p.rows {
		out[i] = &cbigquery.StructSaver{Struct: &p.rows[i], InsertID: p.insertID(p.rows[i])}
	}
	return out
}

// BigQueryWriter streams analytics rows into the order_events and
// order_summaries tables.
type BigQueryWriter struct {
	client    TableInserter
	batchSize int
	retry     RetryPolicy

	mu        sync.Mutex
	events    pending[types.OrderEventRow]
	summaries pending[types.OrderSummaryRow]
}

func New(client TableInserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	events := strings.TrimSpace(cfg.OrderEventsTable)
	summaries := strings.TrimSpace(cfg.OrderSummaryTable)
	switch {
	case events == "":
		return nil, errors.New("order events table is required")
	case summaries == "":
		return nil, errors.New("order summary table is required")
	}

	return &BigQueryWriter{
		client:    client,
		batchSize: max(cfg.BatchSize, defaultBatchSize),
		retry:     cfg.RetryPolicy.withDefaults(),
		events: pending[types.OrderEventRow]{
			table:    events,
			insertID: func(r types.OrderEventRow) string { return r.EventID },
		},
		summaries: pending[types.OrderSummaryRow]{
			table:    summaries,
			insertID: func(r types.OrderSummaryRow) string { return r.OrderID },
		},
	}, nil
}

func (w *BigQueryWriter) InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return add(ctx, w, &w.events, row)
}

func (w *BigQueryWriter) InsertOrderSummary(ctx context.Context, row types.OrderSummaryRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return add(ctx, w, &w.summaries, row)
}

// Flush writes buffered rows of both tables.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(flush(ctx, w, &w.events), flush(ctx, w, &w.summaries))
}

func add[T any](ctx context.Context, w *BigQueryWriter, p *pending[T], row T) error {
	p.rows = append(p.rows, row)
	if len(p.rows) < w.batchSize {
		return nil
	}
	return flush(ctx, w, p)
}

// flush keeps the buffer when the insert fails so the next call retries it.
func flush[T any](ctx context.Context, w *BigQueryWriter, p *pending[T]) error {
	if len(p.rows) == 0 {
		return nil
	}
	if err := w.insert(ctx, p.table, p.savers()); err != nil {
		return err
	}
	p.rows = p.rows[:0]
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, table string, rows []any) error {
	err := retry.Do(ctx, w.retry.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, table, rows)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

// transient reports whether every failure inside err is worth retrying.
// Partial row failures count only when all of them are transient.
func transient(err error) bool {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}
	var putErr cbigquery.PutMultiError
	if errors.As(err, &putErr) {
		if len(putErr) == 0 {
			return false
		}
		for _, rowErr := range putErr {
			if !allTransient(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !transient(err) {
			return false
		}
	}
	return true
}
