package bigquery

import (
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
)

type paidOrderRow struct {
	OrderNumber string    `bigquery:"order_number"`
	PaidAt      time.Time `bigquery:"paid_at"`
	TotalCents  int64     `bigquery:"total_cents"`
}

func TestTableMetadataInfersSchemaAndPartitioning(t *testing.T) {
	meta, err := tableMetadata(TableSpec{Name: "order_summaries", Row: paidOrderRow{}, PartitionField: "paid_at"})
	require.NoError(t, err)

	require.Len(t, meta.Schema, 3)
	assert.Equal(t, "order_number", meta.Schema[0].Name)
	assert.Equal(t, bigquery.TimestampFieldType, meta.Schema[1].Type)
	require.NotNil(t, meta.TimePartitioning)
	assert.Equal(t, "paid_at", meta.TimePartitioning.Field)
	assert.Equal(t, bigquery.DayPartitioningType, meta.TimePartitioning.Type)
}

func TestTableMetadataRequiresName(t *testing.T) {
	_, err := tableMetadata(TableSpec{Row: paidOrderRow{}})
	assert.Error(t, err)
}

func TestTableMetadataWithoutPartition(t *testing.T) {
	meta, err := tableMetadata(TableSpec{Name: "order_events", Row: paidOrderRow{}})
	require.NoError(t, err)
	assert.Nil(t, meta.TimePartitioning)
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 404})))
	assert.False(t, isNotFound(&googleapi.Error{Code: 403}))
	assert.False(t, isNotFound(fmt.Errorf("plain")))
}

func TestNilClientIsNotInitialized(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.InsertRows(t.Context(), "order_events", []any{1}), errNotInitialized)
	assert.Empty(t, c.OrderEventsTable())
	assert.NoError(t, c.Close())
}
