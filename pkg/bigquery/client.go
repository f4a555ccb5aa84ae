package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errNotInitialized = errors.New("bigquery client not initialized")

// Client owns the analytics dataset: the writer streams order rows into it
// and the sales report queries it.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
	logg    *logger.Logger
}

// TableSpec describes a table the client may create. Row is a struct with
// bigquery tags; its inferred schema becomes the table schema.
type TableSpec struct {
	Name           string
	Row            any
	PartitionField string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	switch {
	case projectID == "":
		return nil, errors.New("SHOP_GCP_PROJECT_ID is required for bigquery")
	case datasetID == "":
		return nil, errors.New("SHOP_BIGQUERY_DATASET is required")
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client for %s: %w", projectID, err)
	}
	client := &Client{bq: bq, dataset: bq.Dataset(datasetID), cfg: cfg, logg: logg}
	if err := client.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery dataset reachable")
	}
	return client, nil
}

// clientOptions prefers inline JSON credentials over a key file; with
// neither the SDK falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping checks the dataset metadata is readable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("bigquery dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("read dataset %q: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// EnsureTables creates the tables in specs that are missing. Existing tables
// are left untouched.
func (c *Client) EnsureTables(ctx context.Context, specs ...TableSpec) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout*time.Duration(len(specs)+1))
	defer cancel()

	for _, spec := range specs {
		table := c.dataset.Table(spec.Name)
		_, err := table.Metadata(ctx)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return fmt.Errorf("read table %q: %w", spec.Name, err)
		}
		meta, err := tableMetadata(spec)
		if err != nil {
			return err
		}
		if err := table.Create(ctx, meta); err != nil {
			return fmt.Errorf("create table %q: %w", spec.Name, err)
		}
		if c.logg != nil {
			c.logg.Info(c.logg.WithField(ctx, "table", spec.Name), "bigquery table created")
		}
	}
	return nil
}

func tableMetadata(spec TableSpec) (*bigquery.TableMetadata, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.New("table name is required")
	}
	schema, err := bigquery.InferSchema(spec.Row)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %q: %w", spec.Name, err)
	}
	meta := &bigquery.TableMetadata{Name: spec.Name, Schema: schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: spec.PartitionField}
	}
	return meta, nil
}

// InsertRows streams rows into table.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("table name is required")
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) OrderEventsTable() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.cfg.OrderEventsTable)
}

func (c *Client) OrderSummaryTable() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.cfg.OrderSummaryTable)
}

// Query runs a parameterized statement and returns its row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.bq == nil {
		return nil, errNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.bq.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
