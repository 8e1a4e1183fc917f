package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"gastos/internal/core"
	"gastos/internal/log"
)

const (
	esFlushBytes    = 2048
	esFlushInterval = 10 * time.Second
	esWorkers       = 2
	esMaxRetries    = 5
)

// Elasticsearch indexes documents with the bulk API.
type Elasticsearch struct {
	index  string
	client *elasticsearch.Client

	indexOnce sync.Once
	indexErr  error
}

var _ Sink = (*Elasticsearch)(nil)

// NewElasticsearch retries 429 and 5xx gateway responses with exponential
// backoff. With no urls it talks to http://localhost:9200.
func NewElasticsearch(index string, urls ...string) (*Elasticsearch, error) {
	if index == "" {
		index = DefaultIndex
	}
	retryBackoff := backoff.NewExponentialBackOff()
	var mu sync.Mutex
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     urls,
		RetryOnStatus: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests},
		RetryBackoff: func(attempt int) time.Duration {
			mu.Lock()
			defer mu.Unlock()
			if attempt == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
		MaxRetries: esMaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &Elasticsearch{index: index, client: client}, nil
}

func (e *Elasticsearch) Name() string { return "es8:" + e.index }

// ensureIndex creates the index on first use. An existing index is fine.
func (e *Elasticsearch) ensureIndex(ctx context.Context) error {
	e.indexOnce.Do(func() {
		res, err := e.client.Indices.Create(e.index, e.client.Indices.Create.WithContext(ctx))
		if err != nil {
			e.indexErr = fmt.Errorf("create index %s: %w", e.index, err)
			return
		}
		defer res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusBadRequest {
			e.indexErr = fmt.Errorf("create index %s: %s", e.index, res.Status())
		}
	})
	return e.indexErr
}

func (e *Elasticsearch) Upsert(ctx context.Context, txns []core.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	items := make([]esutil.BulkIndexerItem, 0, len(txns))
	for _, t := range txns {
		data, err := json.Marshal(NewDocument(t))
		if err != nil {
			return err
		}
		items = append(items, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: t.ID,
			Body:       bytes.NewReader(data),
		})
	}
	return e.bulk(ctx, items)
}

func (e *Elasticsearch) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	items := make([]esutil.BulkIndexerItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, esutil.BulkIndexerItem{Action: "delete", DocumentID: id})
	}
	return e.bulk(ctx, items)
}

func (e *Elasticsearch) bulk(ctx context.Context, items []esutil.BulkIndexerItem) error {
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}
	logger := log.FromContext(ctx).WithComponent(log.ComponentSink)

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         e.index,
		Client:        e.client,
		NumWorkers:    esWorkers,
		FlushBytes:    esFlushBytes,
		FlushInterval: esFlushInterval,
	})
	if err != nil {
		return err
	}

	var failed atomic.Int64
	for _, item := range items {
		item.OnFailure = func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			// A delete of a document that was never indexed is not a failure.
			if item.Action == "delete" && res.Status == http.StatusNotFound {
				return
			}
			failed.Add(1)
			if err != nil {
				logger.ErrorContext(ctx, "Bulk item failed", log.FieldTransactionID, item.DocumentID, log.FieldError, err)
				return
			}
			logger.ErrorContext(ctx, "Bulk item rejected",
				log.FieldTransactionID, item.DocumentID,
				"type", res.Error.Type,
				"reason", res.Error.Reason)
		}
		if err := bi.Add(ctx, item); err != nil {
			_ = bi.Close(ctx)
			return fmt.Errorf("queue bulk item: %w", err)
		}
	}
	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("flush bulk indexer: %w", err)
	}

	stats := bi.Stats()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("bulk %s: %d of %d items failed", e.index, n, len(items))
	}
	logger.DebugContext(ctx, "Bulk request done",
		"index", e.index,
		"flushed", stats.NumFlushed,
		log.FieldCount, len(items))
	return nil
}
