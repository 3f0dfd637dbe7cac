// internal/aggregator/archive.go
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"ace-pipeline/internal/models"
)

// ElasticsearchArchive persists reports in an index keyed by
// (learner, assignment). Recomputed reports overwrite the prior document, so
// the archive always holds the latest fold.
type ElasticsearchArchive struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchArchive(client *elasticsearch.Client, index string) *ElasticsearchArchive {
	return &ElasticsearchArchive{client: client, index: index}
}

func (a *ElasticsearchArchive) Store(ctx context.Context, report *models.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	docID := report.LearnerID + ":" + report.AssignmentID
	res, err := a.client.Index(
		a.index,
		bytes.NewReader(data),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(docID),
		a.client.Index.WithRefresh("false"),
	)
	if err != nil {
		return fmt.Errorf("index report: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index report: %s", res.Status())
	}
	return nil
}
