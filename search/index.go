// Package search provides full-text task search over a Bleve index.
package search

import (
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/task"
)

// Document is the indexed projection of a task.
type Document struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Assignees   []string  `json:"assignees"`
	CreatedBy   string    `json:"created_by"`
	DueTime     time.Time `json:"due_time"`
}

// Query filters a search. Text is matched against title and
// description; the other fields are exact filters.
type Query struct {
	GroupID  string
	Text     string
	Status   task.Status
	Assignee string
	Limit    int
}

// Hit is one search result.
type Hit struct {
	TaskID string
	Title  string
	Score  float64
}

// Index is a full-text task index.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewIndex opens or creates an index at path. An empty path keeps the
// index in memory.
func NewIndex(path string) (*Index, error) {
	var idx bleve.Index
	var err error

	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(buildIndexMapping())
	default:
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			idx, err = bleve.New(path, buildIndexMapping())
		} else {
			idx, err = bleve.Open(path)
		}
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "open search index")
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping analyzes title and description for full-text
// search and keeps the filter fields as exact keywords.
func buildIndexMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name

	keywordField := bleve.NewKeywordFieldMapping()
	dateField := bleve.NewDateTimeFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("description", textField)
	doc.AddFieldMappingsAt("group_id", keywordField)
	doc.AddFieldMappingsAt("status", keywordField)
	doc.AddFieldMappingsAt("assignees", keywordField)
	doc.AddFieldMappingsAt("created_by", keywordField)
	doc.AddFieldMappingsAt("due_time", dateField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// IndexTask adds or replaces the task's document.
func (x *Index) IndexTask(t *task.Task) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	doc := Document{
		ID:          t.ID,
		GroupID:     t.GroupID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Assignees:   t.Assignees,
		CreatedBy:   t.CreatedBy,
		DueTime:     t.DueTime,
	}
	if err := x.index.Index(t.ID, doc); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "index task", errors.WithTaskID(t.ID))
	}
	return nil
}

// Remove drops a task's document, e.g. after a quorum deletion.
func (x *Index) Remove(taskID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.index.Delete(taskID); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "remove task from index", errors.WithTaskID(taskID))
	}
	return nil
}

// Search runs a query and returns matching tasks, best first.
func (x *Index) Search(q Query) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if q.GroupID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "search needs a group")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	boolQuery := bleve.NewBooleanQuery()
	boolQuery.AddMust(termQuery("group_id", q.GroupID))

	var text query.Query
	if q.Text != "" {
		text = bleve.NewMatchQuery(q.Text)
	} else {
		text = bleve.NewMatchAllQuery()
	}
	boolQuery.AddMust(text)

	if q.Status != "" {
		boolQuery.AddMust(termQuery("status", string(q.Status)))
	}
	if q.Assignee != "" {
		boolQuery.AddMust(termQuery("assignees", q.Assignee))
	}

	req := bleve.NewSearchRequest(boolQuery)
	req.Size = limit
	req.Fields = []string{"title"}

	result, err := x.index.Search(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "search tasks")
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hit := Hit{TaskID: h.ID, Score: h.Score}
		if title, ok := h.Fields["title"].(string); ok {
			hit.Title = title
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Close()
}
