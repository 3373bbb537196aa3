package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/storage"
)

// MemoryIndex as an index path keeps the index in memory.
const MemoryIndex = ":memory:"

type bleveEngine struct {
	store PostSource
	idx   bleve.Index
}

// fieldBoosts weights each indexed text field in queries.
var fieldBoosts = []struct {
	field  string
	match  float64
	prefix float64
}{
	{"topic", 4.0, 3.5},
	{"caption", 3.0, 2.5},
	{"photographer", 2.0, 1.8},
	{"provider", 0.5, 0.3},
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes
// every stored post.
func NewBleveEngine(store PostSource, indexPath string) (Searcher, error) {
	var idx bleve.Index
	var err error

	if indexPath == MemoryIndex {
		idx, err = bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating in-memory index: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		idx, err = bleve.Open(indexPath)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) || errors.Is(err, bleve.ErrorIndexMetaMissing) {
			idx, err = bleve.New(indexPath, buildIndexMapping())
		}
		if err != nil {
			return nil, fmt.Errorf("opening index %s: %w", indexPath, err)
		}
	}

	be := &bleveEngine{store: store, idx: idx}
	if err := be.reindexAll(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return be, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	text := func(store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = store
		return fm
	}

	caption := text(true)
	caption.IncludeTermVectors = true

	identity := bleve.NewTextFieldMapping()
	identity.Analyzer = keyword.Name
	identity.Store = true

	dm.AddFieldMappingsAt("caption", caption)
	dm.AddFieldMappingsAt("topic", text(true))
	dm.AddFieldMappingsAt("photographer", text(true))
	dm.AddFieldMappingsAt("provider", text(true))
	dm.AddFieldMappingsAt("identity", identity)
	dm.AddFieldMappingsAt("asset_url", text(true))

	im.DefaultMapping = dm
	return im
}

func postDocument(p *storage.PostRecord) map[string]any {
	return map[string]any{
		"identity":     p.Identity,
		"topic":        p.Topic,
		"caption":      p.Caption,
		"photographer": p.Photographer,
		"provider":     p.Provider,
		"asset_url":    p.AssetURL,
	}
}

func (b *bleveEngine) reindexAll() error {
	posts, err := b.store.GetPosts("", 0)
	if err != nil {
		return fmt.Errorf("loading posts for indexing: %w", err)
	}

	batch := b.idx.NewBatch()
	for _, p := range posts {
		if err := batch.Index(p.ID, postDocument(p)); err != nil {
			return err
		}
	}
	return b.idx.Batch(batch)
}

func (b *bleveEngine) Search(query string, limit int) ([]*Result, error) {
	return b.SearchIdentity("", query, limit)
}

func (b *bleveEngine) SearchIdentity(identity, query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	// OR of per-term matches and prefixes across the boosted fields
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		for _, fb := range fieldBoosts {
			qm := bleve.NewMatchQuery(tok)
			qm.SetField(fb.field)
			qm.SetBoost(fb.match)
			qs = append(qs, qm)

			qp := bleve.NewPrefixQuery(tok)
			qp.SetField(fb.field)
			qp.SetBoost(fb.prefix)
			qs = append(qs, qp)
		}
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	var q bleveQuery.Query = bleve.NewDisjunctionQuery(qs...)
	if identity != "" {
		tq := bleve.NewTermQuery(identity)
		tq.SetField("identity")
		q = bleve.NewConjunctionQuery(q, tq)
	}

	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"identity", "topic", "caption", "photographer", "provider", "asset_url"}
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		post, err := b.store.GetPost(h.ID)
		if err != nil {
			// Index ahead of the store; rebuild what we can from stored fields.
			post = &storage.PostRecord{ID: h.ID}
			post.Identity, _ = h.Fields["identity"].(string)
			post.Topic, _ = h.Fields["topic"].(string)
			post.Caption, _ = h.Fields["caption"].(string)
			post.Photographer, _ = h.Fields["photographer"].(string)
			post.Provider, _ = h.Fields["provider"].(string)
			post.AssetURL, _ = h.Fields["asset_url"].(string)
		}
		out = append(out, &Result{Post: post, Score: h.Score})
	}
	return out, nil
}

// OnPostPublished indexes a freshly published post.
func (b *bleveEngine) OnPostPublished(post *storage.PostRecord) {
	if post == nil || post.ID == "" {
		return
	}
	if err := b.idx.Index(post.ID, postDocument(post)); err != nil {
		debuglog.WithFields(debuglog.Fields{"post": post.ID}).Warnf("indexing post: %v", err)
	}
}

// DocCount reports total documents in the index.
func (b *bleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *bleveEngine) Close() error {
	return b.idx.Close()
}
