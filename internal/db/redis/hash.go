package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/tablekit/internal/db"
)

// PutDocuments stores documents as hashes under the doctype prefix in a single DoMulti round-trip.
func (s *Store) PutDocuments(ctx context.Context, doctype string, docs []db.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if !db.IsValidIdentifier(doctype) {
		return db.ErrUnknownDoctype
	}

	prefix := db.KeyPrefix(doctype)
	cmds := make([]rueidis.Completed, 0, len(docs))
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" || len(doc.Fields) == 0 {
			return fmt.Errorf("document id and fields are required")
		}
		cmd := s.b().Hset().Key(prefix + doc.ID).FieldValue()
		for k, v := range doc.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds = append(cmds, cmd.Build())
		keys = append(keys, prefix+doc.ID)
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
	}
	return nil
}
