package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
	"google.golang.org/api/iterator"
)

// DefaultFirestoreCollection is the collection used when none is configured
const DefaultFirestoreCollection = "memories"

// Firestore stores one document per memory, keyed by memory ID. Store order
// is kept in the seq field.
type Firestore struct {
	client     *firestore.Client
	collection string
}

type memoryDoc struct {
	ID         string             `firestore:"id"`
	Content    string             `firestore:"content"`
	Timestamp  time.Time          `firestore:"timestamp"`
	Embedding  firestore.Vector32 `firestore:"embedding"`
	Importance float64            `firestore:"importance"`
	Seq        int                `firestore:"seq"`
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID, collection string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	if collection == "" {
		collection = DefaultFirestoreCollection
	}

	return &Firestore{client: client, collection: collection}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) LoadMemories(ctx context.Context) ([]*model.Memory, error) {
	iter := r.client.Collection(r.collection).OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var memories []*model.Memory
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories", goerr.V("collection", r.collection))
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory document", goerr.V("doc", snap.Ref.ID))
		}

		memories = append(memories, &model.Memory{
			ID:         model.MemoryID(doc.ID),
			Content:    doc.Content,
			Timestamp:  doc.Timestamp,
			Embedding:  doc.Embedding,
			Importance: doc.Importance,
		})
	}

	logging.From(ctx).Debug("loaded memories from firestore", "collection", r.collection, "count", len(memories))
	return memories, nil
}

// ReplaceMemories upserts every memory and then deletes documents that are
// no longer in the set. Firestore caps a transaction at 500 writes, so the
// replacement goes through a BulkWriter instead. Until it finishes a reader
// may still see deleted memories, but never loses a kept one.
func (r *Firestore) ReplaceMemories(ctx context.Context, memories []*model.Memory) error {
	coll := r.client.Collection(r.collection)

	keep := make(map[string]struct{}, len(memories))
	for _, m := range memories {
		keep[string(m.ID)] = struct{}{}
	}

	var stale []*firestore.DocumentRef
	refs := coll.DocumentRefs(ctx)
	for {
		ref, err := refs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to list memory documents", goerr.V("collection", r.collection))
		}
		if _, ok := keep[ref.ID]; !ok {
			stale = append(stale, ref)
		}
	}

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for i, m := range memories {
		job, err := bw.Set(coll.Doc(string(m.ID)), &memoryDoc{
			ID:         string(m.ID),
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			Embedding:  m.Embedding,
			Importance: m.Importance,
			Seq:        i,
		})
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue memory write", goerr.V("id", m.ID))
		}
		jobs = append(jobs, job)
	}
	for _, ref := range stale {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue memory delete", goerr.V("id", ref.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to write memory document", goerr.V("collection", r.collection))
		}
	}

	logging.From(ctx).Debug("saved memories to firestore",
		"collection", r.collection,
		"count", len(memories),
		"deleted", len(stale))
	return nil
}
