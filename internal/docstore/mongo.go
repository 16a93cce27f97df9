package docstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo stores each collection as a MongoDB collection keyed by _id.
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps an opened database.
func NewMongo(db *mongo.Database) *Mongo { return &Mongo{db: db} }

func (m *Mongo) Get(ctx context.Context, coll, id string) (Document, error) {
	var raw bson.M
	err := m.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromBSON(raw), nil
}

func (m *Mongo) Query(ctx context.Context, coll string, f Filter) ([]Document, error) {
	q := bson.M{}
	if f.Field != "" {
		if err := checkField(f.Field); err != nil {
			return nil, err
		}
		q[f.Field] = f.Value
	}
	cur, err := m.db.Collection(coll).Find(ctx, q)
	if err != nil {
		return nil, err
	}
	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromBSON(r))
	}
	return out, nil
}

func (m *Mongo) Set(ctx context.Context, coll, id string, doc Document) error {
	_, err := m.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, bson.M(body(doc)),
		options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) Create(ctx context.Context, coll, id string, doc Document) error {
	d := bson.M{"_id": id}
	for k, v := range body(doc) {
		d[k] = v
	}
	_, err := m.db.Collection(coll).InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return err
}

func (m *Mongo) Add(ctx context.Context, coll string, doc Document) (string, error) {
	id := uuid.NewString()
	if err := m.Create(ctx, coll, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Mongo) Update(ctx context.Context, coll, id string, p Patch) error {
	upd := bson.M{}
	if set := body(p.Set); len(set) > 0 {
		upd["$set"] = bson.M(set)
	}
	if len(p.Unset) > 0 {
		unset := bson.M{}
		for _, k := range p.Unset {
			unset[k] = ""
		}
		upd["$unset"] = unset
	}
	if len(upd) == 0 {
		// Nothing to write, but the document must still exist.
		_, err := m.Get(ctx, coll, id)
		return err
	}
	res, err := m.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, upd)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, coll, id string) error {
	res, err := m.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

// fromBSON moves _id to the id key and flattens driver container types so
// Decode sees plain maps and slices.
func fromBSON(raw bson.M) Document {
	d := make(Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			if s, ok := v.(string); ok {
				d[IDField] = s
			}
			continue
		}
		d[k] = plain(v)
	}
	return d
}

func plain(v any) any {
	switch x := v.(type) {
	case bson.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
