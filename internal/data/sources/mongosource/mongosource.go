package mongosource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
)

const firstSeenField = "_first_seen"

// Source groups documents of a MongoDB collection with the aggregation framework.
// Collection names in a GroupQuery are MongoDB collection names in one database.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri, database string, baseLog *logger.Logger) (*Source, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return New(client, database, baseLog), nil
}

func New(client *mongo.Client, database string, baseLog *logger.Logger) *Source {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Source{
		client: client,
		db:     client.Database(database),
		log:    baseLog.With("source", "MongoSource", "database", database),
	}
}

func (s *Source) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ingest inserts docs in order. MongoDB assigns ObjectIDs, whose ordering is the
// ingestion order used for first values.
func (s *Source) Ingest(ctx context.Context, collection string, docs []map[string]any) (int, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return 0, fmt.Errorf("collection is required")
	}
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]any, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, bson.M(d))
	}
	res, err := s.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return len(res.InsertedIDs), nil
}

func (s *Source) Reset(ctx context.Context, collection string) error {
	_, err := s.db.Collection(strings.TrimSpace(collection)).DeleteMany(ctx, bson.M{})
	return err
}

func (s *Source) Group(ctx context.Context, q aggregate.GroupQuery) ([]types.RawRecord, error) {
	pipeline, err := BuildPipeline(q)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(q.Collection).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", q.Collection, err)
	}
	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("read %s groups: %w", q.Collection, err)
	}

	out := make([]types.RawRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, flatten(q, row))
	}
	s.log.Debug("grouped collection", "collection", q.Collection, "group_by", q.GroupBy, "groups", len(out))
	return out, nil
}

// BuildPipeline sorts by _id, groups on the string form of each grouping field,
// takes $first of each first-value field and counts rows. Null and missing
// values group as "". Grouping on strings keeps int 100 and "100" in one group,
// matching the identity key they produce; dates group on their ISO-8601 form and
// arrays or objects, which have no string form, group on the raw value. Groups
// come back in the order of their earliest document. Grouping and first fields
// are aliased g0.. and f0.. because dotted names cannot be document keys.
func BuildPipeline(q aggregate.GroupQuery) (mongo.Pipeline, error) {
	if strings.TrimSpace(q.Collection) == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if len(q.GroupBy) == 0 {
		return nil, fmt.Errorf("group query on %s has no grouping fields", q.Collection)
	}
	id := bson.D{}
	for i, f := range q.GroupBy {
		id = append(id, bson.E{Key: fmt.Sprintf("g%d", i), Value: groupKeyExpr(f)})
	}
	group := bson.D{{Key: "_id", Value: id}}
	for i, f := range q.First {
		group = append(group, bson.E{Key: fmt.Sprintf("f%d", i), Value: bson.D{{Key: "$first", Value: "$" + f}}})
	}
	group = append(group,
		bson.E{Key: types.CountField, Value: bson.D{{Key: "$sum", Value: 1}}},
		bson.E{Key: firstSeenField, Value: bson.D{{Key: "$min", Value: "$_id"}}},
	)
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: group}},
		{{Key: "$sort", Value: bson.D{{Key: firstSeenField, Value: 1}}}},
	}, nil
}

func groupKeyExpr(field string) bson.D {
	return bson.D{{Key: "$convert", Value: bson.D{
		{Key: "input", Value: "$" + field},
		{Key: "to", Value: "string"},
		{Key: "onError", Value: "$" + field},
		{Key: "onNull", Value: ""},
	}}}
}

func flatten(q aggregate.GroupQuery, row bson.M) types.RawRecord {
	rec := make(types.RawRecord, len(q.GroupBy)+len(q.First)+1)
	id, _ := row["_id"].(bson.M)
	for i, f := range q.GroupBy {
		rec[f] = types.KeyString(normalize(id[fmt.Sprintf("g%d", i)]))
	}
	for i, f := range q.First {
		if _, grouped := rec[f]; grouped {
			continue
		}
		rec[f] = normalize(row[fmt.Sprintf("f%d", i)])
	}
	rec[types.CountField] = toCount(row[types.CountField])
	return rec
}

func toCount(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// normalize turns driver types into the plain values the mappers convert.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case primitive.Null, primitive.Undefined:
		return nil
	case int32:
		return int64(t)
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
