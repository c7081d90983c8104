package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

// MongoRepository 把每一天存成一个文档：{_id: date, date, votes, updatedAt}
type MongoRepository struct {
	cfg  *config.Config
	coll *mongo.Collection
}

func ConnectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Mongo.ConnectTimeout)*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return client, nil
}

func NewMongoRepository(cfg *config.Config, client *mongo.Client) *MongoRepository {
	return &MongoRepository{
		cfg:  cfg,
		coll: client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection),
	}
}

func (r *MongoRepository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Mongo.QueryTimeout)*time.Second)
}

// CreateSchema 为区间查询建立 date 字段上的索引
func (r *MongoRepository) CreateSchema(ctx context.Context) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}},
	})
	return err
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return r.coll.Database().Client().Ping(ctx, nil)
}

// UpsertVote 用管道更新中的 $setField 只改写 votes 里该用户这一项，
// 用户名中出现 "." 或 "$" 也不会被当成字段路径
func (r *MongoRepository) UpsertVote(ctx context.Context, date string, user string, vote domain.Vote, at time.Time) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "date", Value: date},
			{Key: "votes", Value: bson.D{{Key: "$setField", Value: bson.D{
				{Key: "field", Value: bson.D{{Key: "$literal", Value: user}}},
				{Key: "input", Value: bson.D{{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$votes"}}, "object"}}},
					"$votes",
					bson.D{},
				}}}},
				{Key: "value", Value: bson.D{{Key: "$literal", Value: string(vote)}}},
			}}}},
			{Key: "updatedAt", Value: at},
		}}},
	}

	_, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: date}}, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (r *MongoRepository) GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error) {
	filter := bson.D{{Key: "date", Value: bson.D{
		{Key: "$gte", Value: dr.Start},
		{Key: "$lt", Value: dr.End},
	}}}
	return r.find(ctx, filter)
}

func (r *MongoRepository) GetAllDateRecords(ctx context.Context) ([]domain.DateRecord, error) {
	return r.find(ctx, bson.D{})
}

func (r *MongoRepository) find(ctx context.Context, filter bson.D) ([]domain.DateRecord, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	records := make([]domain.DateRecord, 0)
	for cur.Next(ctx) {
		record, err := decodeMongoRecord(cur.Current)
		if err != nil {
			skipMalformed(err)
			continue
		}
		records = append(records, record)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// decodeMongoRecord 把一个文档转换成记录；votes 不是文档或者格子不是字符串的情况和 SQL 实现的处理一致
func decodeMongoRecord(raw bson.Raw) (domain.DateRecord, error) {
	var doc struct {
		Date      string        `bson:"date"`
		Votes     bson.RawValue `bson:"votes"`
		UpdatedAt bson.RawValue `bson:"updatedAt"`
	}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return domain.DateRecord{}, fmt.Errorf("%w: %w", domain.ErrMalformedRecord, err)
	}

	var updatedAt time.Time
	if dt, ok := doc.UpdatedAt.DateTimeOK(); ok {
		updatedAt = time.UnixMilli(dt)
	}

	return buildRecord(doc.Date, mongoVotes(doc.Votes), updatedAt)
}

func mongoVotes(rv bson.RawValue) map[string]any {
	raw, ok := rv.DocumentOK()
	if !ok {
		return nil
	}
	elems, err := raw.Elements()
	if err != nil {
		return nil
	}

	votes := make(map[string]any, len(elems))
	for _, elem := range elems {
		val := elem.Value()
		if s, ok := val.StringValueOK(); ok {
			votes[elem.Key()] = s
		} else {
			votes[elem.Key()] = val
		}
	}
	return votes
}
