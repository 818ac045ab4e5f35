package docdb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/logger"
	"github.com/microsoft/vscode-documentdb-sub002/internal/tasks"
)

// ErrNoConnection is returned when neither a connection id nor a default
// URI is available.
var ErrNoConnection = errors.New("no connection selected and no default documentdb_uri configured")

// TaskType tags registry entries created by document operations.
const TaskType = "document-tool"

// Connections looks up catalog connections.
type Connections interface {
	Get(ctx context.Context, zone db.Zone, id string) (*catalog.StoredItem, error)
}

// Target selects the server an operation runs against. An empty
// ConnectionID uses the default URI.
type Target struct {
	Zone         db.Zone
	ConnectionID string
}

type Service struct {
	pool        *Pool
	connections Connections
	registry    *tasks.Registry
	defaultURI  string
	log         *zap.Logger
}

func NewService(pool *Pool, connections Connections, registry *tasks.Registry, defaultURI string) *Service {
	return &Service{
		pool:        pool,
		connections: connections,
		registry:    registry,
		defaultURI:  defaultURI,
		log:         logger.WithModule("docdb"),
	}
}

// ResolveURI returns the driver connection string for target.
func (s *Service) ResolveURI(ctx context.Context, target Target) (string, error) {
	if target.ConnectionID == "" {
		if s.defaultURI == "" {
			return "", ErrNoConnection
		}
		return s.defaultURI, nil
	}
	zone := target.Zone
	if zone == "" {
		zone = db.ZoneClusters
	}
	item, err := s.connections.Get(ctx, zone, target.ConnectionID)
	if err != nil {
		return "", err
	}
	if !item.IsConnection() {
		return "", fmt.Errorf("%q is a folder, not a connection", item.Name)
	}
	return item.Secrets.EffectiveConnectionString(), nil
}

// run registers a task holding the connection, database and collection for
// the duration of fn. The task is registered before the connection is
// resolved, so a delete that passed its conflict check has already removed
// the connection by the time it is looked up.
func (s *Service) run(ctx context.Context, op string, target Target, dbName, collName string, fn func(*mongo.Client) error) error {
	if s.registry != nil {
		info, done, err := s.registry.Start(tasks.TaskInfo{TaskName: op, TaskType: TaskType}, tasks.ResourceUsage{
			ConnectionID:   target.ConnectionID,
			DatabaseName:   dbName,
			CollectionName: collName,
		})
		if err != nil {
			return err
		}
		defer done()
		s.log.Debug("document task started", zap.String("task_id", info.TaskID), zap.String("op", op),
			zap.String("connection_id", target.ConnectionID), zap.String("database", dbName))
	}

	uri, err := s.ResolveURI(ctx, target)
	if err != nil {
		return err
	}
	client, err := s.pool.Client(uri)
	if err != nil {
		return err
	}
	return fn(client)
}

type DatabaseList struct {
	Databases []string `bson:"databases"`
}

func (s *Service) ListDatabases(ctx context.Context, target Target) (*DatabaseList, error) {
	out := &DatabaseList{}
	err := s.run(ctx, "list_databases", target, "", "", func(c *mongo.Client) error {
		names, err := c.ListDatabaseNames(ctx, bson.D{})
		out.Databases = names
		return err
	})
	return out, err
}

// DBStats runs the dbStats command.
func (s *Service) DBStats(ctx context.Context, target Target, dbName string) (bson.M, error) {
	var out bson.M
	err := s.run(ctx, "db_stats", target, dbName, "", func(c *mongo.Client) error {
		return c.Database(dbName).RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&out)
	})
	return out, err
}

// CollectionStats runs the collStats command.
func (s *Service) CollectionStats(ctx context.Context, target Target, dbName, collName string) (bson.M, error) {
	var out bson.M
	err := s.run(ctx, "collection_stats", target, dbName, collName, func(c *mongo.Client) error {
		return c.Database(dbName).RunCommand(ctx, bson.D{{Key: "collStats", Value: collName}}).Decode(&out)
	})
	return out, err
}

type DBInfo struct {
	DatabaseName        string   `bson:"database_name"`
	CollectionNames     []string `bson:"collection_names"`
	Collections         int      `bson:"collections"`
	EstimatedTotalCount int64    `bson:"estimated_total_count"`
}

func (s *Service) DBInfo(ctx context.Context, target Target, dbName string) (*DBInfo, error) {
	out := &DBInfo{DatabaseName: dbName}
	err := s.run(ctx, "get_db_info", target, dbName, "", func(c *mongo.Client) error {
		database := c.Database(dbName)
		names, err := database.ListCollectionNames(ctx, bson.D{})
		if err != nil {
			return err
		}
		out.CollectionNames = names
		out.Collections = len(names)
		for _, name := range names {
			n, err := database.Collection(name).EstimatedDocumentCount(ctx)
			if err != nil {
				return fmt.Errorf("failed to count %s: %w", name, err)
			}
			out.EstimatedTotalCount += n
		}
		return nil
	})
	return out, err
}

type CollectionList struct {
	Collections []string `bson:"collections"`
}

func (s *Service) ListCollections(ctx context.Context, target Target, dbName string) (*CollectionList, error) {
	out := &CollectionList{}
	err := s.run(ctx, "list_collections", target, dbName, "", func(c *mongo.Client) error {
		names, err := c.Database(dbName).ListCollectionNames(ctx, bson.D{})
		out.Collections = names
		return err
	})
	return out, err
}

type FindResult struct {
	Documents  []bson.M `bson:"documents"`
	TotalCount int64    `bson:"total_count"`
	Limit      int64    `bson:"limit"`
	Skip       int64    `bson:"skip"`
	HasMore    bool     `bson:"has_more"`
}

// Find returns one page of matching documents and the total match count.
func (s *Service) Find(ctx context.Context, target Target, dbName, collName string, filter bson.D, limit, skip int64) (*FindResult, error) {
	if limit <= 0 {
		limit = 100
	}
	out := &FindResult{Limit: limit, Skip: skip, Documents: []bson.M{}}
	err := s.run(ctx, "find_documents", target, dbName, collName, func(c *mongo.Client) error {
		coll := c.Database(dbName).Collection(collName)
		cursor, err := coll.Find(ctx, filter, options.Find().SetLimit(limit).SetSkip(skip))
		if err != nil {
			return err
		}
		if err := cursor.All(ctx, &out.Documents); err != nil {
			return err
		}
		if len(filter) == 0 {
			out.TotalCount, err = coll.EstimatedDocumentCount(ctx)
		} else {
			out.TotalCount, err = coll.CountDocuments(ctx, filter)
		}
		if err != nil {
			return err
		}
		out.HasMore = skip+int64(len(out.Documents)) < out.TotalCount
		return nil
	})
	return out, err
}

type CountResult struct {
	Count int64 `bson:"count"`
}

func (s *Service) Count(ctx context.Context, target Target, dbName, collName string, filter bson.D) (*CountResult, error) {
	out := &CountResult{}
	err := s.run(ctx, "count_documents", target, dbName, collName, func(c *mongo.Client) error {
		n, err := c.Database(dbName).Collection(collName).CountDocuments(ctx, filter)
		out.Count = n
		return err
	})
	return out, err
}

type InsertResult struct {
	InsertedID    any  `bson:"inserted_id"`
	Acknowledged  bool `bson:"acknowledged"`
	InsertedCount int  `bson:"inserted_count"`
}

func (s *Service) InsertOne(ctx context.Context, target Target, dbName, collName string, doc bson.D) (*InsertResult, error) {
	out := &InsertResult{}
	err := s.run(ctx, "insert_document", target, dbName, collName, func(c *mongo.Client) error {
		res, err := c.Database(dbName).Collection(collName).InsertOne(ctx, doc)
		if err != nil {
			return err
		}
		out.InsertedID = res.InsertedID
		out.Acknowledged = res.Acknowledged
		out.InsertedCount = 1
		return nil
	})
	return out, err
}

type UpdateResult struct {
	MatchedCount  int64 `bson:"matched_count"`
	ModifiedCount int64 `bson:"modified_count"`
	UpsertedID    any   `bson:"upserted_id,omitempty"`
	Acknowledged  bool  `bson:"acknowledged"`
}

func (s *Service) UpdateOne(ctx context.Context, target Target, dbName, collName string, filter, update bson.D, upsert bool) (*UpdateResult, error) {
	out := &UpdateResult{}
	err := s.run(ctx, "update_document", target, dbName, collName, func(c *mongo.Client) error {
		res, err := c.Database(dbName).Collection(collName).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(upsert))
		if err != nil {
			return err
		}
		out.MatchedCount = res.MatchedCount
		out.ModifiedCount = res.ModifiedCount
		out.UpsertedID = res.UpsertedID
		out.Acknowledged = res.Acknowledged
		return nil
	})
	return out, err
}

type DeleteResult struct {
	DeletedCount int64 `bson:"deleted_count"`
	Acknowledged bool  `bson:"acknowledged"`
}

func (s *Service) DeleteOne(ctx context.Context, target Target, dbName, collName string, filter bson.D) (*DeleteResult, error) {
	out := &DeleteResult{}
	err := s.run(ctx, "delete_document", target, dbName, collName, func(c *mongo.Client) error {
		res, err := c.Database(dbName).Collection(collName).DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		out.DeletedCount = res.DeletedCount
		out.Acknowledged = res.Acknowledged
		return nil
	})
	return out, err
}

type AggregateResult struct {
	Results    []bson.M `bson:"results"`
	TotalCount int      `bson:"total_count"`
}

func (s *Service) Aggregate(ctx context.Context, target Target, dbName, collName string, pipeline []bson.D, allowDiskUse bool) (*AggregateResult, error) {
	out := &AggregateResult{Results: []bson.M{}}
	err := s.run(ctx, "aggregate", target, dbName, collName, func(c *mongo.Client) error {
		cursor, err := c.Database(dbName).Collection(collName).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(allowDiskUse))
		if err != nil {
			return err
		}
		if err := cursor.All(ctx, &out.Results); err != nil {
			return err
		}
		out.TotalCount = len(out.Results)
		return nil
	})
	return out, err
}

type IndexList struct {
	Indexes []bson.M `bson:"indexes"`
}

func (s *Service) ListIndexes(ctx context.Context, target Target, dbName, collName string) (*IndexList, error) {
	out := &IndexList{Indexes: []bson.M{}}
	err := s.run(ctx, "list_indexes", target, dbName, collName, func(c *mongo.Client) error {
		cursor, err := c.Database(dbName).Collection(collName).Indexes().List(ctx)
		if err != nil {
			return err
		}
		return cursor.All(ctx, &out.Indexes)
	})
	return out, err
}

type MessageResult struct {
	Message string `bson:"message"`
}

func (s *Service) DropCollection(ctx context.Context, target Target, dbName, collName string) (*MessageResult, error) {
	err := s.run(ctx, "drop_collection", target, dbName, collName, func(c *mongo.Client) error {
		return c.Database(dbName).Collection(collName).Drop(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &MessageResult{Message: fmt.Sprintf("collection %s.%s dropped", dbName, collName)}, nil
}

// RenameCollection renames within the same database through the admin
// renameCollection command.
func (s *Service) RenameCollection(ctx context.Context, target Target, dbName, collName, newName string, dropTarget bool) (*MessageResult, error) {
	err := s.run(ctx, "rename_collection", target, dbName, collName, func(c *mongo.Client) error {
		cmd := bson.D{
			{Key: "renameCollection", Value: dbName + "." + collName},
			{Key: "to", Value: dbName + "." + newName},
			{Key: "dropTarget", Value: dropTarget},
		}
		return c.Database("admin").RunCommand(ctx, cmd).Err()
	})
	if err != nil {
		return nil, err
	}
	return &MessageResult{Message: fmt.Sprintf("collection %s.%s renamed to %s", dbName, collName, newName)}, nil
}

func (s *Service) SampleDocuments(ctx context.Context, target Target, dbName, collName string, size int64) (*AggregateResult, error) {
	out := &AggregateResult{Results: []bson.M{}}
	err := s.run(ctx, "sample_documents", target, dbName, collName, func(c *mongo.Client) error {
		pipeline := []bson.D{{{Key: "$sample", Value: bson.D{{Key: "size", Value: size}}}}}
		cursor, err := c.Database(dbName).Collection(collName).Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		if err := cursor.All(ctx, &out.Results); err != nil {
			return err
		}
		out.TotalCount = len(out.Results)
		return nil
	})
	return out, err
}
