package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultHost = "localhost"
	defaultPort = 27017
)

// Options configures a MongoStore. URI, when set, overrides Host/Port.
type Options struct {
	Host     string
	Port     int
	URI      string
	Username string
	Password string
	Database string
}

// MongoStore is the production Store backed by the official MongoDB driver.
type MongoStore struct {
	opts   Options
	client *mongo.Client
}

// NewMongo creates an unconnected store for the given options.
func NewMongo(opts Options) *MongoStore {
	return &MongoStore{opts: opts}
}

// Connect dials the configured server and verifies the connection with a
// ping. Credentials, when supplied, authenticate against the target
// database; a rejected credential returns ErrAuthentication.
func (s *MongoStore) Connect(ctx context.Context) error {
	copts := options.Client()
	if s.opts.URI != "" {
		copts.ApplyURI(s.opts.URI)
	} else {
		host := s.opts.Host
		if host == "" {
			host = defaultHost
		}
		port := s.opts.Port
		if port == 0 {
			port = defaultPort
		}
		copts.SetHosts([]string{fmt.Sprintf("%s:%d", host, port)})
	}
	if s.opts.Username != "" {
		copts.SetAuth(options.Credential{
			AuthSource: s.opts.Database,
			Username:   s.opts.Username,
			Password:   s.opts.Password,
		})
	}

	client, err := mongo.Connect(ctx, copts)
	if err != nil {
		return fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		if isAuthError(err) {
			return ErrAuthentication
		}
		return fmt.Errorf("mongodb ping: %w", err)
	}

	s.client = client
	return nil
}

// Collection returns a handle bound to the configured database.
func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.client.Database(s.opts.Database).Collection(name)}
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// isAuthError reports whether err is an authentication rejection rather
// than a transport failure.
func isAuthError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 18 { // AuthenticationFailed
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "auth error") || strings.Contains(msg, "authentication failed")
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Name() string {
	return c.coll.Name()
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func (c *mongoCollection) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	if len(specs) == 0 {
		return nil
	}

	models := make([]mongo.IndexModel, 0, len(specs))
	for _, spec := range specs {
		keys := make(bson.D, 0, len(spec.Keys))
		for _, k := range spec.Keys {
			keys = append(keys, bson.E{Key: k.Field, Value: k.Direction})
		}
		opts := options.Index()
		if spec.Name != "" {
			opts.SetName(spec.Name)
		}
		if spec.Unique {
			opts.SetUnique(true)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}

	_, err := c.coll.Indexes().CreateMany(ctx, models)
	return err
}

// CollectFieldNames runs a server-side aggregation that unwinds every
// document into its top-level keys and merges the distinct key names into
// the companion collection.
func (c *mongoCollection) CollectFieldNames(ctx context.Context, into string) error {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{"kv": bson.M{"$objectToArray": "$$ROOT"}}}},
		{{Key: "$unwind", Value: "$kv"}},
		{{Key: "$group", Value: bson.M{"_id": "$kv.k"}}},
		{{Key: "$merge", Value: bson.M{"into": into, "whenMatched": "replace"}}},
	}

	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.Close(ctx)
}
