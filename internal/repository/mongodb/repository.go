package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository"
)

const (
	mirrorCollection  = "trial_collections"
	reportsCollection = "trial_reports"
)

// ReportArchive stores generated trial reports.
type ReportArchive interface {
	SaveTrialReport(ctx context.Context, report models.TrialReport) error
}

// Mirror keeps a shadow copy of the dataset in MongoDB. Each collection is a
// single document keyed by its storage key; the last push wins.
type Mirror struct {
	client *mongo.Client
	dbName string
	keys   repository.Keys
	now    func() time.Time
}

type collectionDoc[T any] struct {
	Key       string    `bson:"_id"`
	Items     []T       `bson:"items"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMirror connects to MongoDB and verifies the connection.
func NewMirror(ctx context.Context, uri string, dbName string, keys repository.Keys) (*Mirror, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Mirror{
		client: client,
		dbName: dbName,
		keys:   keys,
		now:    time.Now,
	}, nil
}

// Push overwrites the mirrored documents of the listed collections.
func (m *Mirror) Push(ctx context.Context, snap models.Snapshot, collections ...repository.Collection) error {
	snap = repository.Normalize(snap)
	coll := m.client.Database(m.dbName).Collection(mirrorCollection)
	now := m.now().UTC()

	for _, c := range collections {
		key := m.keys.For(c)
		var doc any
		switch c {
		case repository.CollectionAnimals:
			doc = collectionDoc[models.Animal]{Key: key, Items: snap.Animals, UpdatedAt: now}
		case repository.CollectionWeighings:
			doc = collectionDoc[models.Weighing]{Key: key, Items: snap.Weighings, UpdatedAt: now}
		case repository.CollectionFeed:
			doc = collectionDoc[models.FeedRecord]{Key: key, Items: snap.FeedRecords, UpdatedAt: now}
		case repository.CollectionIncidents:
			doc = collectionDoc[models.Incident]{Key: key, Items: snap.Incidents, UpdatedAt: now}
		default:
			return fmt.Errorf("unknown collection %q", c)
		}

		_, err := coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("mirror %s: %w", c, err)
		}
	}
	return nil
}

// Pull reads the mirrored collections. found lists the collections the
// mirror holds a document for; the others are left empty in snap.
func (m *Mirror) Pull(ctx context.Context) (snap models.Snapshot, found []repository.Collection, err error) {
	coll := m.client.Database(m.dbName).Collection(mirrorCollection)

	var ok bool
	if snap.Animals, ok, err = pull[models.Animal](ctx, coll, m.keys.For(repository.CollectionAnimals)); err != nil {
		return models.Snapshot{}, nil, err
	} else if ok {
		found = append(found, repository.CollectionAnimals)
	}
	if snap.Weighings, ok, err = pull[models.Weighing](ctx, coll, m.keys.For(repository.CollectionWeighings)); err != nil {
		return models.Snapshot{}, nil, err
	} else if ok {
		found = append(found, repository.CollectionWeighings)
	}
	if snap.FeedRecords, ok, err = pull[models.FeedRecord](ctx, coll, m.keys.For(repository.CollectionFeed)); err != nil {
		return models.Snapshot{}, nil, err
	} else if ok {
		found = append(found, repository.CollectionFeed)
	}
	if snap.Incidents, ok, err = pull[models.Incident](ctx, coll, m.keys.For(repository.CollectionIncidents)); err != nil {
		return models.Snapshot{}, nil, err
	} else if ok {
		found = append(found, repository.CollectionIncidents)
	}

	return repository.Normalize(snap), found, nil
}

func pull[T any](ctx context.Context, coll *mongo.Collection, key string) ([]T, bool, error) {
	var doc collectionDoc[T]
	err := coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read mirrored %s: %w", key, err)
	}
	return doc.Items, true, nil
}

// SaveTrialReport archives a generated report.
func (m *Mirror) SaveTrialReport(ctx context.Context, report models.TrialReport) error {
	collection := m.client.Database(m.dbName).Collection(reportsCollection)
	_, err := collection.InsertOne(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to insert trial report: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (m *Mirror) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
