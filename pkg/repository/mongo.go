package repository

import (
	"context"
	"time"

	"github.com/example/cmsshop/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
	service  string
}

func NewMongoRepository(cfg *config.MongoDBConfig, service string) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
		service:  service,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// AuditLog is one state-changing operation on a menu or an order.
type AuditLog struct {
	ID        string    `bson:"_id,omitempty" json:"id,omitempty"`
	Service   string    `bson:"service" json:"service"`
	Action    string    `bson:"action" json:"action"`
	EntityID  string    `bson:"entity_id" json:"entity_id"`
	Data      bson.M    `bson:"data" json:"data"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func NewAuditLog(service, action, entityID string, data map[string]interface{}) *AuditLog {
	doc := bson.M{}
	for k, v := range data {
		doc[k] = v
	}
	return &AuditLog{
		Service:  service,
		Action:   action,
		EntityID: entityID,
		Data:     doc,
	}
}

func (m *MongoRepository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	collection := m.database.Collection(m.config.Collection)
	log.CreatedAt = time.Now().UTC()
	_, err := collection.InsertOne(ctx, log)
	return err
}

// Audit satisfies the auditor contracts of the menu and checkout services.
func (m *MongoRepository) Audit(ctx context.Context, action, entityID string, data map[string]interface{}) error {
	return m.CreateAuditLog(ctx, NewAuditLog(m.service, action, entityID, data))
}

func (m *MongoRepository) GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error) {
	collection := m.database.Collection(m.config.Collection)

	filter := bson.M{"entity_id": entityID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []*AuditLog{}
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}
