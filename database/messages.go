package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warelay/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateMessage is returned when a record with the same messageId already exists.
var ErrDuplicateMessage = errors.New("message with this messageId already exists")

// MessageStore keeps the message log for a single business phone number.
type MessageStore struct {
	coll    *mongo.Collection
	localID string
	now     func() time.Time
}

func NewMessageStore(coll *mongo.Collection, localID string) *MessageStore {
	return &MessageStore{
		coll:    coll,
		localID: localID,
		now:     time.Now,
	}
}

func (s *MessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}

	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.MessageID)
		}
		return fmt.Errorf("insert message %s: %w", msg.MessageID, err)
	}
	return nil
}

// UpdateStatus overwrites the status of an existing record. Unknown ids are a no-op
// and report matched=false.
func (s *MessageStore) UpdateStatus(ctx context.Context, messageID string, status models.MessageStatus) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"messageId": messageID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return false, fmt.Errorf("update status of %s: %w", messageID, err)
	}
	return res.MatchedCount > 0, nil
}

// Conversations groups the log by the non-local participant, newest first.
func (s *MessageStore) Conversations(ctx context.Context) ([]models.Conversation, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$from", s.localID}}},
				"$to",
				"$from",
			}}}},
			{Key: "lastMessage", Value: bson.D{{Key: "$first", Value: "$text"}}},
			{Key: "lastType", Value: bson.D{{Key: "$first", Value: "$type"}}},
			{Key: "lastTimestamp", Value: bson.D{{Key: "$first", Value: "$timestamp"}}},
			{Key: "unreadCount", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$status", models.StatusReceived}}},
				1,
				0,
			}}}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastTimestamp", Value: -1}}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}

	conversations := []models.Conversation{}
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return conversations, nil
}

// History returns the exchange with peer in ascending time order.
func (s *MessageStore) History(ctx context.Context, peer string) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"from": peer, "to": s.localID},
		bson.M{"from": s.localID, "to": peer},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find history for %s: %w", peer, err)
	}

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", peer, err)
	}
	return messages, nil
}

// MarkRead flips every received message from peer to read.
func (s *MessageStore) MarkRead(ctx context.Context, peer string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"from": peer, "status": models.StatusReceived},
		bson.M{"$set": bson.M{"status": models.StatusRead}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark %s as read: %w", peer, err)
	}
	return res.ModifiedCount, nil
}
