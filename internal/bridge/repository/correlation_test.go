package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tg_zulip_bridge/internal/bridge/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoCorrelationRepositoryPut(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoCorrelationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		record := &models.CorrelationRecord{
			ChatID:         -1001,
			MessageID:      42,
			ZulipMessageID: 777,
			SourceSentAt:   time.Now().UTC(),
			Sender:         models.Sender{ID: 3001, Username: "alice", FirstName: "Alice"},
		}

		if err := repo.Put(context.Background(), record); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if record.CreatedAt.IsZero() {
			t.Fatalf("expected created_at to be set")
		}
	})

	mt.Run("duplicate key", func(mt *mtest.T) {
		repo := &MongoCorrelationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := repo.Put(context.Background(), &models.CorrelationRecord{
			ChatID:         -1001,
			MessageID:      42,
			ZulipMessageID: 778,
			SourceSentAt:   time.Now().UTC(),
		})
		if !errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("expected ErrDuplicateKey, got %v", err)
		}
	})

	mt.Run("insert error", func(mt *mtest.T) {
		repo := &MongoCorrelationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock insert failure",
		}))

		err := repo.Put(context.Background(), &models.CorrelationRecord{
			ChatID:    -1002,
			MessageID: 43,
		})
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("generic insert failure must not map to ErrDuplicateKey: %v", err)
		}
		if !strings.Contains(err.Error(), "failed to create correlation record") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoCorrelationRepositoryGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoCorrelationRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			correlationNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "chat_id", Value: int64(-1001)},
				{Key: "message_id", Value: int64(42)},
				{Key: "zulip_message_id", Value: int64(777)},
				{Key: "source_sent_at", Value: now},
				{Key: "sender", Value: bson.D{
					{Key: "id", Value: int64(3001)},
					{Key: "username", Value: "alice"},
					{Key: "first_name", Value: "Alice"},
				}},
				{Key: "created_at", Value: now},
			},
		))

		record, err := repo.Get(context.Background(), models.SourceMessageKey{ChatID: -1001, MessageID: 42})
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if record.ZulipMessageID != 777 {
			t.Fatalf("unexpected zulip message id: %d", record.ZulipMessageID)
		}
		if record.Sender.Username != "alice" {
			t.Fatalf("unexpected sender: %+v", record.Sender)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := &MongoCorrelationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			correlationNamespace(mt),
			mtest.FirstBatch,
		))

		_, err := repo.Get(context.Background(), models.SourceMessageKey{ChatID: -1, MessageID: 9999})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("find one error", func(mt *mtest.T) {
		repo := &MongoCorrelationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find failure",
		}))

		_, err := repo.Get(context.Background(), models.SourceMessageKey{ChatID: -1002, MessageID: 43})
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to get correlation record") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func correlationNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}
