package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChunkRecord is an audit entry for one audio chunk received over a live
// connection. Audio bytes themselves are not stored, only their size; the
// trail exists for disconnect forensics and expires via TTL index.
type ChunkRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID    string             `bson:"session_id" json:"session_id"` // clinic session uuid
	ConnectionID string             `bson:"connection_id" json:"connection_id"`
	Seq          int64              `bson:"seq" json:"seq"`
	Bytes        int                `bson:"bytes" json:"bytes"`

	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
