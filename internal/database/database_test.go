package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMongoDatabaseName(t *testing.T) {
	cases := map[string]string{
		"mongodb://localhost:27017/chat":                       "chat",
		"mongodb://localhost:27017/chat?replicaSet=rs0":        "chat",
		"mongodb+srv://u:p@cluster.example.net/?retryWrites=1": defaultMongoDatabase,
		"mongodb://localhost:27017":                            defaultMongoDatabase,
	}
	for uri, want := range cases {
		assert.Equal(t, want, mongoDatabaseName(uri), uri)
	}
}

func TestMaskURI(t *testing.T) {
	masked := MaskURI("mongodb://admin:hunter2@db:27017/chat")
	assert.NotContains(t, masked, "hunter2")
	assert.Contains(t, masked, "admin:")
	assert.Contains(t, masked, "@db:27017/chat")
	assert.Equal(t, "redis://localhost:6379/0", MaskURI("redis://localhost:6379/0"))
	assert.NotContains(t, MaskURI("postgres://app:s3cret@pg/palchat?sslmode=disable"), "s3cret")
}
