package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestToJSONSafe(t *testing.T) {
	p := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "title", Value: primitive.Regex{Pattern: "crash", Options: "i"}},
			{Key: "createdTimeStamp", Value: bson.D{{Key: "$gte", Value: frozenNow}}},
			{Key: "state", Value: bson.D{{Key: "$nin", Value: []string{"Completed"}}}},
		}}},
		bson.D{{Key: "$limit", Value: 50}},
	}

	out := ToJSONSafe(p)
	require.Len(t, out, 2)

	match := out[0]["$match"].(map[string]any)
	assert.Equal(t, map[string]any{"$regex": "crash", "$options": "i"}, match["title"])

	created := match["createdTimeStamp"].(map[string]any)
	assert.Equal(t, map[string]any{"$date": "2024-03-15T10:30:00Z"}, created["$gte"])

	assert.Equal(t, 50, out[1]["$limit"])
}

func TestRenderJS(t *testing.T) {
	p := mongo.Pipeline{bson.D{{Key: "$count", Value: "total"}}}
	js := RenderJS("workItem", p)
	assert.True(t, strings.HasPrefix(js, "db.workItem.aggregate("))
	assert.True(t, strings.HasSuffix(js, ")"))
	assert.Contains(t, js, `"$count": "total"`)
}
