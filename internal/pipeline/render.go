package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ToJSONSafe converts a pipeline into plain maps/slices that marshal cleanly
// to JSON. Dates become {"$date": RFC3339} markers and regexes become
// {"$regex", "$options"} documents, mirroring extended JSON.
func ToJSONSafe(p mongo.Pipeline) []map[string]any {
	out := make([]map[string]any, len(p))
	for i, stage := range p {
		out[i] = docToMap(stage)
	}
	return out
}

// RenderJS renders the pipeline as a human-readable shell invocation.
func RenderJS(collection string, p mongo.Pipeline) string {
	data, err := json.MarshalIndent(ToJSONSafe(p), "", "  ")
	if err != nil {
		return fmt.Sprintf("db.%s.aggregate([/* render failed: %v */])", collection, err)
	}
	return fmt.Sprintf("db.%s.aggregate(%s)", collection, data)
}

func docToMap(d bson.D) map[string]any {
	out := make(map[string]any, len(d))
	for _, e := range d {
		out[e.Key] = jsonSafeValue(e.Value)
	}
	return out
}

func jsonSafeValue(v any) any {
	switch val := v.(type) {
	case bson.D:
		return docToMap(val)
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonSafeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonSafeValue(item)
		}
		return out
	case time.Time:
		return map[string]any{"$date": val.UTC().Format(time.RFC3339)}
	case primitive.Regex:
		return map[string]any{"$regex": val.Pattern, "$options": val.Options}
	default:
		return v
	}
}
