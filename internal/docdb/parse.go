package docdb

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ParseDocument decodes a relaxed or canonical extended JSON object. An
// empty string is the empty document.
func ParseDocument(s string) (bson.D, error) {
	if strings.TrimSpace(s) == "" {
		return bson.D{}, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &d); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	return d, nil
}

// ParsePipeline decodes an extended JSON array of stage documents.
func ParsePipeline(s string) ([]bson.D, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("pipeline is required")
	}
	var wrapper struct {
		Pipeline []bson.D `bson:"pipeline"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"pipeline":`+s+`}`), false, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	return wrapper.Pipeline, nil
}

// ToExtJSON renders a result as relaxed extended JSON.
func ToExtJSON(v any) (string, error) {
	data, err := bson.MarshalExtJSONIndent(v, false, false, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render result: %w", err)
	}
	return string(data), nil
}
