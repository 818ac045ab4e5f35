package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
)

func TestNormalizeConnectionString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no query", "mongodb://localhost:27017", "mongodb://localhost:27017"},
		{"clean query", "mongodb://h/?ssl=true&replicaSet=rs0", "mongodb://h/?ssl=true&replicaSet=rs0"},
		{"exact duplicate", "mongodb://h/?ssl=true&ssl=true&replicaSet=rs0", "mongodb://h/?ssl=true&replicaSet=rs0"},
		{"case-insensitive key", "mongodb://h/?SSL=true&ssl=true", "mongodb://h/?SSL=true"},
		{"same key different value kept", "mongodb://h/?readPreferenceTags=dc:ny&readPreferenceTags=dc:sf",
			"mongodb://h/?readPreferenceTags=dc:ny&readPreferenceTags=dc:sf"},
		{"empty segments dropped", "mongodb://h/?a=1&&b=2&", "mongodb://h/?a=1&b=2"},
		{"repeated many times", "mongodb://u:p@h1,h2/db?tls=true&tls=true&tls=true", "mongodb://u:p@h1,h2/db?tls=true"},
		{"not a uri", "garbage", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.NormalizeConnectionString(tt.in))
		})
	}
}
