package sqlbase

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationManager_VersionsAreSorted(t *testing.T) {
	m := NewMigrationManager(slog.Default(), nil, map[int]string{3: "c", 1: "a", 2: "b"})

	assert.Equal(t, []int{1, 2, 3}, m.Versions())
	assert.Equal(t, 3, m.LatestVersion())
}

func TestMigrationManager_LatestVersionEmpty(t *testing.T) {
	m := NewMigrationManager(slog.Default(), nil, nil)

	assert.Empty(t, m.Versions())
	assert.Equal(t, 0, m.LatestVersion())
}
