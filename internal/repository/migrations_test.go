package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsAreOrdered(t *testing.T) {
	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
	}
}

func TestPendingMigrations(t *testing.T) {
	assert.Len(t, pendingMigrations(0), len(migrations))
	assert.Empty(t, pendingMigrations(migrations[len(migrations)-1].Version))

	pending := pendingMigrations(1)
	if assert.NotEmpty(t, pending) {
		assert.Equal(t, 2, pending[0].Version)
	}
}
