package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAll(t *testing.T) {
	all := All()

	assert.Len(t, all, 2)

	for version, m := range all {
		assert.NotNil(t, m.UP, "migration %d has no UP", version)
	}
}
