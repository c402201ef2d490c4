package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockID(t *testing.T) {
	t.Run("同じ入力は同じID", func(t *testing.T) {
		assert.Equal(t, LockID("schema", "vector"), LockID("schema", "vector"))
	})

	t.Run("区切りが異なれば別のID", func(t *testing.T) {
		assert.NotEqual(t, LockID("ab", "c"), LockID("a", "bc"))
	})

	t.Run("対象が異なれば別のID", func(t *testing.T) {
		assert.NotEqual(t, LockID("schema", "vector"), LockID("schema", "project"))
	})
}
