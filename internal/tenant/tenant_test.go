package tenant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

func TestDir(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"alice", "t_alice"},
		{"team-42_b", "t_team-42_b"},
		{"bob@example.com", "x_626f62406578616d706c652e636f6d"},
		{"../etc", "x_2e2e2f657463"},
		{"Alice", "x_416c696365"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Dir(tt.id), tt.id)
	}
}

func TestDirIsCollisionFree(t *testing.T) {
	// A readable id that looks like an encoded one still gets the t_ prefix.
	assert.NotEqual(t, Dir("x_616263"), Dir("abc"))
	assert.NotEqual(t, Dir("abc"), Dir("ABC"))
}

func TestDirIsCaseFoldSafe(t *testing.T) {
	ids := []string{"alice", "Alice", "ALICE", "aLiCe", "x_416c696365", "bob@example.com", "BOB@example.com"}
	seen := make(map[string]string)
	for _, id := range ids {
		dir := Dir(id)
		assert.Equal(t, strings.ToLower(dir), dir, id)
		if other, ok := seen[dir]; ok {
			t.Errorf("%q and %q share directory %q", id, other, dir)
		}
		seen[dir] = id
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("alice"))
	assert.ErrorIs(t, Validate(""), apperr.ErrValidation)
}
