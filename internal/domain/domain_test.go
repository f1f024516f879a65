package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepository(t *testing.T) {
	repo, err := ParseRepository(" arrow-kt/arrow ")
	require.NoError(t, err)
	assert.Equal(t, Repository{Owner: "arrow-kt", Name: "arrow"}, repo)
	assert.Equal(t, "arrow-kt/arrow", repo.String())

	for _, in := range []string{"", "arrow", "a/b/c", "/arrow", "arrow-kt/", " / "} {
		_, err := ParseRepository(in)
		assert.Error(t, err, in)
	}
}

func TestRepositoryIsCaseSensitive(t *testing.T) {
	assert.NotEqual(t, Repository{Owner: "Arrow-kt", Name: "arrow"}, Repository{Owner: "arrow-kt", Name: "arrow"})
}
