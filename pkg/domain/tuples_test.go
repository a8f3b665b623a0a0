package domain_test

import (
	"testing"

	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestTuplesForPathsScalarFields(t *testing.T) {
	doc := domain.Document{"name": "Alice", "age": 25}

	tuples := domain.TuplesForPaths(doc, []string{"name", "age"})

	assert.Equal(t, [][]interface{}{{"Alice", 25}}, tuples)
}

func TestTuplesForPathsFansOutAcrossArray(t *testing.T) {
	doc := domain.Document{
		"user": "alice",
		"tags": []interface{}{"red", "blue"},
	}

	tuples := domain.TuplesForPaths(doc, []string{"user", "tags"})

	assert.ElementsMatch(t, [][]interface{}{
		{"alice", "red"},
		{"alice", "blue"},
	}, tuples)
}

func TestTuplesForPathsCartesianProductOfTwoArrays(t *testing.T) {
	doc := domain.Document{
		"a": []interface{}{1, 2},
		"b": []interface{}{"x", "y"},
	}

	tuples := domain.TuplesForPaths(doc, []string{"a", "b"})

	assert.Len(t, tuples, 4)
	assert.ElementsMatch(t, [][]interface{}{
		{1, "x"}, {1, "y"}, {2, "x"}, {2, "y"},
	}, tuples)
}

func TestTuplesForPathsMissingPathReturnsNil(t *testing.T) {
	doc := domain.Document{"name": "Alice"}

	tuples := domain.TuplesForPaths(doc, []string{"name", "missing"})

	assert.Nil(t, tuples)
}
