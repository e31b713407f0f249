package expand

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPatterns(t *testing.T) {
	assert.True(t, Match("*.go", "main.go"))
	assert.True(t, Match("[ab]?", "bz"))
	assert.False(t, Match("a*", "ba"))
	assert.True(t, Match(`\*`, "*"))
}

func TestPatternCacheIsBounded(t *testing.T) {
	for i := 0; i < patternCacheSize*3; i++ {
		pat := fmt.Sprintf("value-%d-*", i)
		assert.True(t, Match(pat, fmt.Sprintf("value-%d-x", i)))
	}
	assert.LessOrEqual(t, patterns.Len(), patternCacheSize)
	assert.True(t, Match("value-0-*", "value-0-y"), "evicted patterns compile again")
}
