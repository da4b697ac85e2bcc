package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExplorePathsSetFlagsRevisitButNotFirstVisit(t *testing.T) {
	a := assert.New(t)
	s := newExplorePathsSet()

	a.False(s.Visit("/home/alice"))
	a.True(s.Visit("/home/alice"))
	a.False(s.Visit("/home/bob"))
}
