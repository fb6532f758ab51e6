package committer

import (
	"testing"

	"cloud.google.com/go/spanner"
	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	p := NewPlan()
	assert.True(t, p.IsEmpty())
	assert.Equal(t, 0, p.Len())

	p.Add(nil)
	assert.True(t, p.IsEmpty())

	p.Add(spanner.Insert("relations", []string{"relation_id"}, []interface{}{"rel-1"}))
	p.Add(spanner.Insert("sync_events", []string{"event_id"}, []interface{}{"evt-1"}))
	assert.False(t, p.IsEmpty())
	assert.Equal(t, 2, p.Len())
	assert.Len(t, p.Mutations(), 2)
}
