package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderChecks(t *testing.T) {
	rec := NewRecorder()

	assert.True(t, rec.Expect("eq", int64(1), int64(1)))
	assert.False(t, rec.Expect("type mismatch", 1, int64(1)))
	assert.True(t, rec.ExpectSet("set", []string{"b", "a"}, []string{"a", "b"}))
	assert.False(t, rec.ExpectSet("set size", []string{"a"}, []string{"a", "b"}))
	assert.True(t, rec.Within("within", 10150, 10000, 0.02))
	assert.False(t, rec.Within("outside", 10300, 10000, 0.02))
	assert.True(t, rec.True("true", true))
	assert.True(t, rec.False("false", false))

	assert.True(t, rec.Failed())
	assert.Len(t, rec.Checks(), 8)
	assert.Len(t, failedLabels(rec.Checks()), 3)
}

func TestRecorderPassesWithoutChecks(t *testing.T) {
	rec := NewRecorder()
	rec.Observe("members", []string{"a"})

	assert.False(t, rec.Failed())
	assert.Equal(t, []Observation{{Label: "members", Value: []string{"a"}}}, rec.Observations())
}

func TestExpectSetDoesNotReorderInput(t *testing.T) {
	rec := NewRecorder()
	got := []string{"Rose", "Bob", "Kim"}
	rec.ExpectSet("range", got, []string{"Kim", "Bob", "Rose"})

	assert.Equal(t, []string{"Rose", "Bob", "Kim"}, got)
}

func TestRegistryOrderAndReplace(t *testing.T) {
	r := NewRegistry(
		Scenario{Name: "b", Description: "first"},
		Scenario{Name: "a"},
		Scenario{Name: "b", Description: "second"},
	)

	assert.Equal(t, []string{"b", "a"}, r.Names())
	s, err := r.Lookup("b")
	assert.NoError(t, err)
	assert.Equal(t, "second", s.Description)

	_, err = r.Lookup("c")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}
