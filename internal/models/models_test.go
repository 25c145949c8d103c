package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListScan(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan([]byte(`["a.png","b.png"]`)))
	assert.Equal(t, StringList{"a.png", "b.png"}, l)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	assert.Error(t, l.Scan(42))
}

func TestStringListValue(t *testing.T) {
	v, err := StringList{"x.jpg"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["x.jpg"]`, v)

	v, err = StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestAccountKindTable(t *testing.T) {
	assert.Equal(t, "users", AccountKindUser.Table())
	assert.Equal(t, "agents", AccountKindAgent.Table())
	assert.False(t, AccountKind("ageent").Valid())
}
