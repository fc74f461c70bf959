package mediakit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropsMergeIsShallow(t *testing.T) {
	p := NewProps(
		F("title", String("Old")),
		F("meta", Object(map[string]Value{"a": Int(1), "b": Int(2)})),
	)

	p.Merge(NewProps(
		F("meta", Object(map[string]Value{"a": Int(9)})),
		F("extra", Bool(true)),
	))

	assert.Equal(t, []string{"title", "meta", "extra"}, p.Keys())
	meta, ok := p.Get("meta")
	require.True(t, ok)
	assert.Len(t, meta.Fields(), 1, "nested objects are replaced, not merged")
	title, _ := p.Get("title")
	assert.Equal(t, "Old", title.Text())
}

func TestZeroPropsUsable(t *testing.T) {
	var p Props
	assert.Equal(t, 0, p.Len())
	_, ok := p.Get("x")
	assert.False(t, ok)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	p.Set("x", String("y"))
	assert.Equal(t, 1, p.Len())
}

func TestPropsEqualIgnoresOrder(t *testing.T) {
	a := NewProps(F("x", Int(1)), F("y", Int(2)))
	b := NewProps(F("y", Int(2)), F("x", Int(1)))
	assert.True(t, a.Equal(b))

	b.Set("y", Int(3))
	assert.False(t, a.Equal(b))
}

func TestPropsJSONKeepsOrder(t *testing.T) {
	var p Props
	require.NoError(t, json.Unmarshal([]byte(`{"z":"last","a":[1,"two",{"k":null}]}`), &p))
	assert.Equal(t, []string{"z", "a"}, p.Keys())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"last","a":[1,"two",{"k":null}]}`, string(data))
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "", Null().Text())
	assert.Equal(t, "hello", String("hello").Text())
	assert.Equal(t, "3", Int(3).Text())
	assert.Equal(t, "2.5", Number(2.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, `["a",1]`, Array(String("a"), Int(1)).Text())
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{"list": []any{"a", 1.5, true, nil}})
	require.NoError(t, err)
	assert.Equal(t, KindObject, v.Kind())
	assert.True(t, v.Equal(Object(map[string]Value{
		"list": Array(String("a"), Number(1.5), Bool(true), Null()),
	})))

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}
