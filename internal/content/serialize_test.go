package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	t.Run("preserves author key order", func(t *testing.T) {
		out, err := Canonical([]byte(`{"venue":"Royal Hotel","id":"hull-royal-hotel"}`))
		require.NoError(t, err)

		want := "{\n    \"venue\": \"Royal Hotel\",\n    \"id\": \"hull-royal-hotel\"\n}"
		assert.Equal(t, want, out)
	})

	t.Run("stable across round trips", func(t *testing.T) {
		first, err := Canonical([]byte(`[ {"a": 1},   {"b": 2} ]`))
		require.NoError(t, err)

		second, err := Canonical([]byte(first))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("no trailing newline", func(t *testing.T) {
		out, err := Canonical([]byte(`[]`))
		require.NoError(t, err)
		assert.Equal(t, "[]", out)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := Canonical([]byte(`{"unterminated": `))
		assert.Error(t, err)
	})
}

func TestRender(t *testing.T) {
	t.Run("sorted keys", func(t *testing.T) {
		out, err := Render(map[string]any{"venue": "Royal Hotel", "id": "hull-royal-hotel"})
		require.NoError(t, err)

		want := "{\n    \"id\": \"hull-royal-hotel\",\n    \"venue\": \"Royal Hotel\"\n}"
		assert.Equal(t, want, out)
	})

	t.Run("keeps html characters literal", func(t *testing.T) {
		out, err := Render([]any{"tea & biscuits"})
		require.NoError(t, err)
		assert.Contains(t, out, "tea & biscuits")
	})
}
