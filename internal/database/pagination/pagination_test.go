package pagination

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		limit      int
		wantOffset int
		unlimited  bool
	}{
		{name: "first page", page: 1, limit: 10, wantOffset: 0},
		{name: "third page", page: 3, limit: 20, wantOffset: 40},
		{name: "zero page clamps to one", page: 0, limit: 10, wantOffset: 0},
		{name: "negative page clamps to one", page: -4, limit: 10, wantOffset: 0},
		{name: "zero limit returns everything", page: 5, limit: 0, wantOffset: 0, unlimited: true},
		{name: "negative limit uses default", page: 2, limit: -1, wantOffset: DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.page, tt.limit)
			assert.GreaterOrEqual(t, p.Page, 1)
			assert.Equal(t, tt.wantOffset, p.Offset())
			assert.Equal(t, tt.unlimited, p.Unlimited())
		})
	}
}

func TestPage_JSONShape(t *testing.T) {
	raw, err := json.Marshal(NewPage[string](nil, 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": [], "count": 0}`, string(raw))

	raw, err = json.Marshal(NewPage([]int{1, 2}, 12))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": [1, 2], "count": 12}`, string(raw))
}
