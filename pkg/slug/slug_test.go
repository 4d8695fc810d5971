package slug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/infraops/infrabot/pkg/slug"
)

func TestMake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Main Router", "main_router"},
		{"punctuation collapsed", "Office -- AP (2nd floor)", "office_ap_2nd_floor"},
		{"leading and trailing trimmed", "  !Edge!  ", "edge"},
		{"already clean", "gw1", "gw1"},
		{"unicode dropped", "Büro Router", "b_ro_router"},
		{"empty", "", ""},
		{"only separators", "---", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, slug.Make(tt.in))
		})
	}
}

func TestMakeOptions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "main-router", slug.Make("Main Router", slug.Separator("-")))
	assert.Equal(t, "main", slug.Make("Main Router", slug.MaxLength(5)))
}
