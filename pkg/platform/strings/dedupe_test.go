package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "order kept", in: []string{"b", "a"}, want: []string{"b", "a"}},
		{name: "trim and dedupe", in: []string{"  status:write ", "assertions:issue", "status:write", "", "  "}, want: []string{"status:write", "assertions:issue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.in))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t,
		[]string{"https://b.example/ctx", "https://a.example/ctx"},
		SplitList("https://b.example/ctx, https://a.example/ctx,https://b.example/ctx"),
	)
}
