package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderTree(t *testing.T) {
	r := newTestRoot(t)

	tests := []struct {
		name  string
		depth int
		want  string
	}{
		{
			name:  "one level",
			depth: 1,
			want: "/\n" +
				"├── a.txt\n" +
				"└── sub/",
		},
		{
			name:  "two levels",
			depth: 2,
			want: "/\n" +
				"├── a.txt\n" +
				"└── sub/\n" +
				"    ├── b.txt\n" +
				"    └── deeper/",
		},
		{
			name:  "unlimited",
			depth: Unlimited,
			want: "/\n" +
				"├── a.txt\n" +
				"└── sub/\n" +
				"    ├── b.txt\n" +
				"    └── deeper/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTree(r.Dir(), "/", tt.depth)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTree_Errors(t *testing.T) {
	r := newTestRoot(t)

	_, err := RenderTree(r.Dir(), "/", 0)
	require.Error(t, err)
	_, err = RenderTree(r.Dir(), "/", -2)
	require.Error(t, err)
	_, err = RenderTree(r.Dir()+"/a.txt", "a.txt", 1)
	require.Error(t, err)
}

func TestRenderTree_LabelGetsSlash(t *testing.T) {
	r := newTestRoot(t)
	got, err := RenderTree(r.Dir()+"/sub", "sub", 1)
	require.NoError(t, err)
	require.Equal(t, "sub/\n├── b.txt\n└── deeper/", got)
}
