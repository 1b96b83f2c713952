package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindReferences(t *testing.T) {
	refs := FindReferences(`status is {{@n1:Fetch.status}} and body {{@n2:Parse}}`)
	require.Len(t, refs, 2)

	assert.Equal(t, "n1", refs[0].NodeID)
	assert.Equal(t, "Fetch", refs[0].Label)
	assert.Equal(t, "status", refs[0].Field)
	assert.Equal(t, "{{@n1:Fetch.status}}", refs[0].Raw)

	assert.Equal(t, "n2", refs[1].NodeID)
	assert.Equal(t, "Parse", refs[1].Label)
	assert.Empty(t, refs[1].Field)
}

func TestFindReferences_None(t *testing.T) {
	assert.Nil(t, FindReferences("plain text {{ not a ref }}"))
}

func TestRewriteLabel(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{"with field", "{{@n1:Fetch.status}}", "{{@n1:FetchV2.status}}", true},
		{"without field", "value={{@n1:Fetch}}", "value={{@n1:FetchV2}}", true},
		{"nested field path", "{{@n1:Fetch.body.items}}", "{{@n1:FetchV2.body.items}}", true},
		{"multiple", "{{@n1:Fetch}} + {{@n1:Fetch.x}}", "{{@n1:FetchV2}} + {{@n1:FetchV2.x}}", true},
		{"other node", "{{@n2:Fetch.status}}", "{{@n2:Fetch.status}}", false},
		{"other label", "{{@n1:Load.status}}", "{{@n1:Load.status}}", false},
		{"label prefix only", "{{@n1:FetchAll}}", "{{@n1:FetchAll}}", false},
		{"no refs", "hello", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := RewriteLabel(tt.in, "n1", "Fetch", "FetchV2")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestRewriteLabel_RegexMetacharacters(t *testing.T) {
	got, changed := RewriteLabel("{{@a.b:Get (v1)*.x}}", "a.b", "Get (v1)*", "Get")
	assert.True(t, changed)
	assert.Equal(t, "{{@a.b:Get.x}}", got)
}

func TestNeutralizeReferences(t *testing.T) {
	out, names := NeutralizeReferences(`{{@n1:Fetch.status}} == 200 && {{@n2:Check}} && {{@n1:Fetch.status}} > 0`)
	assert.Equal(t, "ref0 == 200 && ref1 && ref0 > 0", out)
	assert.Equal(t, []string{"ref0", "ref1"}, names)
}

func TestNeutralizeReferences_NoRefs(t *testing.T) {
	out, names := NeutralizeReferences("x > 1")
	assert.Equal(t, "x > 1", out)
	assert.Nil(t, names)
}

func TestReplaceReferences(t *testing.T) {
	var seen []string
	out := ReplaceReferences(`{{@n1:Fetch.body}} | {{@n2:Parse}}`, func(r Reference) string {
		seen = append(seen, r.NodeID)
		return "null"
	})
	assert.Equal(t, "null | null", out)
	assert.Equal(t, []string{"n1", "n2"}, seen)
	assert.Equal(t, "plain", ReplaceReferences("plain", func(Reference) string { return "x" }))
}
