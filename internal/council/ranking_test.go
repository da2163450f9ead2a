package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "standard format with header",
			text: "Response A is good.\nResponse B is okay.\n\nFINAL RANKING:\n1. Response A\n2. Response B\n3. Response C",
			want: []string{"Response A", "Response B", "Response C"},
		},
		{
			name: "no space after period",
			text: "FINAL RANKING:\n1.Response B\n2.Response A\n3.Response C",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "more than three entries",
			text: "FINAL RANKING:\n1. Response E\n2. Response C\n3. Response A\n4. Response D\n5. Response B",
			want: []string{"Response E", "Response C", "Response A", "Response D", "Response B"},
		},
		{
			name: "fallback without header",
			text: "I think Response B is best, then Response A, and finally Response C.",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "no labels anywhere",
			text: "This evaluation does not follow the format at all.",
			want: []string{},
		},
		{
			name: "empty text",
			text: "",
			want: []string{},
		},
		{
			name: "header without rankings",
			text: "Response A was fine.\n\nFINAL RANKING:\nNo clear winner.",
			want: []string{},
		},
		{
			name: "extra text after ranking",
			text: "FINAL RANKING:\n1. Response C\n2. Response A\n3. Response B\n\nThis concludes my evaluation.",
			want: []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "lowercase header falls back to whole text",
			text: "final ranking:\n1. Response A\n2. Response B",
			want: []string{"Response A", "Response B"},
		},
		{
			name: "mentions before header are ignored",
			text: "Response A is good. Response A really stands out.\nResponse B is okay.\n\nFINAL RANKING:\n1. Response A\n2. Response B",
			want: []string{"Response A", "Response B"},
		},
		{
			name: "fallback keeps repeated mentions",
			text: "Response B beats Response A. Response B is also shorter.",
			want: []string{"Response B", "Response A", "Response B"},
		},
		{
			name: "header with bare labels",
			text: "FINAL RANKING:\nResponse C, then Response A, then Response C again",
			want: []string{"Response C", "Response A", "Response C"},
		},
		{
			name: "late alphabet labels",
			text: "FINAL RANKING:\n1. Response Z\n2. Response Y\n3. Response X",
			want: []string{"Response Z", "Response Y", "Response X"},
		},
		{
			name: "multi letter labels",
			text: "FINAL RANKING:\n1. Response AB\n2. Response A\n3. Response AA",
			want: []string{"Response AB", "Response A", "Response AA"},
		},
		{
			name: "extra whitespace",
			text: "FINAL RANKING:\n\n  1.   Response A\n  2. Response B\n  3.Response C  ",
			want: []string{"Response A", "Response B", "Response C"},
		},
		{
			name: "only the first marker section counts",
			text: "FINAL RANKING:\n1. Response B\n2. Response A\nOn reflection:\nFINAL RANKING:\n1. Response A\n2. Response B",
			want: []string{"Response B", "Response A"},
		},
		{
			name: "realistic evaluation",
			text: "## Evaluation\n\n**Response A Analysis:**\nThorough.\n\n**Response B Analysis:**\nShallow.\n\n**Response C Analysis:**\nBest.\n\nFINAL RANKING:\n1. Response C\n2. Response A\n3. Response B",
			want: []string{"Response C", "Response A", "Response B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRanking(tt.text)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRankingWithin(t *testing.T) {
	three := LabelMap{
		"Response A": {Model: "a", Instance: 1},
		"Response B": {Model: "b", Instance: 1},
		"Response C": {Model: "c", Instance: 1},
	}

	tests := []struct {
		name   string
		text   string
		labels LabelMap
		want   []string
	}{
		{
			name:   "capitalised words after a label are not part of it",
			text:   "Response A beats Response BUT not by much; Response C IS weak",
			labels: three,
			want:   []string{"Response A", "Response B", "Response C"},
		},
		{
			name:   "numbered items are clipped too",
			text:   "FINAL RANKING:\n1. Response CLEARLY\n2. Response A\n3. Response B",
			labels: three,
			want:   []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "two letter labels keep two letters",
			text: "FINAL RANKING:\n1. Response AB\n2. Response A",
			labels: LabelMap{
				"Response A":  {Model: "a", Instance: 1},
				"Response AB": {Model: "ab", Instance: 1},
			},
			want: []string{"Response AB", "Response A"},
		},
		{
			name:   "no labels handed out leaves matches unbounded",
			text:   "Response BUT",
			labels: LabelMap{},
			want:   []string{"Response BUT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRankingWithin(tt.text, tt.labels))
		})
	}
}

func TestParseRanking_UnboundedKeepsWholeWord(t *testing.T) {
	assert.Equal(t, []string{"Response A", "Response BUT"}, ParseRanking("Response A beats Response BUT"))
}
