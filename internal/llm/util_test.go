package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json untouched", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"generic fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with language tag", "```javascript\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}

func TestCleanHTMLBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain html untouched", "<p>hello</p>", "<p>hello</p>"},
		{"fenced html", "```html\n<p>hello</p>\n```", "<p>hello</p>"},
		{"bare language line removed", "html\n<p>hello</p>", "<p>hello</p>"},
		{"interior fence line removed", "<p>a</p>\n```\n<p>b</p>", "<p>a</p>\n<p>b</p>"},
		{"content word not treated as tag", "hello world\n<p>x</p>", "hello world\n<p>x</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanHTMLBlock(tt.in))
		})
	}
}
