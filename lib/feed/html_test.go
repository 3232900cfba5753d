package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"", ""},
		{"plain   text\n here", "plain text here"},
		{"<b>a</b><i>b</i>", "a b"},
		{"<p>Hello <a href='x'>world</a></p><script>alert(1)</script>", "Hello world"},
		{"<style>p{}</style><div>\n\tx\n</div>", "x"},
		{"Fish &amp; chips", "Fish & chips"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, StripHTML(tc.in), tc.in)
	}
}
