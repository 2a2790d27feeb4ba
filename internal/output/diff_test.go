package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnifiedDiffEqual(t *testing.T) {
	assert.Empty(t, UnifiedDiff("a.lua", []byte("x\n"), []byte("x\n")))
}

func TestUnifiedDiffSingleChange(t *testing.T) {
	before := "local t = {}\ntable.insert(t, 1)\nprint(#t)\n"
	after := "local t = {}\nt[#t+1] = 1\nprint(#t)\n"

	want := `--- a/client.lua
+++ b/client.lua
@@ -1,3 +1,3 @@
 local t = {}
-table.insert(t, 1)
+t[#t+1] = 1
 print(#t)
`
	assert.Equal(t, want, UnifiedDiff("client.lua", []byte(before), []byte(after)))
}

func TestUnifiedDiffSeparateHunks(t *testing.T) {
	var before, after []string
	for i := 1; i <= 20; i++ {
		line := "line" + string(rune('a'+i))
		before = append(before, line)
		switch i {
		case 2:
			after = append(after, "changed-top")
		case 19:
			after = append(after, "changed-bottom")
		default:
			after = append(after, line)
		}
	}
	diff := UnifiedDiff("x.lua", []byte(strings.Join(before, "\n")+"\n"), []byte(strings.Join(after, "\n")+"\n"))

	assert.Equal(t, 2, strings.Count(diff, "@@ -"))
	assert.Contains(t, diff, "@@ -1,5 +1,5 @@")
	assert.Contains(t, diff, "@@ -16,5 +16,5 @@")
	assert.Contains(t, diff, "+changed-top\n")
	assert.Contains(t, diff, "-linet\n")
}

func TestUnifiedDiffInsertionAndMissingNewline(t *testing.T) {
	diff := UnifiedDiff("a.lua", []byte("a\nb"), []byte("local floor = math.floor\na\nb"))
	assert.Contains(t, diff, "@@ -1,2 +1,3 @@")
	assert.Contains(t, diff, "+local floor = math.floor\n")
	assert.Contains(t, diff, " b\n\\ No newline at end of file\n")
}

func TestHunkRange(t *testing.T) {
	assert.Equal(t, "1,3", hunkRange(0, 3))
	assert.Equal(t, "4", hunkRange(3, 1))
	assert.Equal(t, "3,0", hunkRange(3, 0))
}

func TestWriteDiff(t *testing.T) {
	diff := UnifiedDiff("a.lua", []byte("x\n"), []byte("y\n"))
	var buf bytes.Buffer
	WriteDiff(&buf, diff, false)
	assert.Equal(t, diff, buf.String())
}
