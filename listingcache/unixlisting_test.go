package listingcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnixListingSplitsFilesDirsAndLinks(t *testing.T) {
	a := assert.New(t)
	raw := "total 12\n" +
		"drwxr-xr-x  2 alice alice  4096 Jan  2 03:04 subdir\n" +
		"-rw-r--r--  1 alice alice  1234 Jan  2 03:04 report.txt\n" +
		"lrwxrwxrwx  1 alice alice     7 Jan  2 03:04 current -> subdir\n"

	items, err := ParseUnixListing([]byte(raw), "", 0)
	require.NoError(t, err)
	require.Len(t, items, 3)

	a.Equal("subdir", items[0].Name)
	a.Equal(KindDirectory, items[0].Kind)

	a.Equal("report.txt", items[1].Name)
	a.Equal(KindFile, items[1].Kind)
	a.EqualValues(1234, items[1].Size)

	a.Equal("current", items[2].Name)
	a.Equal(KindLink, items[2].Kind)
}

func TestParseUnixListingSkipsDotEntriesAndBlankLines(t *testing.T) {
	a := assert.New(t)
	raw := "drwxr-xr-x  2 alice alice  4096 Jan  2 03:04 .\n" +
		"drwxr-xr-x  2 alice alice  4096 Jan  2 03:04 ..\n" +
		"\n" +
		"-rw-r--r--  1 alice alice     0 Jan  2 03:04 empty.txt\n"

	items, err := ParseUnixListing([]byte(raw), "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	a.Equal("empty.txt", items[0].Name)
}

func TestParseUnixListingHandlesNamesWithSpaces(t *testing.T) {
	a := assert.New(t)
	raw := "-rw-r--r--  1 alice alice   10 Jan  2 03:04 my report final.txt\n"

	items, err := ParseUnixListing([]byte(raw), "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	a.Equal("my report final.txt", items[0].Name)
}
