package openedfiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadReadIsAllowed(t *testing.T) {
	a := assert.New(t)
	r := New()

	_, err := r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessRead)
	a.NoError(err)
	_, err = r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessRead)
	a.NoError(err)
	a.Equal(2, r.Count())
}

func TestReadWriteConflicts(t *testing.T) {
	a := assert.New(t)
	r := New()

	_, err := r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessRead)
	a.NoError(err)
	_, err = r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessWrite)
	a.Error(err)
}

func TestWriteWriteConflicts(t *testing.T) {
	a := assert.New(t)
	r := New()

	_, err := r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessWrite)
	a.NoError(err)
	_, err = r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessWrite)
	a.Error(err)
}

func TestDeleteConflictsWithEverything(t *testing.T) {
	a := assert.New(t)
	r := New()

	_, err := r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessRead)
	a.NoError(err)
	_, err = r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessDelete)
	a.Error(err)
}

func TestRenameConflictsWithEverything(t *testing.T) {
	a := assert.New(t)
	r := New()

	_, err := r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessRead)
	a.NoError(err)
	_, err = r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessRename)
	a.Error(err)
}

func TestDifferentPathsNeverConflict(t *testing.T) {
	a := assert.New(t)
	r := New()

	_, err := r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessWrite)
	a.NoError(err)
	_, err = r.OpenFile("u", "h", 21, "/b", 0, "f.txt", AccessWrite)
	a.NoError(err)
}

func TestCloseFileReleasesSlotForReuse(t *testing.T) {
	a := assert.New(t)
	r := New()

	uid, err := r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessWrite)
	a.NoError(err)
	a.Equal(1, r.Count())

	r.CloseFile(uid)
	a.Equal(0, r.Count())

	_, err = r.OpenFile("u", "h", 21, "/a", 0, "f.txt", AccessWrite)
	a.NoError(err)
	a.Equal(1, r.Count())
	a.Equal(1, len(r.entries)) // reused the freed slot instead of growing
}
