package listingcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twopanel/ftpcore/common"
)

func TestGetListingMissingPathRequestsFetch(t *testing.T) {
	a := assert.New(t)
	c := New()

	result, _, ch := c.GetListing("u", "h", 21, "/home", PathUnix, common.NewWorkerUID(), "file.txt")
	a.Equal(LookupMustFetch, result)
	a.NotNil(ch)
}

func TestGetListingInProgressRegistersWaiter(t *testing.T) {
	a := assert.New(t)
	c := New()
	workerA := common.NewWorkerUID()
	workerB := common.NewWorkerUID()

	c.GetListing("u", "h", 21, "/home", PathUnix, workerA, "file.txt")
	result, _, ch := c.GetListing("u", "h", 21, "/home", PathUnix, workerB, "other.txt")
	a.Equal(LookupWait, result)
	a.NotNil(ch)
}

func TestListingFinishedAppliesChangesAndDrainsWaiters(t *testing.T) {
	a := assert.New(t)
	c := New()
	worker := common.NewWorkerUID()

	_, _, ch := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "file.txt")

	c.ReportStoreFile("u", "h", 21, "/home", PathUnix, "uploading.bin")

	c.ListingFinished("u", "h", 21, "/home", []ListingItem{
		{Name: "existing.txt", Kind: KindFile, Size: 10},
	})

	outcome := <-ch
	a.Equal(OutcomeFinished, outcome)

	result, item, _ := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "uploading.bin")
	a.Equal(LookupItemPresent, result)
	a.Equal(SizeNeedsUpdate, item.Size)

	result, item, _ = c.GetListing("u", "h", 21, "/home", PathUnix, worker, "existing.txt")
	a.Equal(LookupItemPresent, result)
	a.Equal(int64(10), item.Size)

	result, _, _ = c.GetListing("u", "h", 21, "/home", PathUnix, worker, "missing.txt")
	a.Equal(LookupItemAbsent, result)
}

func TestListingFailedNotAccessibleSticks(t *testing.T) {
	a := assert.New(t)
	c := New()
	worker := common.NewWorkerUID()

	_, _, ch := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	c.ListingFailed("u", "h", 21, "/home", true)

	outcome := <-ch
	a.Equal(OutcomeNotAccessible, outcome)

	result, _, _ := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	a.Equal(LookupNotAccessible, result)
}

func TestListingFailedTransientDropsRecord(t *testing.T) {
	a := assert.New(t)
	c := New()
	worker := common.NewWorkerUID()

	_, _, ch := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	c.ListingFailed("u", "h", 21, "/home", false)

	outcome := <-ch
	a.Equal(OutcomeRetryLater, outcome)

	result, _, _ := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	a.Equal(LookupMustFetch, result) // record was dropped, so it is fetched anew
}

func TestReportFileUploadedOnReadyListingCommitsInPlace(t *testing.T) {
	a := assert.New(t)
	c := New()
	worker := common.NewWorkerUID()

	_, _, ch := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	c.ListingFinished("u", "h", 21, "/home", nil)
	<-ch

	c.ReportFileUploaded("u", "h", 21, "/home", PathUnix, "new.bin", 4096)

	result, item, _ := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "new.bin")
	a.Equal(LookupItemPresent, result)
	a.Equal(int64(4096), item.Size)
}

func TestReportDeleteOnReadyListingRemovesEntry(t *testing.T) {
	a := assert.New(t)
	c := New()
	worker := common.NewWorkerUID()

	c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	c.ListingFinished("u", "h", 21, "/home", []ListingItem{{Name: "gone.txt", Kind: KindFile, Size: 1}})

	c.ReportDelete("u", "h", 21, "/home", PathUnix, "gone.txt")

	result, _, _ := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "gone.txt")
	a.Equal(LookupItemAbsent, result)
}

func TestReportUnknownChangeDropsReadyListing(t *testing.T) {
	a := assert.New(t)
	c := New()
	worker := common.NewWorkerUID()

	c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	c.ListingFinished("u", "h", 21, "/home", []ListingItem{{Name: "a", Kind: KindFile, Size: 1}})

	c.ReportUnknownChange("u", "h", 21, "/home", PathUnix)

	result, _, _ := c.GetListing("u", "h", 21, "/home", PathUnix, worker, "a")
	a.Equal(LookupMustFetch, result)
}

func TestInvalidateForUploadIsAliasForReportUnknownChange(t *testing.T) {
	a := assert.New(t)
	c := New()
	worker := common.NewWorkerUID()

	c.GetListing("u", "h", 21, "/target", PathUnix, worker, "a")
	c.ListingFinished("u", "h", 21, "/target", []ListingItem{{Name: "a", Kind: KindFile, Size: 1}})

	c.InvalidateForUpload("u", "h", 21, "/target", PathUnix)

	result, _, _ := c.GetListing("u", "h", 21, "/target", PathUnix, worker, "a")
	a.Equal(LookupMustFetch, result)
}
