package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adscout/adscout-cli/internal/model"
	"github.com/adscout/adscout-cli/internal/scrape"
	"github.com/adscout/adscout-cli/pkg/sscom"
)

func advertRow(href, img, description, typ, year, price string) string {
	return fmt.Sprintf(`<tr>
		<td><input type="checkbox"></td>
		<td><a href="%s"><img src="%s"></a></td>
		<td><a href="%s">%s</a></td>
		<td>%s</td>
		<td>%s</td>
		<td>1.9D</td>
		<td>214 tyk.</td>
		<td>%s</td>
	</tr>`, href, img, href, description, typ, year, price)
}

func listingsPage(rows ...string) string {
	page := "<html><body><table>"
	for _, r := range rows {
		page += r
	}
	return page + "</table></body></html>"
}

func newTestReconciler(st *mockStore, site *mockSite, n *mockNotifier) *Reconciler {
	return New(st, site, scrape.NewParser(), n, sscom.Filters{})
}

// expectRunBookkeeping wires the scrape-run record calls every pass makes.
func expectRunBookkeeping(st *mockStore) {
	st.On("CreateScrapeRun", mock.Anything).Return("run-1", nil)
	st.On("CompleteScrapeRun", mock.Anything, "run-1", mock.Anything).Return(nil)
}

func TestRun_InsertsNotifiesAndExpires(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	page := listingsPage(
		advertRow("/msg/a.html", "/img/a.jpg", "Audi A4", "Jelgava", "2012", "4 200 €"),
		advertRow("/msg/b.html", "/img/b.jpg", "BMW 320", "Rīga", "2016", "9 900 €"),
	)
	site.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)

	expectRunBookkeeping(st)
	st.On("FindActiveID", mock.Anything, "Audi A4", "Jelgava", "2012").Return(int64(0), false, nil)
	st.On("FindActiveID", mock.Anything, "BMW 320", "Rīga", "2016").Return(int64(0), false, nil)
	st.On("InsertAdvert", mock.Anything, mock.MatchedBy(func(c model.Candidate) bool {
		return c.Description == "Audi A4"
	})).Return(int64(1), nil)
	st.On("InsertAdvert", mock.Anything, mock.MatchedBy(func(c model.Candidate) bool {
		return c.Description == "BMW 320"
	})).Return(int64(2), nil)
	st.On("ExpireAllExcept", mock.Anything, []int64{1, 2}).Return(int64(0), nil)
	n.On("NotifyNewAdvert", mock.Anything, mock.Anything).Return()

	result, err := newTestReconciler(st, site, n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Reaffirmed)
	n.AssertNumberOfCalls(t, "NotifyNewAdvert", 2)
	st.AssertExpectations(t)
}

func TestRun_ReaffirmedAdvertsAreNotReinsertedOrNotified(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	page := listingsPage(advertRow("/msg/a.html", "/img/a.jpg", "Audi A4", "Jelgava", "2012", "4 200 €"))
	site.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)

	expectRunBookkeeping(st)
	st.On("FindActiveID", mock.Anything, "Audi A4", "Jelgava", "2012").Return(int64(5), true, nil)
	st.On("ExpireAllExcept", mock.Anything, []int64{5}).Return(int64(0), nil)

	result, err := newTestReconciler(st, site, n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Reaffirmed)
	st.AssertNotCalled(t, "InsertAdvert", mock.Anything, mock.Anything)
	n.AssertNotCalled(t, "NotifyNewAdvert", mock.Anything, mock.Anything)
	st.AssertExpectations(t)
}

func TestRun_SecondPassIsIdempotent(t *testing.T) {
	page := listingsPage(advertRow("/msg/a.html", "/img/a.jpg", "Audi A4", "Jelgava", "2012", "4 200 €"))

	// First pass inserts.
	st1 := &mockStore{}
	site1 := &mockSite{}
	n1 := &mockNotifier{}
	site1.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)
	expectRunBookkeeping(st1)
	st1.On("FindActiveID", mock.Anything, "Audi A4", "Jelgava", "2012").Return(int64(0), false, nil)
	st1.On("InsertAdvert", mock.Anything, mock.Anything).Return(int64(9), nil)
	st1.On("ExpireAllExcept", mock.Anything, []int64{9}).Return(int64(0), nil)
	n1.On("NotifyNewAdvert", mock.Anything, mock.Anything).Return()

	first, err := newTestReconciler(st1, site1, n1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	// Second pass over the unchanged page reaffirms the same id.
	st2 := &mockStore{}
	site2 := &mockSite{}
	n2 := &mockNotifier{}
	site2.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)
	expectRunBookkeeping(st2)
	st2.On("FindActiveID", mock.Anything, "Audi A4", "Jelgava", "2012").Return(int64(9), true, nil)
	st2.On("ExpireAllExcept", mock.Anything, []int64{9}).Return(int64(0), nil)

	second, err := newTestReconciler(st2, site2, n2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Reaffirmed)
	st2.AssertNotCalled(t, "InsertAdvert", mock.Anything, mock.Anything)
	n2.AssertNotCalled(t, "NotifyNewAdvert", mock.Anything, mock.Anything)
}

func TestRun_ExpiresAdvertsAbsentFromPage(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	// Prior state holds A (1), B (2), C (3); this page reaffirms only A and C.
	page := listingsPage(
		advertRow("/msg/a.html", "/img/a.jpg", "A", "Rīga", "2015", "100"),
		advertRow("/msg/c.html", "/img/c.jpg", "C", "Rīga", "2015", "300"),
	)
	site.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)

	expectRunBookkeeping(st)
	st.On("FindActiveID", mock.Anything, "A", "Rīga", "2015").Return(int64(1), true, nil)
	st.On("FindActiveID", mock.Anything, "C", "Rīga", "2015").Return(int64(3), true, nil)
	st.On("ExpireAllExcept", mock.Anything, []int64{1, 3}).Return(int64(1), nil)

	result, err := newTestReconciler(st, site, n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Expired)
	st.AssertExpectations(t)
}

func TestRun_EmptySurvivorSetSkipsExpiry(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	// Page with no advert-shaped rows: a transient empty scrape must not
	// mass-expire the existing records.
	site.On("FetchFiltered", mock.Anything, mock.Anything).
		Return("<html><body><table><tr><td>maintenance</td></tr></table></body></html>", nil)
	expectRunBookkeeping(st)

	result, err := newTestReconciler(st, site, n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Expired)
	st.AssertNotCalled(t, "ExpireAllExcept", mock.Anything, mock.Anything)
}

func TestRun_FetchErrorAbortsAndFailsRun(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	site.On("FetchFiltered", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))
	st.On("CreateScrapeRun", mock.Anything).Return("run-1", nil)
	st.On("FailScrapeRun", mock.Anything, "run-1", mock.Anything).Return(nil)

	_, err := newTestReconciler(st, site, n).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch listings")

	st.AssertCalled(t, "FailScrapeRun", mock.Anything, "run-1", mock.Anything)
	st.AssertNotCalled(t, "ExpireAllExcept", mock.Anything, mock.Anything)
	n.AssertNotCalled(t, "NotifyNewAdvert", mock.Anything, mock.Anything)
}

func TestRun_PersistenceErrorAbortsBeforeExpiry(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	page := listingsPage(advertRow("/msg/a.html", "/img/a.jpg", "A", "Rīga", "2015", "100"))
	site.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)

	st.On("CreateScrapeRun", mock.Anything).Return("run-1", nil)
	st.On("FindActiveID", mock.Anything, "A", "Rīga", "2015").Return(int64(0), false, nil)
	st.On("InsertAdvert", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))
	st.On("FailScrapeRun", mock.Anything, "run-1", mock.Anything).Return(nil)

	_, err := newTestReconciler(st, site, n).Run(context.Background())
	require.Error(t, err)

	st.AssertNotCalled(t, "ExpireAllExcept", mock.Anything, mock.Anything)
}

func TestRun_RunRecordFailureIsNotFatal(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	page := listingsPage(advertRow("/msg/a.html", "/img/a.jpg", "A", "Rīga", "2015", "100"))
	site.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)

	st.On("CreateScrapeRun", mock.Anything).Return("", errors.New("runs table missing"))
	st.On("FindActiveID", mock.Anything, "A", "Rīga", "2015").Return(int64(1), true, nil)
	st.On("ExpireAllExcept", mock.Anything, []int64{1}).Return(int64(0), nil)

	result, err := newTestReconciler(st, site, n).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reaffirmed)
	st.AssertNotCalled(t, "CompleteScrapeRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_EndToEndExample(t *testing.T) {
	st := &mockStore{}
	site := &mockSite{}
	n := &mockNotifier{}

	page := listingsPage(advertRow("/msg/x.html", "/img/x.jpg", "VW Golf", "Rīga", "2015", "5 500 €"))
	site.On("FetchFiltered", mock.Anything, mock.Anything).Return(page, nil)

	expectRunBookkeeping(st)
	st.On("FindActiveID", mock.Anything, "VW Golf", "Rīga", "2015").Return(int64(0), false, nil)

	var inserted model.Candidate
	st.On("InsertAdvert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			inserted = args.Get(1).(model.Candidate)
		}).
		Return(int64(1), nil)
	st.On("ExpireAllExcept", mock.Anything, []int64{1}).Return(int64(0), nil)
	n.On("NotifyNewAdvert", mock.Anything, mock.Anything).Return()

	result, err := newTestReconciler(st, site, n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, model.Candidate{
		URL:         "/msg/x.html",
		ImageURL:    "/img/x.jpg",
		Description: "VW Golf",
		Type:        "Rīga",
		Year:        "2015",
		Price:       "5500",
	}, inserted)
	n.AssertNumberOfCalls(t, "NotifyNewAdvert", 1)
}
