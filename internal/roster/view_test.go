package roster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) Timestamp {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return Timestamp{t}
}

func tsp(s string) *Timestamp {
	t := ts(s)
	return &t
}

func ids(accounts []Account) []int64 {
	out := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ID)
	}
	return out
}

func sampleRoster() []Account {
	return []Account{
		{ID: 1, Username: "alice", Enabled: true, IsAdmin: true, CreatedAt: ts("2024-01-03T00:00:00Z"), LastUsedAt: tsp("2024-02-01T00:00:00Z")},
		{ID: 2, Username: "Bob", Enabled: false, DisableReason: "spam", CreatedAt: ts("2024-01-01T00:00:00Z")},
		{ID: 12, Username: "carol", Enabled: true, CreatedAt: ts("2024-01-02T00:00:00Z"), LastUsedAt: tsp("2024-01-15T00:00:00Z")},
		{ID: 21, Username: "bob", Enabled: true, CreatedAt: ts("2024-01-02T00:00:00Z")},
	}
}

func TestComputeView_StatusDisabled(t *testing.T) {
	snapshot := []Account{
		{ID: 1, Enabled: true},
		{ID: 2, Enabled: false, DisableReason: "spam"},
	}

	page := ComputeView(snapshot, ViewState{Status: StatusDisabled})
	require.Len(t, page.Accounts, 1)
	assert.Equal(t, int64(2), page.Accounts[0].ID)
	assert.Equal(t, "spam", page.Accounts[0].DisableReason)
	assert.Equal(t, 1, page.Total)
}

func TestComputeView_IsPureAndDeterministic(t *testing.T) {
	roster := sampleRoster()
	before := sampleRoster()
	vs := ViewState{Search: "b", SortField: SortUsername, SortDirection: SortDesc}

	first := ComputeView(roster, vs)
	second := ComputeView(roster, vs)
	assert.Equal(t, first, second)
	assert.Equal(t, before, roster, "input must not be modified")

	first.Accounts[0].Username = "mutated"
	assert.Equal(t, before, roster, "returned page must not alias the input")
}

func TestComputeView_Search(t *testing.T) {
	roster := sampleRoster()

	tests := []struct {
		search string
		want   []int64
	}{
		{"BOB", []int64{2, 21}},
		{"  ali ", []int64{1}},
		{"1", []int64{1, 12, 21}},
		{"21", []int64{21}},
		{"zed", []int64{}},
		{"", []int64{1, 2, 12, 21}},
	}
	for _, tc := range tests {
		t.Run(tc.search, func(t *testing.T) {
			page := ComputeView(roster, ViewState{Search: tc.search})
			assert.Equal(t, tc.want, ids(page.Accounts))
		})
	}
}

func TestComputeView_AdminFilter(t *testing.T) {
	roster := sampleRoster()
	assert.Equal(t, []int64{1}, ids(ComputeView(roster, ViewState{Admin: AdminOnly}).Accounts))
	assert.Equal(t, []int64{2, 12, 21}, ids(ComputeView(roster, ViewState{Admin: AdminNonAdmin}).Accounts))
	assert.Equal(t, []int64{12, 21}, ids(ComputeView(roster, ViewState{Admin: AdminNonAdmin, Status: StatusEnabled}).Accounts))
}

func TestComputeView_StableSort(t *testing.T) {
	roster := sampleRoster()

	// carol and bob share created_at
	asc := ComputeView(roster, ViewState{SortField: SortCreatedAt})
	assert.Equal(t, []int64{2, 12, 21, 1}, ids(asc.Accounts))

	desc := ComputeView(roster, ViewState{SortField: SortCreatedAt, SortDirection: SortDesc})
	assert.Equal(t, []int64{1, 12, 21, 2}, ids(desc.Accounts), "ties keep snapshot order in both directions")

	for i := 0; i < 5; i++ {
		again := ComputeView(roster, ViewState{SortField: SortCreatedAt})
		assert.Equal(t, ids(asc.Accounts), ids(again.Accounts))
	}
}

func TestComputeView_SortFields(t *testing.T) {
	roster := sampleRoster()

	assert.Equal(t, []int64{1, 2, 21, 12}, ids(ComputeView(roster, ViewState{SortField: SortUsername}).Accounts))
	assert.Equal(t, []int64{21, 12, 2, 1}, ids(ComputeView(roster, ViewState{SortField: SortID, SortDirection: SortDesc}).Accounts))

	// never-used accounts come last ascending and first descending
	assert.Equal(t, []int64{12, 1, 2, 21}, ids(ComputeView(roster, ViewState{SortField: SortLastUsedAt}).Accounts))
	assert.Equal(t, []int64{2, 21, 1, 12}, ids(ComputeView(roster, ViewState{SortField: SortLastUsedAt, SortDirection: SortDesc}).Accounts))

	// no sort field keeps server order
	assert.Equal(t, []int64{1, 2, 12, 21}, ids(ComputeView(roster, ViewState{}).Accounts))
}

func TestPaginate(t *testing.T) {
	roster := make([]Account, 23)
	for i := range roster {
		roster[i] = Account{ID: int64(i + 1)}
	}

	page := ComputeView(roster, ViewState{Page: 3})
	assert.Equal(t, 3, page.Number)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 23, page.Total)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, []int64{21, 22, 23}, ids(page.Accounts))

	clamped := ComputeView(roster, ViewState{Page: 9})
	assert.Equal(t, 3, clamped.Number)

	low := ComputeView(roster, ViewState{Page: -1, PageSize: 5})
	assert.Equal(t, 1, low.Number)
	assert.Equal(t, 5, low.TotalPages)
	assert.Len(t, low.Accounts, 5)

	empty := ComputeView(nil, ViewState{Page: 4})
	assert.Equal(t, 1, empty.Number)
	assert.Equal(t, 1, empty.TotalPages)
	assert.NotNil(t, empty.Accounts)
	assert.Empty(t, empty.Accounts)
}

func TestViewState_Query(t *testing.T) {
	q := ViewState{
		Search:    " alice ",
		Status:    StatusDisabled,
		Admin:     AdminNonAdmin,
		SortField: SortLastUsedAt,
	}.Query()

	assert.Equal(t, "alice", q.Get("search"))
	assert.Equal(t, "disabled", q.Get("status"))
	assert.Equal(t, "user", q.Get("admin_filter"))
	assert.Equal(t, "last_used_at", q.Get("sort_by"))
	assert.Equal(t, "asc", q.Get("sort_dir"))

	assert.Empty(t, ViewState{}.Query().Encode())
}

func TestParseFilters(t *testing.T) {
	s, err := ParseStatusFilter("Disabled")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, s)

	a, err := ParseAdminFilter("nonAdmin")
	require.NoError(t, err)
	assert.Equal(t, AdminNonAdmin, a)

	f, err := ParseSortField("id")
	require.NoError(t, err)
	assert.Equal(t, SortID, f)

	d, err := ParseSortDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, SortDesc, d)

	_, err = ParseStatusFilter("sleeping")
	assert.Error(t, err)
	_, err = ParseAdminFilter("root")
	assert.Error(t, err)
	_, err = ParseSortField("email")
	assert.Error(t, err)
	_, err = ParseSortDirection("sideways")
	assert.Error(t, err)
}

func TestAccount_DecodesServerTimestamps(t *testing.T) {
	raw := `{"users":[
		{"user_id":7,"username":"dora","enabled":false,"disable_reason":"abuse","is_admin":false,
		 "created_at":"2024-03-01T10:20:30.123456","last_used_at":null},
		{"user_id":8,"username":"eve","enabled":true,"disable_reason":null,"is_admin":true,
		 "created_at":"2024-03-01T10:20:30Z","last_used_at":"2024-03-02 08:00:00"}
	]}`

	var resp struct {
		Users []Account `json:"users"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.Len(t, resp.Users, 2)

	dora := resp.Users[0]
	assert.Equal(t, "abuse", dora.DisableReason)
	assert.Nil(t, dora.LastUsedAt)
	assert.Equal(t, 123456000, dora.CreatedAt.Nanosecond())
	assert.Equal(t, "disabled", dora.Status())
	assert.Equal(t, "user", dora.Role())

	eve := resp.Users[1]
	require.NotNil(t, eve.LastUsedAt)
	assert.Equal(t, 8, eve.LastUsedAt.Hour())
	assert.Equal(t, "admin", eve.Role())

	out, err := json.Marshal(eve)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"created_at":"2024-03-01T10:20:30Z"`)

	var bad Account
	assert.Error(t, json.Unmarshal([]byte(`{"created_at":"yesterday"}`), &bad))
}
