package roster

import (
	"cmp"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultPageSize is the number of accounts per page.
const DefaultPageSize = 10

// StatusFilter selects accounts by enabled state.
type StatusFilter string

const (
	StatusAll      StatusFilter = ""
	StatusEnabled  StatusFilter = "enabled"
	StatusDisabled StatusFilter = "disabled"
)

// AdminFilter selects accounts by admin flag.
type AdminFilter string

const (
	AdminAll      AdminFilter = ""
	AdminOnly     AdminFilter = "admin"
	AdminNonAdmin AdminFilter = "nonAdmin"
)

// wire returns the listing endpoint's value for the filter.
func (f AdminFilter) wire() string {
	if f == AdminNonAdmin {
		return "user"
	}
	return string(f)
}

// SortField is an account field the roster can be ordered by.
type SortField string

const (
	SortNone       SortField = ""
	SortUsername   SortField = "username"
	SortID         SortField = "user_id"
	SortCreatedAt  SortField = "created_at"
	SortLastUsedAt SortField = "last_used_at"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseStatusFilter parses "all", "enabled" or "disabled".
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return StatusAll, nil
	case "enabled":
		return StatusEnabled, nil
	case "disabled":
		return StatusDisabled, nil
	}
	return StatusAll, fmt.Errorf("invalid status filter %q (want all, enabled or disabled)", s)
}

// ParseAdminFilter parses "all", "admin" and "nonAdmin" (or "user").
func ParseAdminFilter(s string) (AdminFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return AdminAll, nil
	case "admin":
		return AdminOnly, nil
	case "nonadmin", "non-admin", "user":
		return AdminNonAdmin, nil
	}
	return AdminAll, fmt.Errorf("invalid admin filter %q (want all, admin or nonAdmin)", s)
}

// ParseSortField parses a sort field name. An empty string means no sorting.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case SortNone, SortUsername, SortID, SortCreatedAt, SortLastUsedAt:
		return f, nil
	}
	if strings.EqualFold(s, "id") {
		return SortID, nil
	}
	return SortNone, fmt.Errorf("invalid sort field %q (want username, user_id, created_at or last_used_at)", s)
}

// ParseSortDirection parses "asc" or "desc". An empty string means ascending.
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return SortAsc, nil
	case "desc":
		return SortDesc, nil
	}
	return SortAsc, fmt.Errorf("invalid sort direction %q (want asc or desc)", s)
}

// ViewState holds the search, filter, sort and page parameters of a view.
type ViewState struct {
	Search        string        `json:"search,omitempty"`
	Status        StatusFilter  `json:"status,omitempty"`
	Admin         AdminFilter   `json:"admin_filter,omitempty"`
	SortField     SortField     `json:"sort_by,omitempty"`
	SortDirection SortDirection `json:"sort_dir,omitempty"`
	Page          int           `json:"page"`
	PageSize      int           `json:"page_size"`
}

// Normalized returns vs with defaults applied.
func (vs ViewState) Normalized() ViewState {
	vs.Search = strings.TrimSpace(vs.Search)
	if vs.SortDirection == "" {
		vs.SortDirection = SortAsc
	}
	if vs.Page < 1 {
		vs.Page = 1
	}
	if vs.PageSize <= 0 {
		vs.PageSize = DefaultPageSize
	}
	return vs
}

// Query returns the listing endpoint parameters for vs.
func (vs ViewState) Query() url.Values {
	vs = vs.Normalized()
	q := url.Values{}
	if vs.Search != "" {
		q.Set("search", vs.Search)
	}
	if vs.Status != StatusAll {
		q.Set("status", string(vs.Status))
	}
	if vs.Admin != AdminAll {
		q.Set("admin_filter", vs.Admin.wire())
	}
	if vs.SortField != SortNone {
		q.Set("sort_by", string(vs.SortField))
		q.Set("sort_dir", string(vs.SortDirection))
	}
	return q
}

// sameSelection reports whether a and b select and order the same accounts.
func sameSelection(a, b ViewState) bool {
	a, b = a.Normalized(), b.Normalized()
	return a.Search == b.Search && a.Status == b.Status && a.Admin == b.Admin &&
		a.SortField == b.SortField && a.SortDirection == b.SortDirection
}

// Page is one page of a derived view.
type Page struct {
	Accounts []Account `json:"users"`
	// Number is the page actually shown after clamping.
	Number     int `json:"page"`
	TotalPages int `json:"total_pages"`
	// Total is the number of accounts matching the view.
	Total    int `json:"total"`
	PageSize int `json:"page_size"`
}

// ComputeView filters, sorts and paginates accounts. It never modifies its
// input and is deterministic: ties keep their input order.
func ComputeView(accounts []Account, vs ViewState) Page {
	vs = vs.Normalized()

	selected := filter(accounts, vs)
	if vs.SortField != SortNone {
		slices.SortStableFunc(selected, comparator(vs.SortField, vs.SortDirection))
	}
	return Paginate(selected, vs.Page, vs.PageSize)
}

// Paginate slices accounts to one page, clamping number into [1, TotalPages].
func Paginate(accounts []Account, number, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(accounts)
	totalPages := max(1, (total+size-1)/size)
	number = min(max(number, 1), totalPages)

	start := (number - 1) * size
	end := min(start+size, total)

	page := make([]Account, end-start)
	copy(page, accounts[start:end])

	return Page{
		Accounts:   page,
		Number:     number,
		TotalPages: totalPages,
		Total:      total,
		PageSize:   size,
	}
}

func filter(accounts []Account, vs ViewState) []Account {
	// A Caser is stateful and must not be shared.
	fold := cases.Fold()
	term := fold.String(vs.Search)

	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if term != "" &&
			!strings.Contains(fold.String(a.Username), term) &&
			!strings.Contains(strconv.FormatInt(a.ID, 10), vs.Search) {
			continue
		}
		switch vs.Status {
		case StatusEnabled:
			if !a.Enabled {
				continue
			}
		case StatusDisabled:
			if a.Enabled {
				continue
			}
		}
		switch vs.Admin {
		case AdminOnly:
			if !a.IsAdmin {
				continue
			}
		case AdminNonAdmin:
			if a.IsAdmin {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func comparator(field SortField, dir SortDirection) func(a, b Account) int {
	var base func(a, b Account) int
	switch field {
	case SortUsername:
		fold := cases.Fold()
		base = func(a, b Account) int {
			if c := strings.Compare(fold.String(a.Username), fold.String(b.Username)); c != 0 {
				return c
			}
			return strings.Compare(a.Username, b.Username)
		}
	case SortID:
		base = func(a, b Account) int { return cmp.Compare(a.ID, b.ID) }
	case SortCreatedAt:
		base = func(a, b Account) int { return a.CreatedAt.Compare(b.CreatedAt.Time) }
	case SortLastUsedAt:
		// Never-used accounts sort as if used infinitely late.
		base = func(a, b Account) int {
			switch {
			case a.LastUsedAt == nil && b.LastUsedAt == nil:
				return 0
			case a.LastUsedAt == nil:
				return 1
			case b.LastUsedAt == nil:
				return -1
			}
			return a.LastUsedAt.Compare(b.LastUsedAt.Time)
		}
	default:
		return func(a, b Account) int { return 0 }
	}

	if dir == SortDesc {
		return func(a, b Account) int { return base(b, a) }
	}
	return base
}
