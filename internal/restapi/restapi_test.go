package restapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDiscovery(t *testing.T) {
	t.Parallel()

	page, err := DecodeDiscovery([]byte(`{"content":[{"id":"A"}],"page":{"totalPages":3,"totalElements":250}}`))
	require.NoError(t, err)
	require.NotNil(t, page.Page)
	assert.Equal(t, 3, *page.Page.TotalPages)
	assert.Equal(t, 250, *page.Page.TotalElements)
	assert.Len(t, page.Content, 1)
}

func TestDecodeDiscoveryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want error
	}{
		{"no page block", `{"content":[]}`, ErrMissingField},
		{"no total pages", `{"page":{"totalElements":3}}`, ErrMissingField},
		{"negative pages", `{"page":{"totalPages":-1}}`, ErrMalformed},
		{"not an object", `[1,2,3]`, ErrMalformed},
		{"wrong type", `{"page":{"totalPages":"three"}}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeDiscovery([]byte(tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeDiscoveryZeroPages(t *testing.T) {
	t.Parallel()

	page, err := DecodeDiscovery([]byte(`{"content":[],"page":{"totalPages":0,"totalElements":0}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, *page.Page.TotalPages)
}

func TestDecodeContent(t *testing.T) {
	t.Parallel()

	summaries, err := DecodeContent([]byte(`{"content":[{"id":"A"},{"id":"B","links":[{"rel":"self","href":"https://x/b"}]}]}`))
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "A", summaries[0].ID)
	assert.Equal(t, "https://x/b", summaries[1].Links[0].Href)

	empty, err := DecodeContent([]byte(`{"content":[]}`))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecodeContent([]byte(`{"page":{"totalPages":1}}`))
	require.ErrorIs(t, err, ErrMissingField)
}

func TestSummaryFirstHref(t *testing.T) {
	t.Parallel()

	href, err := Summary{ID: "rc", Links: []Link{{Rel: "self", Href: " https://x/rc "}, {Href: "https://x/other"}}}.FirstHref()
	require.NoError(t, err)
	assert.Equal(t, "https://x/rc", href)

	_, err = Summary{ID: "rc"}.FirstHref()
	require.ErrorIs(t, err, ErrMissingField)

	_, err = Summary{ID: "rc", Links: []Link{{Rel: "self"}}}.FirstHref()
	require.ErrorIs(t, err, ErrMissingField)
}

func TestDecodeHeader(t *testing.T) {
	t.Parallel()

	h, err := DecodeHeader([]byte(`{"id":"V1","modificationDate":"2023-05-06T07:08:09.123456","status":"DONE"}`))
	require.NoError(t, err)
	assert.Equal(t, "V1", h.ID)
	ts, err := h.ModifiedAt()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 6, 7, 8, 9, 123456000, time.UTC), ts)

	_, err = DecodeHeader([]byte(`{"status":"DONE"}`))
	require.ErrorIs(t, err, ErrMissingField)

	_, err = DecodeHeader([]byte(`{"id":42}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestHeaderModifiedAt(t *testing.T) {
	t.Parallel()

	str := func(s string) *string { return &s }
	tests := []struct {
		name    string
		date    *string
		want    time.Time
		wantErr error
	}{
		{"no fraction", str("2023-05-06T07:08:09"), time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC), nil},
		{"millis", str("2023-05-06T07:08:09.5"), time.Date(2023, 5, 6, 7, 8, 9, 500000000, time.UTC), nil},
		{"rfc3339", str("2023-05-06T09:08:09+02:00"), time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC), nil},
		{"missing", nil, time.Time{}, ErrMissingField},
		{"blank", str(" "), time.Time{}, ErrMissingField},
		{"garbage", str("yesterday"), time.Time{}, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Header{ID: "V", ModificationDate: tt.date}.ModifiedAt()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestEndpoints(t *testing.T) {
	t.Parallel()

	e := NewEndpoints("https://api.example.com/ws/", 100)
	page := 2
	assert.Equal(t, "https://api.example.com/ws/ping", e.Ping())
	assert.Equal(t, "https://api.example.com/ws/index/property-units?size=100", e.PropertyUnitsIndex(nil))
	assert.Equal(t, "https://api.example.com/ws/index/property-units?page=2&size=100", e.PropertyUnitsIndex(&page))
	assert.Equal(t, "https://api.example.com/ws/property-units/PU%2F1/ivm-rental-contracts", e.RentalContracts("PU/1"))
	assert.Equal(t,
		"https://api.example.com/ws/index/valuations?includeNonMasterValuations=true&method=DCF&page=2&project=123-456&size=100",
		e.ValuationsIndex("123-456", &page),
	)
	assert.Equal(t, "https://api.example.com/ws/valuations/V1?expand=areaUnitList", e.Valuation("V1"))
}
