package restapi

import (
	"net/url"
	"strconv"
	"strings"
)

// Endpoints builds request URLs relative to the API base URL.
type Endpoints struct {
	base     string
	pageSize int
}

// NewEndpoints returns an Endpoints rooted at baseURL.
func NewEndpoints(baseURL string, pageSize int) Endpoints {
	return Endpoints{base: strings.TrimRight(baseURL, "/"), pageSize: pageSize}
}

// Ping is the liveness endpoint.
func (e Endpoints) Ping() string {
	return e.base + "/ping"
}

// PropertyUnitsIndex lists property units. A nil page asks for the first page
// without an explicit index, which is how the page count is discovered.
func (e Endpoints) PropertyUnitsIndex(page *int) string {
	q := url.Values{}
	q.Set("size", strconv.Itoa(e.pageSize))
	setPage(q, page)
	return e.base + "/index/property-units?" + q.Encode()
}

// RentalContracts lists the rental contracts of one property unit.
func (e Endpoints) RentalContracts(propertyUnitID string) string {
	return e.base + "/property-units/" + url.PathEscape(propertyUnitID) + "/ivm-rental-contracts"
}

// ValuationsIndex lists DCF valuations of a project, master and non-master.
func (e Endpoints) ValuationsIndex(project string, page *int) string {
	q := url.Values{}
	q.Set("project", project)
	q.Set("includeNonMasterValuations", "true")
	q.Set("method", "DCF")
	q.Set("size", strconv.Itoa(e.pageSize))
	setPage(q, page)
	return e.base + "/index/valuations?" + q.Encode()
}

// Valuation returns one valuation with its area units expanded.
func (e Endpoints) Valuation(id string) string {
	return e.base + "/valuations/" + url.PathEscape(id) + "?expand=areaUnitList"
}

func setPage(q url.Values, page *int) {
	if page != nil {
		q.Set("page", strconv.Itoa(*page))
	}
}
