// Package restapi models the responses of the property management REST API
// and builds its request URLs.
//
// The listing endpoints page with `size` and `page` and answer with a
// PageResult. Decoders return ErrMissingField instead of zero values when a
// field the pipeline depends on is absent.
package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingField reports that a response lacks a field the pipeline reads.
var ErrMissingField = errors.New("missing field")

// ErrMalformed reports a body that is JSON but not of the expected shape.
var ErrMalformed = errors.New("malformed response")

// ModificationLayout is the timestamp layout of modificationDate.
const ModificationLayout = "2006-01-02T15:04:05.999999"

// PageInfo is the paging block of a listing response.
type PageInfo struct {
	TotalPages    *int `json:"totalPages"`
	TotalElements *int `json:"totalElements"`
}

// PageResult is one page of a listing endpoint.
type PageResult struct {
	Content []Summary `json:"content"`
	Page    *PageInfo `json:"page"`
}

// Link is one entry of a HAL-style links array.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Summary is the listing representation of a resource.
type Summary struct {
	ID    string `json:"id"`
	Links []Link `json:"links"`
}

// FirstHref returns the href of the first link.
func (s Summary) FirstHref() (string, error) {
	if len(s.Links) == 0 {
		return "", fmt.Errorf("%w: links[0] of %q", ErrMissingField, s.ID)
	}
	href := strings.TrimSpace(s.Links[0].Href)
	if href == "" {
		return "", fmt.Errorf("%w: links[0].href of %q", ErrMissingField, s.ID)
	}
	return href, nil
}

// DecodeDiscovery decodes a listing response and requires the paging block.
func DecodeDiscovery(body []byte) (PageResult, error) {
	var page PageResult
	if err := json.Unmarshal(body, &page); err != nil {
		return PageResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if page.Page == nil {
		return PageResult{}, fmt.Errorf("%w: page", ErrMissingField)
	}
	if page.Page.TotalPages == nil {
		return PageResult{}, fmt.Errorf("%w: page.totalPages", ErrMissingField)
	}
	if *page.Page.TotalPages < 0 {
		return PageResult{}, fmt.Errorf("%w: negative page.totalPages %d", ErrMalformed, *page.Page.TotalPages)
	}
	return page, nil
}

// DecodeContent decodes a listing response and requires the content array.
func DecodeContent(body []byte) ([]Summary, error) {
	var raw struct {
		Content *[]Summary `json:"content"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Content == nil {
		return nil, fmt.Errorf("%w: content", ErrMissingField)
	}
	return *raw.Content, nil
}

// Header is the part of an entity document the loader reads. The rest of the
// document is stored untouched.
type Header struct {
	ID               string  `json:"id"`
	ModificationDate *string `json:"modificationDate"`
}

// DecodeHeader extracts id and modificationDate from an entity document.
func DecodeHeader(body []byte) (Header, error) {
	var h Header
	if err := json.Unmarshal(body, &h); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(h.ID) == "" {
		return Header{}, fmt.Errorf("%w: id", ErrMissingField)
	}
	return h, nil
}

// ModifiedAt parses modificationDate. Values without a zone are read as UTC.
func (h Header) ModifiedAt() (time.Time, error) {
	if h.ModificationDate == nil || strings.TrimSpace(*h.ModificationDate) == "" {
		return time.Time{}, fmt.Errorf("%w: modificationDate of %q", ErrMissingField, h.ID)
	}
	raw := strings.TrimSpace(*h.ModificationDate)
	if ts, err := time.Parse(ModificationLayout, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: modificationDate %q of %q: %v", ErrMalformed, raw, h.ID, err)
	}
	return ts.UTC(), nil
}
