package httpclient

import (
	"io"
	"net/http"
)

// Kind classifies a response into one of the three ways an origin may
// answer a ranged GET.
type Kind int

const (
	// RangeSupported corresponds to HTTP 206: the body is the requested
	// byte range and Content-Range disclosed its bounds.
	RangeSupported Kind = iota
	// RangeRefused corresponds to HTTP 200: the origin ignored the Range
	// header and the body is the entire resource.
	RangeRefused
	// RangeNotSatisfiable corresponds to HTTP 416: the requested range
	// lies beyond the resource; Content-Range discloses the total size.
	RangeNotSatisfiable
)

// Response is the classified result of a ranged GET.
type Response struct {
	Kind Kind

	// Start, End bound the body for RangeSupported responses.
	Start, End uint64

	// Total is the resource's total size, when disclosed.
	Total      uint64
	TotalKnown bool

	// ContentLength is the body length for RangeRefused responses, or -1
	// if not disclosed.
	ContentLength int64

	Body io.ReadCloser
}

// classify inspects an *http.Response and produces a Response, reading
// and returning the body verbatim as StatusNotOK.Body only on an
// unrecognized status.
func classify(resp *http.Response) (*Response, error) {
	switch resp.StatusCode {
	case http.StatusPartialContent:
		cr := resp.Header.Get("Content-Range")
		if cr == "" {
			resp.Body.Close()
			return nil, ErrMissingRange
		}
		parsed, err := parseContentRange(cr)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		return &Response{
			Kind:          RangeSupported,
			Start:         parsed.Start,
			End:           parsed.End,
			Total:         parsed.Total,
			TotalKnown:    parsed.TotalKnown,
			ContentLength: resp.ContentLength,
			Body:          resp.Body,
		}, nil

	case http.StatusOK:
		return &Response{
			Kind:          RangeRefused,
			ContentLength: resp.ContentLength,
			Body:          resp.Body,
		}, nil

	case http.StatusRequestedRangeNotSatisfiable:
		defer resp.Body.Close()
		var total uint64
		var totalKnown bool
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if parsed, err := parseContentRange(cr); err == nil {
				total, totalKnown = parsed.Total, parsed.TotalKnown
			}
		}
		return &Response{
			Kind:       RangeNotSatisfiable,
			Total:      total,
			TotalKnown: totalKnown,
		}, nil

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusNotOK{Code: resp.StatusCode, Body: body}
	}
}
