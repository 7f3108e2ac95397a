package httpclient

import "testing"

func TestParseContentRange(t *testing.T) {
	cases := []struct {
		in      string
		want    parsedContentRange
		wantErr bool
	}{
		{in: "bytes 0-999/1000", want: parsedContentRange{Start: 0, End: 1000, Total: 1000, TotalKnown: true}},
		{in: "bytes 500-999/2000", want: parsedContentRange{Start: 500, End: 1000, Total: 2000, TotalKnown: true}},
		{in: "bytes */2000", want: parsedContentRange{Total: 2000, TotalKnown: true, Unsatisfied: true}},
		{in: "bytes 0-99/*", want: parsedContentRange{Start: 0, End: 100}},
		{in: "bogus", wantErr: true},
		{in: "bytes 0-99", wantErr: true},
		{in: "bytes x-99/100", wantErr: true},
	}
	for _, c := range cases {
		got, err := parseContentRange(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseContentRange(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseContentRange(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseContentRange(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestFormatRangeHeader(t *testing.T) {
	cases := []struct {
		start, end uint64
		want       string
	}{
		{0, 0, "bytes=0-"},
		{1000, 0, "bytes=1000-"},
		{0, 500, "bytes=0-499"},
		{500, 1500, "bytes=500-1499"},
	}
	for _, c := range cases {
		if got := formatRangeHeader(c.start, c.end); got != c.want {
			t.Errorf("formatRangeHeader(%d, %d) = %q, want %q", c.start, c.end, got, c.want)
		}
	}
}
