package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_ConnectRangeSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=100-" {
			t.Errorf("Range header = %q", got)
		}
		w.Header().Set("Content-Range", "bytes 100-999/1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial-body"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	resp, err := c.Connect(t.Context(), 100, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.Kind != RangeSupported {
		t.Fatalf("Kind = %v, want RangeSupported", resp.Kind)
	}
	if resp.Start != 100 || resp.End != 1000 || !resp.TotalKnown || resp.Total != 1000 {
		t.Fatalf("resp = %+v", resp)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "partial-body" {
		t.Fatalf("body = %q", body)
	}
}

func TestClient_ConnectRangeRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("whole-resource"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	resp, err := c.Connect(t.Context(), 0, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.Kind != RangeRefused {
		t.Fatalf("Kind = %v, want RangeRefused", resp.Kind)
	}
	if resp.ContentLength != 14 {
		t.Fatalf("ContentLength = %d", resp.ContentLength)
	}
}

func TestClient_ConnectRangeNotSatisfiable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes */500")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	resp, err := c.Connect(t.Context(), 10_000, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if resp.Kind != RangeNotSatisfiable || !resp.TotalKnown || resp.Total != 500 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestClient_ConnectStatusNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	_, err := c.Connect(t.Context(), 0, 0)
	var statusErr *StatusNotOK
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusNotOK", err)
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("Code = %d", statusErr.Code)
	}
}

func TestClient_ConnectFollowsRedirectsAndCapturesCookies(t *testing.T) {
	var finalHits int
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		finalHits++
		if got := r.Header.Get("Cookie"); got != "session=abc" {
			t.Errorf("final request Cookie = %q, want session=abc", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer final.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirector.Close()

	c := New(redirector.URL)
	defer c.Close()

	resp, err := c.Connect(t.Context(), 0, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer resp.Body.Close()
	if finalHits != 1 {
		t.Fatalf("finalHits = %d", finalHits)
	}

	if got := c.jar.Header(); got != "session=abc" {
		t.Fatalf("jar after redirect = %q, want exactly one session=abc (no duplicate)", got)
	}
}

func TestClient_ConnectTooManyRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	_, err := c.Connect(t.Context(), 0, 0)
	if err == nil {
		t.Fatal("expected an error from an infinite redirect loop")
	}
}

func TestClient_SendRangeRequestReplaysAccumulatedCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		http.SetCookie(w, &http.Cookie{Name: "tok", Value: fmt.Sprint(len(gotCookie))})
		w.Header().Set("Content-Range", "bytes 0-9/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	resp1, err := c.Connect(t.Context(), 0, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	resp1.Body.Close()

	resp2, err := c.SendRangeRequest(t.Context(), 5, 0)
	if err != nil {
		t.Fatalf("SendRangeRequest: %v", err)
	}
	defer resp2.Body.Close()

	if gotCookie != "tok=0" {
		t.Fatalf("second request Cookie = %q, want tok=0 (from the first response's Set-Cookie)", gotCookie)
	}
}
