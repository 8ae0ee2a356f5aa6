package s3

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockBucket is the bucket name NewMock stores objects in.
const MockBucket = "giftmatch-exports"

// MockTransport is an in-memory http.RoundTripper speaking the subset of the
// S3 REST API the Store uses (path-style Head, Get, Put, Delete and
// ListObjectsV2). It lets packages outside this one exercise the S3 driver
// without network access.
type MockTransport struct {
	mu      sync.Mutex
	objects map[string]mockObject
	// PageSize bounds ListObjectsV2 pages; zero means 1000.
	PageSize int
	// Requests counts round trips by method.
	Requests map[string]int
}

type mockObject struct {
	body        []byte
	contentType string
	metadata    http.Header
	modified    time.Time
}

// NewMockTransport returns an empty transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{objects: make(map[string]mockObject), Requests: make(map[string]int)}
}

// NewMock returns a Store wired to a fresh MockTransport with static
// credentials.
func NewMock(ctx context.Context) (*Store, *MockTransport, error) {
	rt := NewMockTransport()
	store, err := New(ctx, Config{
		Region:          DefaultRegion,
		Bucket:          MockBucket,
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIAMOCK",
		SecretAccessKey: "mock-secret",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: rt},
	})
	if err != nil {
		return nil, nil, err
	}
	return store, rt, nil
}

// Keys returns the stored object keys in order.
func (m *MockTransport) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[req.Method]++

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	query := req.URL.Query()
	switch {
	case req.Method == http.MethodGet && query.Get("list-type") == "2":
		return m.list(query.Get("prefix"), query.Get("continuation-token")), nil
	case req.Method == http.MethodHead:
		obj, ok := m.objects[key]
		if !ok {
			return response(http.StatusNotFound, nil, nil), nil
		}
		return response(http.StatusOK, obj.headers(), nil), nil
	case req.Method == http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			return response(http.StatusNotFound, xmlHeader(), errorBody("NoSuchKey")), nil
		}
		return response(http.StatusOK, obj.headers(), obj.body), nil
	case req.Method == http.MethodPut:
		if _, exists := m.objects[key]; exists && req.Header.Get("If-None-Match") == "*" {
			return response(http.StatusPreconditionFailed, xmlHeader(), errorBody("PreconditionFailed")), nil
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") || req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			if body, err = decodeChunked(body); err != nil {
				return response(http.StatusBadRequest, xmlHeader(), errorBody("IncompleteBody")), nil
			}
		}
		md := http.Header{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				md[name] = values
			}
		}
		m.objects[key] = mockObject{
			body:        body,
			contentType: req.Header.Get("Content-Type"),
			metadata:    md,
			modified:    time.Now().UTC().Truncate(time.Second),
		}
		return response(http.StatusOK, http.Header{"Etag": {`"` + etagFor(body) + `"`}}, nil), nil
	case req.Method == http.MethodDelete:
		delete(m.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func (m *MockTransport) list(prefix, token string) *http.Response {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	size := m.PageSize
	if size <= 0 {
		size = 1000
	}
	truncated := len(keys) > size
	if truncated {
		keys = keys[:size]
	}
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated><KeyCount>%d</KeyCount>", truncated, len(keys))
	if truncated {
		b.WriteString("<NextContinuationToken>")
		_ = xml.EscapeText(&b, []byte(keys[len(keys)-1]))
		b.WriteString("</NextContinuationToken>")
	}
	for _, k := range keys {
		obj := m.objects[k]
		b.WriteString("<Contents><Key>")
		_ = xml.EscapeText(&b, []byte(k))
		fmt.Fprintf(&b, "</Key><Size>%d</Size><ETag>&quot;%s&quot;</ETag><LastModified>%s</LastModified></Contents>",
			len(obj.body), etagFor(obj.body), obj.modified.Format(time.RFC3339))
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, xmlHeader(), b.Bytes())
}

func (o mockObject) headers() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Content-Type":   {o.contentType},
		"Etag":           {`"` + etagFor(o.body) + `"`},
		"Last-Modified":  {o.modified.Format(http.TimeFormat)},
	}
	for name, values := range o.metadata {
		h[name] = values
	}
	return h
}

func etagFor(body []byte) string {
	var sum uint32
	for _, c := range body {
		sum = sum*31 + uint32(c)
	}
	return fmt.Sprintf("%08x", sum)
}

func xmlHeader() http.Header {
	return http.Header{"Content-Type": {"application/xml"}}
}

func errorBody(code string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>` + code + `</Code><Message>` + code + `</Message></Error>`)
}

func response(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeChunked strips aws-chunked framing: "<hex>[;ext]\r\n<data>\r\n"
// repeated until a zero-length chunk, followed by optional trailers.
func decodeChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeHex, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, fmt.Errorf("read chunk: %w", err)
		}
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}
