package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"giftmatch/internal/blob"
	"giftmatch/internal/core"

	"github.com/google/uuid"
)

// Object names written under each export directory.
const (
	ReportObject = "report.json"
	GraphObject  = "graph.json"
)

// Bundle is what one export writes.
type Bundle struct {
	TableID string
	Report  Document
	Graph   core.Graph
}

// Manifest describes a finished export.
type Manifest struct {
	ID        string      `json:"id"`
	Dir       string      `json:"dir"`
	CreatedAt time.Time   `json:"created_at"`
	Objects   []blob.Info `json:"objects"`
}

// Exporter writes bundles to a blob store. Every export lands in a fresh
// directory named by timestamp and id, so earlier exports are never touched.
type Exporter struct {
	store blob.Store
	now   func() time.Time
	newID func() string
}

// ExporterOption customises an Exporter.
type ExporterOption func(*Exporter)

// WithExportClock overrides the timestamp source.
func WithExportClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithExportIDs overrides the export id generator.
func WithExportIDs(newID func() string) ExporterOption {
	return func(e *Exporter) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// NewExporter constructs an exporter over store.
func NewExporter(store blob.Store, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes b as report.json and graph.json under
// prefix/<timestamp>-<id>/.
func (e *Exporter) Export(ctx context.Context, prefix string, b Bundle) (Manifest, error) {
	created := e.now().UTC()
	id := e.newID()
	dir := created.Format("20060102T150405Z") + "-" + id
	if p := strings.Trim(prefix, "/"); p != "" {
		dir = path.Join(p, dir)
	}
	m := Manifest{ID: id, Dir: dir, CreatedAt: created}
	meta := map[string]string{"export-id": id}
	if b.TableID != "" {
		meta["table-id"] = b.TableID
	}
	objects := []struct {
		name    string
		payload any
	}{
		{ReportObject, b.Report},
		{GraphObject, b.Graph},
	}
	for _, obj := range objects {
		data, err := json.MarshalIndent(obj.payload, "", "  ")
		if err != nil {
			return Manifest{}, fmt.Errorf("encode %s: %w", obj.name, err)
		}
		info, err := e.store.Put(ctx, path.Join(dir, obj.name), bytes.NewReader(data), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    meta,
		})
		if err != nil {
			return Manifest{}, fmt.Errorf("export %s: %w", obj.name, err)
		}
		m.Objects = append(m.Objects, info)
	}
	return m, nil
}

// Exports lists the export directories under prefix, oldest first.
func (e *Exporter) Exports(ctx context.Context, prefix string) ([]string, error) {
	p := strings.Trim(prefix, "/")
	if p != "" {
		p += "/"
	}
	infos, err := e.store.List(ctx, p)
	if err != nil {
		return nil, err
	}
	var dirs []string
	seen := make(map[string]bool)
	for _, info := range infos {
		if path.Base(info.Key) != ReportObject {
			continue
		}
		dir := path.Dir(info.Key)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
