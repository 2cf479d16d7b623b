package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/helloharbor/harbor-workers/cap-alerts/shared/archive"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL  = "https://www.fema.gov/api/open/v1/IpawsArchivedAlerts"
	defaultPageSize = 100000
	maxLineBytes    = 64 << 20
	filterTimestamp = "2006-01-02T15:04:05.000Z"
)

// pageCache remembers which segments were already fetched.
type pageCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type segmentUploader interface {
	Upload(ctx context.Context, path string) error
}

// Batch is one calendar year of the requested range. Segments are numbered
// per batch.
type Batch struct {
	Year string
	From time.Time
	To   time.Time
}

// Batches splits [from, to] on year boundaries.
func Batches(from, to time.Time) []Batch {
	from, to = from.UTC(), to.UTC()
	var out []Batch
	for start := from; !start.After(to); {
		yearEnd := time.Date(start.Year(), time.December, 31, 23, 59, 59, 0, time.UTC)
		end := yearEnd
		if to.Before(end) {
			end = to
		}
		out = append(out, Batch{Year: strconv.Itoa(start.Year()), From: start, To: end})
		start = time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return out
}

func (b Batch) filter() string {
	return fmt.Sprintf("sent ge '%s' and sent le '%s'", b.From.Format(filterTimestamp), b.To.Format(filterTimestamp))
}

type Fetcher struct {
	client   *http.Client
	baseURL  string
	outDir   string
	pageSize int
	cache    pageCache
	uploader segmentUploader
	log      log.FieldLogger
}

// Run writes every page of every batch as a segment and returns the number
// of segments written.
func (f *Fetcher) Run(ctx context.Context, from, to time.Time) (int, error) {
	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return 0, err
	}

	var written int
	for _, b := range Batches(from, to) {
		total, err := f.count(ctx, b)
		if err != nil {
			return written, fmt.Errorf("unable to count %s: %w", b.Year, err)
		}
		f.log.WithFields(log.Fields{"year": b.Year, "records": total}).Info("fetching batch")

		for n, skip := 1, 0; skip < total; n, skip = n+1, skip+f.pageSize {
			top := f.pageSize
			if total-skip < top {
				top = total - skip
			}
			name := archive.SegmentName(b.Year, n)
			pageLog := f.log.WithFields(log.Fields{"segment": name, "skip": skip, "top": top})
			key := pageKey(b, n, skip, top)

			if f.cache != nil {
				seen, err := f.cache.Seen(ctx, key)
				if err != nil {
					pageLog.WithError(err).Warn("page cache unavailable, fetching anyway")
				} else if seen {
					pageLog.Info("segment already fetched, skipping")
					continue
				}
			}

			path := filepath.Join(f.outDir, name)
			lines, err := f.fetchPage(ctx, b, skip, top, path)
			if err != nil {
				return written, fmt.Errorf("unable to fetch %s: %w", name, err)
			}
			written++
			pageLog.WithField("lines", lines).Info("wrote segment")

			if f.uploader != nil {
				if err := f.uploader.Upload(ctx, path); err != nil {
					return written, fmt.Errorf("unable to upload %s: %w", name, err)
				}
			}
			if f.cache != nil {
				if err := f.cache.Mark(ctx, key); err != nil {
					pageLog.WithError(err).Warn("unable to record fetched segment")
				}
			}
		}
	}
	return written, nil
}

func pageKey(b Batch, n, skip, top int) string {
	return fmt.Sprintf("cap-alerts:segment:%s:%03d:%s:%s:%d:%d",
		b.Year, n, b.From.Format(filterTimestamp), b.To.Format(filterTimestamp), skip, top)
}

func (f *Fetcher) get(ctx context.Context, params map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL)
	}
	return resp, nil
}

func (f *Fetcher) count(ctx context.Context, b Batch) (int, error) {
	resp, err := f.get(ctx, map[string]string{
		"$filter": b.filter(),
		"$count":  "true",
		"$select": "id",
		"$top":    "1",
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	count := gjson.GetBytes(body, "metadata.count")
	if !count.Exists() {
		return 0, fmt.Errorf("response has no metadata.count")
	}
	return int(count.Int()), nil
}

// fetchPage streams one page into a segment at path. The segment only
// appears once it is complete.
func (f *Fetcher) fetchPage(ctx context.Context, b Batch, skip, top int, path string) (int, error) {
	resp, err := f.get(ctx, map[string]string{
		"$filter":   b.filter(),
		"$metadata": "off",
		"$format":   "jsonl",
		"$skip":     strconv.Itoa(skip),
		"$top":      strconv.Itoa(top),
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	dir, base := filepath.Split(path)
	tmp := filepath.Join(dir, ".partial-"+base)
	w, err := archive.Create(tmp)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := w.WriteLine(sc.Bytes()); err != nil {
			w.Close()
			return w.Lines, err
		}
	}
	if err := sc.Err(); err != nil {
		w.Close()
		return w.Lines, err
	}
	if err := w.Close(); err != nil {
		return w.Lines, err
	}
	return w.Lines, os.Rename(tmp, path)
}
