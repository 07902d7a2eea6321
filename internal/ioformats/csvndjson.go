
package ioformats

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"noindex-seo/internal/crawler"
)

// urlSet keeps audit targets in input order, once each. Entries that are not
// absolute http(s) URLs are collected as rejected.
type urlSet struct {
	seen     map[string]bool
	urls     []string
	rejected []string
}

func (s *urlSet) add(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.rejected = append(s.rejected, raw)
		return
	}
	u.Fragment = ""
	key := u.String()
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.urls = append(s.urls, key)
}

// ReadURLs loads audit targets from a CSV file with a "url" header column or
// from NDJSON (objects with "url" or bare lines). Other extensions are tried
// as CSV, then NDJSON. Duplicates are dropped and entries that are not http(s)
// URLs come back in rejected.
func ReadURLs(path string) (urls, rejected []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	set := &urlSet{seen: map[string]bool{}}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = readCSV(bytes.NewReader(data), set)
	case ".ndjson", ".jsonl":
		err = readNDJSON(bytes.NewReader(data), set)
	default:
		if err = readCSV(bytes.NewReader(data), set); err != nil || len(set.urls) == 0 {
			set = &urlSet{seen: map[string]bool{}}
			err = readNDJSON(bytes.NewReader(data), set)
		}
	}
	if err != nil {
		return nil, nil, err
	}
	if len(set.urls) == 0 {
		return nil, set.rejected, fmt.Errorf("no http(s) urls in %s", path)
	}
	return set.urls, set.rejected, nil
}

func readCSV(r io.Reader, set *urlSet) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return errors.New("empty csv")
	}
	if err != nil {
		return err
	}
	col := slices.IndexFunc(header, func(h string) bool {
		return strings.EqualFold(strings.TrimSpace(h), "url")
	})
	if col < 0 {
		return errors.New("csv must contain a 'url' header column")
	}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if col < len(row) {
			set.add(row[col])
		}
	}
}

func readNDJSON(r io.Reader, set *urlSet) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "{") {
			set.add(line)
			continue
		}
		var rec struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.URL == "" {
			set.rejected = append(set.rejected, line)
			continue
		}
		set.add(rec.URL)
	}
	return sc.Err()
}

// WriteNDJSON writes items as NDJSON to w.
func WriteNDJSON[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

var reportHeader = []string{"url", "final_url", "status", "header", "meta", "effective", "error"}

// WriteReportCSV writes audit results one row per URL. Multiple header values
// are joined with " | ".
func WriteReportCSV(w io.Writer, results []crawler.AuditResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{r.URL, "", "", "", "", "", r.Error}
		if rep := r.Result; rep != nil {
			row[1] = rep.FinalURL
			row[2] = strconv.Itoa(rep.Status)
			row[3] = strings.Join(rep.Header, " | ")
			row[4] = rep.Meta.String()
			row[5] = rep.Effective.String()
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport picks the format from ext: ".csv" or NDJSON for anything else.
func WriteReport(w io.Writer, ext string, results []crawler.AuditResult) error {
	if strings.EqualFold(ext, ".csv") {
		return WriteReportCSV(w, results)
	}
	return WriteNDJSON(w, results)
}
