package influx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/roach88/vizgraph/internal/cache"
)

// Querier executes InfluxQL against one database over the v1 HTTP API.
// Calls go through cache.FetchOrFallback, so an outage degrades to
// cached answers.
type Querier struct {
	target   string
	database string
	username string
	password string
	client   *http.Client
	cache    cache.Cache
}

// NewQuerier builds a querier against target ("host" or "host:port";
// the default port is 8086). A nil cache disables fallback.
func NewQuerier(target, database, username, password string, c cache.Cache) *Querier {
	if !strings.Contains(target, ":") {
		target += ":8086"
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Querier{
		target:   target,
		database: database,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
		cache:    c,
	}
}

// WithProxy routes requests through the given HTTP proxy.
func (q *Querier) WithProxy(proxy string) error {
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return fmt.Errorf("parse proxy %q: %w", proxy, err)
	}
	q.client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	return nil
}

// query runs one statement and returns the decoded series payloads as
// generic JSON values, which round-trip through any cache backend.
func (q *Querier) query(statement string) (any, error) {
	return cache.FetchOrFallback(q.cache, statement, "influx_query", func() (any, error) {
		u := url.URL{
			Scheme: "http",
			Host:   q.target,
			Path:   "/query",
			RawQuery: url.Values{
				"db": []string{q.database},
				"q":  []string{statement},
			}.Encode(),
		}

		req, err := http.NewRequest(http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		if q.username != "" {
			req.SetBasicAuth(q.username, q.password)
		}

		resp, err := q.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("query %q: %s: %s", statement, resp.Status, body)
		}

		var envelope struct {
			Results []struct {
				Error  string `json:"error"`
				Series []any  `json:"series"`
			} `json:"results"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("query %q: decode response: %w", statement, err)
		}
		if len(envelope.Results) == 0 {
			return nil, fmt.Errorf("query %q: empty response", statement)
		}
		if envelope.Results[0].Error != "" {
			return nil, fmt.Errorf("query %q: %s", statement, envelope.Results[0].Error)
		}
		return envelope.Results[0].Series, nil
	})
}

type seriesPayload struct {
	name    string
	columns []string
	tags    map[string]string
	values  [][]any
}

func decodeSeries(data any) ([]seriesPayload, error) {
	raw, ok := data.([]any)
	if !ok {
		if data == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected series payload %T", data)
	}

	out := make([]seriesPayload, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		var p seriesPayload
		p.name, _ = m["name"].(string)
		if columns, ok := m["columns"].([]any); ok {
			for _, c := range columns {
				p.columns = append(p.columns, fmt.Sprintf("%v", c))
			}
		}
		if tags, ok := m["tags"].(map[string]any); ok {
			p.tags = make(map[string]string, len(tags))
			for tag, value := range tags {
				p.tags[tag] = fmt.Sprintf("%v", value)
			}
		}
		if values, ok := m["values"].([]any); ok {
			for _, rowAny := range values {
				if row, ok := rowAny.([]any); ok {
					p.values = append(p.values, row)
				}
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// RunQuery executes one SELECT and returns a row per series: the first
// value row zipped with the columns, merged with the series tags.
func (q *Querier) RunQuery(statement string) ([]map[string]any, error) {
	data, err := q.query(statement)
	if err != nil {
		return nil, err
	}
	series, err := decodeSeries(data)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, s := range series {
		if len(s.values) == 0 {
			continue
		}
		row := make(map[string]any, len(s.columns)+len(s.tags))
		for i, column := range s.columns {
			if i < len(s.values[0]) {
				row[column] = s.values[0][i]
			}
		}
		for tag, value := range s.tags {
			row[tag] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Series returns the distinct value tuples of the given tags, as one
// row per tuple. SHOW SERIES is the only way to correlate tag values
// without touching fields, and it returns whole series keys, so the
// narrowing to the requested tags and the deduplication happen here.
// The "!= null" matchers keep out series missing one of the tags.
func (q *Querier) Series(tags []string, measurement string) ([]map[string]any, error) {
	ordered := append([]string(nil), tags...)
	sort.Strings(ordered)

	matchers := make([]string, 0, len(ordered))
	for _, tag := range ordered {
		matchers = append(matchers, tag+" != null")
	}

	statement := "SHOW SERIES"
	if measurement != "" {
		statement += " FROM " + measurement
	}
	statement += " WHERE " + strings.Join(matchers, " AND ")

	data, err := q.query(statement)
	if err != nil {
		return nil, err
	}
	series, err := decodeSeries(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var rows []map[string]any
	for _, s := range series {
		for _, value := range s.values {
			if len(value) == 0 {
				continue
			}
			_, tagValues := parseSeriesKey(fmt.Sprintf("%v", value[0]))

			row := make(map[string]any, len(ordered))
			tuple := make([]string, 0, len(ordered))
			for _, tag := range ordered {
				row[tag] = tagValues[tag]
				tuple = append(tuple, tagValues[tag])
			}

			key := strings.Join(tuple, "\x00")
			if !seen[key] {
				seen[key] = true
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}
