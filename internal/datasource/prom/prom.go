// Package prom exposes a Prometheus server as a datasource. Labels
// become refinement dimensions and metrics become float leaves; a
// result chain compiles into one instant-query label-matcher set.
//
// Derived labels synthesize new queryable dimensions from an existing
// label's values (a regex capture plus string functions), and enum
// metrics present a label-selected slice of a shared metric under its
// own name.
package prom

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

// NodeNameFromIdentifier maps join identifiers onto node names; labels
// and metrics keep their Prometheus names.
func NodeNameFromIdentifier(identifier string) string {
	return identifier
}

// Querier wraps the Prometheus HTTP API. Every call goes through
// cache.FetchOrFallback, so a server outage degrades to the cached
// answers instead of failing the whole update.
type Querier struct {
	target string
	client *http.Client
	cache  cache.Cache
}

// NewQuerier builds a querier against target ("host:port"). A nil
// cache disables fallback.
func NewQuerier(target string, c cache.Cache) *Querier {
	if c == nil {
		c = cache.Nop{}
	}
	return &Querier{
		target: target,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  c,
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

func (q *Querier) get(apiPath string, params url.Values) (any, error) {
	u := url.URL{
		Scheme:   "http",
		Host:     q.target,
		Path:     apiPath,
		RawQuery: params.Encode(),
	}

	resp, err := q.client.Get(u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: %s: %s", apiPath, resp.Status, body)
	}

	var envelope struct {
		Status string          `json:"status"`
		Error  string          `json:"error"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", apiPath, err)
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("%s: %s", apiPath, envelope.Error)
	}

	var data any
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("%s: decode data: %w", apiPath, err)
	}
	return data, nil
}

// LabelValues returns all values of one label via the dedicated
// label-values API.
func (q *Querier) LabelValues(label string) ([]string, error) {
	data, err := cache.FetchOrFallback(q.cache, label, "prometheus_label_values", func() (any, error) {
		return q.get("/api/v1/label/"+url.PathEscape(label)+"/values", nil)
	})
	if err != nil {
		return nil, err
	}
	return toStrings(data)
}

// Query runs an instant query and returns the matched series.
func (q *Querier) Query(query string) ([]sample, error) {
	data, err := cache.FetchOrFallback(q.cache, query, "prometheus_query", func() (any, error) {
		return q.get("/api/v1/query", url.Values{"query": []string{query}})
	})
	if err != nil {
		return nil, err
	}
	return toSamples(data)
}

type sample struct {
	labels map[string]string
	value  string
}

func toStrings(data any) ([]string, error) {
	switch values := data.(type) {
	case []string:
		return values, nil
	case []any:
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, fmt.Sprintf("%v", v))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected label values payload %T", data)
}

func toSamples(data any) ([]sample, error) {
	payload, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected query payload %T", data)
	}
	results, ok := payload["result"].([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected query result %T", payload["result"])
	}

	out := make([]sample, 0, len(results))
	for _, raw := range results {
		series, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		labels := make(map[string]string)
		if metric, ok := series["metric"].(map[string]any); ok {
			for name, value := range metric {
				labels[name] = fmt.Sprintf("%v", value)
			}
		}

		s := sample{labels: labels}
		if pair, ok := series["value"].([]any); ok && len(pair) == 2 {
			s.value = fmt.Sprintf("%v", pair[1])
		}
		out = append(out, s)
	}
	return out, nil
}

// promNode is the behavior labels and metrics share: the label their
// values live under, and the matchers that scope a query to them.
type promNode interface {
	graph.Node
	canonicalLabel() string
	labelMatches() []string
}

// Label is one Prometheus label dimension.
type Label struct {
	graph.Info
	querier *Querier
}

func newLabel(querier *Querier, datasource, name string) *Label {
	return &Label{Info: graph.NewInfo(datasource, name, graph.KindString), querier: querier}
}

func (l *Label) canonicalLabel() string { return l.Name() }

// labelMatches returns a matcher that requires the label to exist.
// Prometheus rejects queries where every matcher is empty and silently
// ignores empty matchers next to non-empty ones, so we match "any
// value" with a pattern it accepts as non-empty. \v is as close to
// never-used as a character gets.
func (l *Label) labelMatches() []string {
	return []string{fmt.Sprintf(`%s=~"^[^\v].*$"`, l.canonicalLabel())}
}

func (l *Label) Result() graph.Result {
	return &labelResult{chain: chain{node: l, querier: l.querier}}
}

// DerivedLabel is a synthetic label whose values are computed from a
// target label's values through a Derivation.
type DerivedLabel struct {
	Label
	derivation *Derivation
}

func newDerivedLabel(querier *Querier, datasource string, derivation *Derivation) *DerivedLabel {
	return &DerivedLabel{
		Label:      *newLabel(querier, datasource, derivation.Name),
		derivation: derivation,
	}
}

func (l *DerivedLabel) canonicalLabel() string { return l.derivation.Target }

func (l *DerivedLabel) labelMatches() []string {
	return []string{fmt.Sprintf(`%s=~"^[^\v].*$"`, l.canonicalLabel())}
}

// SameValue compares a raw target-label value against an expected
// derived value. Underivable raw values match nothing.
func (l *DerivedLabel) SameValue(a, b any) bool {
	derived, ok := l.derivation.Apply(fmt.Sprintf("%v", a))
	if !ok {
		return false
	}
	return derived == fmt.Sprintf("%v", b)
}

func (l *DerivedLabel) Result() graph.Result {
	return &derivedLabelResult{labelResult: labelResult{chain: chain{node: l, querier: l.querier}}}
}

// Metric is one Prometheus metric, a float leaf.
type Metric struct {
	graph.Info
	querier *Querier
}

func newMetric(querier *Querier, datasource, name string) *Metric {
	return &Metric{Info: graph.NewInfo(datasource, name, graph.KindFloat), querier: querier}
}

func (m *Metric) canonicalLabel() string { return m.Name() }

func (m *Metric) labelMatches() []string {
	return []string{fmt.Sprintf(`__name__=%q`, m.canonicalLabel())}
}

func (m *Metric) Result() graph.Result {
	return &metricResult{chain: chain{node: m, querier: m.querier}}
}

// EnumMetric presents one slice of a shared metric under its own name,
// selected by pinning an enumerated label to a fixed value.
type EnumMetric struct {
	Metric
	targetMetric string
	enumLabel    string
	enumValue    string
}

func newEnumMetric(querier *Querier, datasource, targetMetric, name, enumLabel, enumValue string) *EnumMetric {
	return &EnumMetric{
		Metric:       *newMetric(querier, datasource, name),
		targetMetric: targetMetric,
		enumLabel:    enumLabel,
		enumValue:    enumValue,
	}
}

func (m *EnumMetric) canonicalLabel() string { return m.enumLabel }

func (m *EnumMetric) labelMatches() []string {
	return []string{
		fmt.Sprintf(`__name__=%q`, m.targetMetric),
		fmt.Sprintf(`%s=%q`, m.enumLabel, m.enumValue),
	}
}

func (m *EnumMetric) Result() graph.Result {
	return &metricResult{chain: chain{node: m, querier: m.querier}}
}

// chain is the shared join-chain state behind every result type.
type chain struct {
	node    promNode
	querier *Querier
	prev    interface{ joinedMatches() []string }
}

func (c *chain) Node() graph.Node { return c.node }

func (c *chain) joinedMatches() []string {
	var out []string
	if c.prev != nil {
		out = c.prev.joinedMatches()
	}
	return append(out, c.node.labelMatches()...)
}

// asQuery renders the chain's accumulated matchers as one instant
// query, deduplicated and sorted so identical chains produce identical
// query text.
func (c *chain) asQuery() string {
	matches := c.joinedMatches()
	sort.Strings(matches)

	unique := matches[:0]
	for i, match := range matches {
		if i == 0 || match != matches[i-1] {
			unique = append(unique, match)
		}
	}

	query := "{"
	for i, match := range unique {
		if i > 0 {
			query += ", "
		}
		query += match
	}
	return query + "}"
}

func (c *chain) extend(other graph.Node) (graph.Result, error) {
	if other.Datasource() != c.node.Datasource() {
		return nil, fmt.Errorf("cannot join %s onto prometheus node %s", other.Mangled(), c.node.Mangled())
	}
	next := chain{querier: c.querier, prev: c}

	switch n := other.(type) {
	case *DerivedLabel:
		next.node = n
		return &derivedLabelResult{labelResult: labelResult{chain: next}}, nil
	case *Label:
		next.node = n
		return &labelResult{chain: next}, nil
	case *EnumMetric:
		next.node = n
		return &metricResult{chain: next}, nil
	case *Metric:
		next.node = n
		return &metricResult{chain: next}, nil
	}
	return nil, fmt.Errorf("cannot join %s onto prometheus node %s", other.Mangled(), c.node.Mangled())
}

// filterSamples keeps the samples consistent with every applicable
// ancestor constraint. A constraint applies when its node lives in the
// same datasource and the sample carries its canonical label; the
// node's own SameValue runs the comparison, so derived labels compare
// through their derivation.
func filterSamples(samples []sample, datasource string, ancestors graph.Constraints) []sample {
	type comparison struct {
		node  promNode
		label string
		value any
	}
	var comparisons []comparison
	for _, entry := range ancestors.Sorted() {
		if ancestor, ok := entry.Node.(promNode); ok && ancestor.Datasource() == datasource {
			comparisons = append(comparisons, comparison{
				node:  ancestor,
				label: ancestor.canonicalLabel(),
				value: entry.Value,
			})
		}
	}

	var out []sample
	for _, s := range samples {
		matched := true
		for _, cmp := range comparisons {
			if raw, ok := s.labels[cmp.label]; ok && !cmp.node.SameValue(raw, cmp.value) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, s)
		}
	}
	return out
}

type labelResult struct {
	chain
	raw    []sample
	loaded bool
}

func (r *labelResult) Join(other graph.Node) (graph.Result, error) {
	return r.extend(other)
}

// rawValues queries once and memoizes. A chain of one label uses the
// cheaper dedicated label-values API; longer chains need the full
// instant query to correlate labels within a series.
func (r *labelResult) rawValues() ([]sample, error) {
	if r.loaded {
		return r.raw, nil
	}

	label := r.node.canonicalLabel()
	if len(r.joinedMatches()) <= 1 {
		values, err := r.querier.LabelValues(label)
		if err != nil {
			return nil, err
		}
		for _, value := range values {
			r.raw = append(r.raw, sample{labels: map[string]string{label: value}})
		}
	} else {
		samples, err := r.querier.Query(r.asQuery())
		if err != nil {
			return nil, err
		}
		r.raw = samples
	}

	r.loaded = true
	return r.raw, nil
}

func (r *labelResult) Values(ancestors graph.Constraints) ([]any, error) {
	samples, err := r.rawValues()
	if err != nil {
		return nil, err
	}

	label := r.node.canonicalLabel()
	var out []any
	for _, s := range filterSamples(samples, r.node.Datasource(), ancestors) {
		if value, ok := s.labels[label]; ok {
			out = append(out, value)
		}
	}
	return graph.DedupFirstSeen(out), nil
}

type derivedLabelResult struct {
	labelResult
}

// Values derives each target-label value, drops the underivable ones,
// and sorts before deduplicating: the raw values carry no order with
// respect to the derivation, so equal derived values need not be
// adjacent.
func (r *derivedLabelResult) Values(ancestors graph.Constraints) ([]any, error) {
	raw, err := r.labelResult.Values(ancestors)
	if err != nil {
		return nil, err
	}

	node := r.node.(*DerivedLabel)
	var derived []string
	for _, value := range raw {
		if out, ok := node.derivation.Apply(fmt.Sprintf("%v", value)); ok {
			derived = append(derived, out)
		}
	}
	sort.Strings(derived)

	var out []any
	for _, value := range derived {
		out = append(out, value)
	}
	return graph.DedupFirstSeen(out), nil
}

type metricResult struct {
	chain
	raw    []sample
	loaded bool
}

func (r *metricResult) Join(other graph.Node) (graph.Result, error) {
	return nil, fmt.Errorf("cannot join on metric result %s", r.node.Mangled())
}

func (r *metricResult) Values(ancestors graph.Constraints) ([]any, error) {
	if !r.loaded {
		samples, err := r.querier.Query(r.asQuery())
		if err != nil {
			return nil, err
		}
		r.raw = samples
		r.loaded = true
	}

	var out []any
	for _, s := range filterSamples(r.raw, r.node.Datasource(), ancestors) {
		value, err := strconv.ParseFloat(s.value, 64)
		if err != nil {
			return nil, fmt.Errorf("metric %s: non-numeric sample %q", r.node.Mangled(), s.value)
		}
		out = append(out, value)
	}
	return graph.DedupFirstSeen(out), nil
}
