// Package transform applies ordered, path-matched middleware that mutates
// request and response bodies and headers. Rules fold sequentially: each
// rule's output becomes the next rule's input.
package transform

import (
	"sort"
	"sync"

	"github.com/Laisky/errors/v2"
)

// RequestTransform mutates a request body and headers.
type RequestTransform func(body any, headers map[string]string) (any, map[string]string, error)

// ResponseTransform mutates a response body and status code.
type ResponseTransform func(body any, statusCode int) (any, int, error)

// Rule is a path-matched transform pair. Either side may be nil.
type Rule struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	PathPattern string `json:"path_pattern"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`

	Request  RequestTransform  `json:"-"`
	Response ResponseTransform `json:"-"`
}

type ruleEntry struct {
	rule Rule
	seq  uint64
}

// Pipeline holds transform rules and applies the matching subset in
// ascending priority order. Priority ties break by insertion sequence, the
// documented secondary sort key.
type Pipeline struct {
	mu      sync.RWMutex
	rules   map[string]*ruleEntry
	nextSeq uint64
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{rules: make(map[string]*ruleEntry)}
}

// AddRule installs a rule. Rule ids are unique.
func (p *Pipeline) AddRule(rule Rule) error {
	if rule.Id == "" {
		return errors.New("rule id is required")
	}
	if rule.PathPattern == "" {
		return errors.Errorf("rule %q: path pattern is required", rule.Id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rules[rule.Id]; ok {
		return errors.Errorf("rule %q already exists", rule.Id)
	}
	p.nextSeq++
	p.rules[rule.Id] = &ruleEntry{rule: rule, seq: p.nextSeq}
	return nil
}

// RemoveRule drops a rule. No-op when absent.
func (p *Pipeline) RemoveRule(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rules, id)
}

// SetEnabled toggles a rule without removing it.
func (p *Pipeline) SetEnabled(id string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.rules[id]; ok {
		entry.rule.Enabled = enabled
	}
}

// matching returns enabled rules matching the path, sorted by (priority,
// insertion sequence).
func (p *Pipeline) matching(path string) []Rule {
	p.mu.RLock()
	entries := make([]*ruleEntry, 0, len(p.rules))
	for _, entry := range p.rules {
		if entry.rule.Enabled && MatchPath(entry.rule.PathPattern, path) {
			entries = append(entries, entry)
		}
	}
	p.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rule.Priority != entries[j].rule.Priority {
			return entries[i].rule.Priority < entries[j].rule.Priority
		}
		return entries[i].seq < entries[j].seq
	})

	rules := make([]Rule, 0, len(entries))
	for _, entry := range entries {
		rules = append(rules, entry.rule)
	}
	return rules
}

// ApplyRequest folds every matching request transform over the body and
// headers. The headers map is copied so callers keep their original.
func (p *Pipeline) ApplyRequest(path string, body any, headers map[string]string) (any, map[string]string, error) {
	folded := make(map[string]string, len(headers))
	for k, v := range headers {
		folded[k] = v
	}

	var err error
	for _, rule := range p.matching(path) {
		if rule.Request == nil {
			continue
		}
		body, folded, err = rule.Request(body, folded)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "request transform %q", rule.Id)
		}
	}
	return body, folded, nil
}

// ApplyResponse folds every matching response transform over the body and
// status code.
func (p *Pipeline) ApplyResponse(path string, body any, statusCode int) (any, int, error) {
	var err error
	for _, rule := range p.matching(path) {
		if rule.Response == nil {
			continue
		}
		body, statusCode, err = rule.Response(body, statusCode)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "response transform %q", rule.Id)
		}
	}
	return body, statusCode, nil
}
