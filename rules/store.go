package rules

import (
	"sort"
	"sync"
)

type storedRule struct {
	rule FieldRule
	seq  uint64
}

// RuleSet holds rules keyed by id together with a field index: every action
// field and every field read by a rule's condition tree maps to the ids of
// the rules that touch it. The index is maintained incrementally.
// Thread-safe with RWMutex.
type RuleSet struct {
	rules map[string]storedRule
	index map[string]map[string]struct{}
	seq   uint64
	mu    sync.RWMutex
}

// NewRuleSet creates an empty rule set
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules: make(map[string]storedRule),
		index: make(map[string]map[string]struct{}),
	}
}

// Put adds or replaces a rule. A replaced rule keeps its original insertion
// position for tie-breaking.
func (s *RuleSet) Put(rule FieldRule) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq
	if prev, exists := s.rules[rule.ID]; exists {
		s.unindex(prev.rule)
		seq = prev.seq
		replaced = true
	} else {
		s.seq++
	}

	s.rules[rule.ID] = storedRule{rule: rule, seq: seq}
	for _, field := range ruleFields(rule) {
		bucket, ok := s.index[field]
		if !ok {
			bucket = make(map[string]struct{})
			s.index[field] = bucket
		}
		bucket[rule.ID] = struct{}{}
	}
	return replaced
}

// Remove deletes a rule and prunes index buckets left empty.
func (s *RuleSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.rules[id]
	if !exists {
		return false
	}
	s.unindex(prev.rule)
	delete(s.rules, id)
	return true
}

// unindex must be called with the write lock held.
func (s *RuleSet) unindex(rule FieldRule) {
	for _, field := range ruleFields(rule) {
		bucket, ok := s.index[field]
		if !ok {
			continue
		}
		delete(bucket, rule.ID)
		if len(bucket) == 0 {
			delete(s.index, field)
		}
	}
}

// Get retrieves a rule by ID
func (s *RuleSet) Get(id string) (FieldRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.rules[id]
	return stored.rule, ok
}

// List returns every rule in insertion order.
func (s *RuleSet) List() []FieldRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := make([]storedRule, 0, len(s.rules))
	for _, r := range s.rules {
		stored = append(stored, r)
	}
	return unwrap(sortBySeq(stored))
}

// ByField returns the rules indexed under field, in insertion order.
func (s *RuleSet) ByField(field string) []FieldRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return unwrap(sortBySeq(s.bucket(field)))
}

// Candidates returns the rules to evaluate for changedField (all rules when
// empty), ordered by priority descending then insertion order.
func (s *RuleSet) Candidates(changedField string) []FieldRule {
	s.mu.RLock()
	var stored []storedRule
	if changedField == "" {
		stored = make([]storedRule, 0, len(s.rules))
		for _, r := range s.rules {
			stored = append(stored, r)
		}
	} else {
		stored = s.bucket(changedField)
	}
	s.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		if stored[i].rule.Priority != stored[j].rule.Priority {
			return stored[i].rule.Priority > stored[j].rule.Priority
		}
		return stored[i].seq < stored[j].seq
	})
	return unwrap(stored)
}

// IndexedIDs returns the ids in field's bucket, sorted. Nil means no bucket.
func (s *RuleSet) IndexedIDs(field string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.index[field]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IndexedFields returns every field with a non-empty bucket, sorted.
func (s *RuleSet) IndexedFields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields := make([]string, 0, len(s.index))
	for f := range s.index {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// bucket must be called with the read lock held.
func (s *RuleSet) bucket(field string) []storedRule {
	ids := s.index[field]
	stored := make([]storedRule, 0, len(ids))
	for id := range ids {
		stored = append(stored, s.rules[id])
	}
	return stored
}

func sortBySeq(stored []storedRule) []storedRule {
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })
	return stored
}

func unwrap(stored []storedRule) []FieldRule {
	out := make([]FieldRule, len(stored))
	for i, r := range stored {
		out[i] = r.rule
	}
	return out
}

// ruleFields returns the distinct fields a rule touches: its action field and
// every field in its condition tree.
func ruleFields(rule FieldRule) []string {
	seen := make(map[string]struct{})
	var fields []string
	add := func(f string) {
		if f == "" {
			return
		}
		if _, dup := seen[f]; dup {
			return
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	add(rule.Action.Field)
	for _, f := range conditionFields(rule.Condition) {
		add(f)
	}
	return fields
}

func conditionFields(cond RuleCondition) []string {
	var fields []string
	if cond.Field != "" {
		fields = append(fields, cond.Field)
	}
	for _, sub := range cond.Conditions {
		fields = append(fields, conditionFields(sub)...)
	}
	return fields
}
