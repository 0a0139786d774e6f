package db

import (
	"encoding/json"
	"fmt"
)

// Table file names. The set is fixed: producers share these constants and
// the registry rejects anything else.
const (
	TableTweets   = "tweets.json"
	TableMap      = "tweets_map.json"
	TableSummary  = "tweets_summary.json"
	TableExam     = "tweets_exam.json"
	TableEnriched = "tweets_enriched.json"
	TableSearch   = "tweets-db.json"
	TableBooks    = "books.json"
	TableBooksRaw = "books-not-enriched.json"
	TableGraph    = "processed_graph_data.json"

	// FileTurrasCSV is the one non-JSON artifact. It is read-only for this
	// core: the validator cross-checks its IDs but repairs never write it.
	FileTurrasCSV = "turras.csv"
)

// FieldKind is the JSON type expected for a record field.
type FieldKind uint8

// Supported field kinds.
const (
	KindString FieldKind = iota
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k FieldKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "string"
	}
}

// Shape describes how records are laid out inside a table file.
type Shape uint8

const (
	// ShapeRecords is a flat JSON array of record objects.
	ShapeRecords Shape = iota

	// ShapeThreads is an array of threads, each thread an array of tweet
	// objects. The record unit is the thread; its ID is the root tweet's.
	ShapeThreads
)

type fieldDef struct {
	name     string
	kind     FieldKind
	required bool
}

// Schema defines one table: its shape and the fields every record (or, for
// thread tables, every tweet) must carry.
type Schema struct {
	name     string
	shape    Shape
	required bool
	fields   []fieldDef
}

// NewSchema starts a schema definition for the named table.
func NewSchema(name string, shape Shape) *Schema {
	return &Schema{name: name, shape: shape}
}

// MarkRequired makes a missing table file an error instead of an empty read.
func (s *Schema) MarkRequired() *Schema {
	s.required = true

	return s
}

// Str appends a string field.
func (s *Schema) Str(name string, required bool) *Schema {
	s.fields = append(s.fields, fieldDef{name: name, kind: KindString, required: required})

	return s
}

// Num appends a numeric field.
func (s *Schema) Num(name string, required bool) *Schema {
	s.fields = append(s.fields, fieldDef{name: name, kind: KindNumber, required: required})

	return s
}

// Arr appends an array field.
func (s *Schema) Arr(name string, required bool) *Schema {
	s.fields = append(s.fields, fieldDef{name: name, kind: KindArray, required: required})

	return s
}

// Obj appends an object field.
func (s *Schema) Obj(name string, required bool) *Schema {
	s.fields = append(s.fields, fieldDef{name: name, kind: KindObject, required: required})

	return s
}

// Name returns the table file name.
func (s *Schema) Name() string { return s.name }

// Shape returns the record layout of the table.
func (s *Schema) Shape() Shape { return s.shape }

// IsRequired reports whether a missing file is fatal for reads.
func (s *Schema) IsRequired() bool { return s.required }

// RecordID extracts the canonical ID of one raw record. For thread tables
// this is the id of the first tweet (the turra ID).
func (s *Schema) RecordID(raw json.RawMessage) (string, error) {
	if s.shape == ShapeThreads {
		var thread []struct {
			ID string `json:"id"`
		}

		err := json.Unmarshal(raw, &thread)
		if err != nil {
			return "", fmt.Errorf("%s: decode thread: %w", s.name, err)
		}

		if len(thread) == 0 {
			return "", fmt.Errorf("%s: empty thread", s.name)
		}

		return thread[0].ID, nil
	}

	var rec struct {
		ID string `json:"id"`
	}

	err := json.Unmarshal(raw, &rec)
	if err != nil {
		return "", fmt.Errorf("%s: decode record: %w", s.name, err)
	}

	return rec.ID, nil
}

// Validate checks every record against the schema and collects field
// violations instead of failing on the first one. A nil return means the
// sequence is schema-valid.
func (s *Schema) Validate(records []json.RawMessage) []FieldViolation {
	var violations []FieldViolation

	for i, raw := range records {
		if s.shape == ShapeThreads {
			violations = append(violations, s.validateThread(i, raw)...)

			continue
		}

		violations = append(violations, s.validateObject(i, "", raw)...)
	}

	return violations
}

func (s *Schema) validateThread(index int, raw json.RawMessage) []FieldViolation {
	var tweets []json.RawMessage

	err := json.Unmarshal(raw, &tweets)
	if err != nil {
		return []FieldViolation{{Index: index, Field: "(thread)", Reason: "is not an array of tweets"}}
	}

	if len(tweets) == 0 {
		return []FieldViolation{{Index: index, Field: "(thread)", Reason: "is empty"}}
	}

	// The thread is identified by its root tweet even when later tweets fail.
	threadID, _ := s.RecordID(raw)

	var violations []FieldViolation

	for _, tweet := range tweets {
		violations = append(violations, s.validateObject(index, threadID, tweet)...)
	}

	return violations
}

func (s *Schema) validateObject(index int, recordID string, raw json.RawMessage) []FieldViolation {
	var obj map[string]json.RawMessage

	err := json.Unmarshal(raw, &obj)
	if err != nil {
		return []FieldViolation{{RecordID: recordID, Index: index, Field: "(record)", Reason: "is not an object"}}
	}

	if recordID == "" {
		recordID = stringField(obj, "id")
	}

	var violations []FieldViolation

	for _, f := range s.fields {
		val, ok := obj[f.name]
		if !ok || string(val) == "null" {
			if f.required {
				violations = append(violations, FieldViolation{
					RecordID: recordID, Index: index, Field: f.name, Reason: "is missing",
				})
			}

			continue
		}

		if !kindMatches(f.kind, val) {
			violations = append(violations, FieldViolation{
				RecordID: recordID, Index: index, Field: f.name,
				Reason: fmt.Sprintf("is not a %s", f.kind),
			})
		}

		if f.name == "id" && f.kind == KindString && string(val) == `""` {
			violations = append(violations, FieldViolation{
				RecordID: recordID, Index: index, Field: "id", Reason: "is empty",
			})
		}
	}

	return violations
}

func stringField(obj map[string]json.RawMessage, name string) string {
	raw, ok := obj[name]
	if !ok {
		return ""
	}

	var s string

	err := json.Unmarshal(raw, &s)
	if err != nil {
		return ""
	}

	return s
}

func kindMatches(kind FieldKind, raw json.RawMessage) bool {
	trimmed := string(raw)
	if trimmed == "" {
		return false
	}

	switch kind {
	case KindString:
		return trimmed[0] == '"'
	case KindNumber:
		return trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')
	case KindBool:
		return trimmed == "true" || trimmed == "false"
	case KindArray:
		return trimmed[0] == '['
	case KindObject:
		return trimmed[0] == '{'
	default:
		return false
	}
}

// Registry maps table names to their schemas. One registry is built per
// process and passed into every component; there are no package-level
// instances.
type Registry struct {
	schemas map[string]*Schema
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds or replaces a schema.
func (r *Registry) Register(s *Schema) *Registry {
	if _, exists := r.schemas[s.name]; !exists {
		r.order = append(r.order, s.name)
	}

	r.schemas[s.name] = s

	return r
}

// Lookup returns the schema for a table name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	s, ok := r.schemas[name]

	return s, ok
}

// Names returns all registered table names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// DefaultRegistry builds the fixed table set of the archive.
func DefaultRegistry() *Registry {
	reg := NewRegistry()

	reg.Register(NewSchema(TableTweets, ShapeThreads).MarkRequired().
		Str("id", true).
		Str("tweet", true).
		Str("author", false).
		Str("time", false).
		Obj("stats", false).
		Obj("metadata", false))

	reg.Register(NewSchema(TableMap, ShapeRecords).MarkRequired().
		Str("id", true).
		Str("categories", true))

	reg.Register(NewSchema(TableSummary, ShapeRecords).MarkRequired().
		Str("id", true).
		Str("summary", true))

	reg.Register(NewSchema(TableExam, ShapeRecords).MarkRequired().
		Str("id", true).
		Arr("questions", true))

	reg.Register(NewSchema(TableEnriched, ShapeRecords).
		Str("id", true).
		Str("type", true).
		Str("url", false).
		Str("img", false).
		Str("media", false))

	reg.Register(NewSchema(TableSearch, ShapeRecords).
		Str("id", true).
		Str("text", false))

	reg.Register(NewSchema(TableBooks, ShapeRecords).
		Str("id", true).
		Str("title", true).
		Str("url", false).
		Str("categories", false))

	reg.Register(NewSchema(TableBooksRaw, ShapeRecords).
		Str("id", true).
		Str("title", false).
		Str("url", false))

	reg.Register(NewSchema(TableGraph, ShapeRecords).
		Str("id", true).
		Str("url", false).
		Num("replies", false).
		Num("likes", false).
		Num("bookmarks", false).
		Num("views", false).
		Str("summary", false).
		Arr("categories", false).
		Arr("related_threads", false))

	return reg
}
