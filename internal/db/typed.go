package db

import (
	"encoding/json"
	"fmt"
)

// DecodeRecords decodes raw table records into typed values.
func DecodeRecords[T any](records []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(records))

	for i, raw := range records {
		var v T

		err := json.Unmarshal(raw, &v)
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}

		out = append(out, v)
	}

	return out, nil
}

// EncodeRecords marshals typed values into raw table records. Struct field
// order fixes the JSON key order, keeping table output deterministic.
func EncodeRecords[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))

	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}

		out = append(out, json.RawMessage(data))
	}

	return out, nil
}

// ReadAs reads and decodes a whole table in one step.
func ReadAs[T any](s *Store, table string) ([]T, error) {
	records, err := s.ReadTable(table)
	if err != nil {
		return nil, err
	}

	return DecodeRecords[T](records)
}

// WriteFrom encodes typed records and writes the table.
func WriteFrom[T any](s *Store, table string, items []T) error {
	records, err := EncodeRecords(items)
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}

	return s.WriteTable(table, records, WriteOptions{})
}
