package db

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
)

// ReadCSVIDs reads the id column of turras.csv. The file sits next to the
// JSON tables but is owned by the exporter scripts, so this core only ever
// reads it. A missing file yields an empty list.
func (s *Store) ReadCSVIDs(name string) ([]string, error) {
	data, err := s.fsys.ReadFile(s.TablePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // exporter rows vary in width

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: parse csv: %w", name, err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	idCol := -1

	for i, col := range rows[0] {
		if col == "id" {
			idCol = i

			break
		}
	}

	if idCol == -1 {
		return nil, fmt.Errorf("read %s: no id column", name)
	}

	ids := make([]string, 0, len(rows)-1)

	for _, row := range rows[1:] {
		if idCol < len(row) && row[idCol] != "" {
			ids = append(ids, row[idCol])
		}
	}

	return ids, nil
}
