package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseRecipients reads broadcast recipients from a CSV. The header row must
// contain an "email" or "to" column (case-insensitive); other columns are
// ignored. Blank cells and repeated addresses are skipped, keeping the first
// occurrence. Addresses are not validated here.
//
// maxRows limits the data rows (excluding header, counting blanks and
// repeats); more is an ErrTooManyRows error. It defaults to 10000.
func ParseRecipients(r io.Reader, maxRows int) ([]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}

	col := -1
	for i, h := range headers {
		switch normalize(strings.TrimSpace(h)) {
		case "email", "to":
			if col == -1 {
				col = i
			}
		}
	}
	if col == -1 {
		return nil, errors.New("csv must contain an email column")
	}

	if maxRows <= 0 {
		maxRows = 10000
	}

	recipients := make([]string, 0)
	seen := make(map[string]struct{})
	for rows := 0; ; rows++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rows == maxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
		}
		if col >= len(record) {
			continue
		}

		addr := strings.TrimSpace(record[col])
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, addr)
	}

	if len(recipients) == 0 {
		return nil, errors.New("csv must contain at least one recipient")
	}
	return recipients, nil
}
