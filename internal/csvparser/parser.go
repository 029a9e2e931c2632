package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"PulseQueue/internal/models"
)

// ErrTooManyRows is returned when a CSV holds more data rows than allowed.
var ErrTooManyRows = errors.New("csv has too many rows")

// Parse reads email jobs from the CSV file at path.
func Parse(path string) ([]models.EmailJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseJobs(f, 0)
}

// jobColumns maps normalized header names to job fields. Any other column
// becomes a tag.
var jobColumns = map[string]func(*models.EmailJob, string){
	"to":             func(j *models.EmailJob, v string) { j.To = v },
	"email":          func(j *models.EmailJob, v string) { j.To = v },
	"from":           func(j *models.EmailJob, v string) { j.From = v },
	"subject":        func(j *models.EmailJob, v string) { j.Subject = v },
	"html":           func(j *models.EmailJob, v string) { j.HTML = v },
	"text":           func(j *models.EmailJob, v string) { j.Text = v },
	"replyto":        func(j *models.EmailJob, v string) { j.ReplyTo = v },
	"idempotencykey": func(j *models.EmailJob, v string) { j.IdempotencyKey = v },
	"unsubscribeurl": func(j *models.EmailJob, v string) { j.UnsubscribeURL = v },
}

// ParseJobs reads one email job per row. The header row names the columns
// (case and "_" insensitive, so reply_to and replyTo both work) and must
// contain to and subject. Empty cells are left unset. More than maxRows data
// rows is an ErrTooManyRows error; maxRows <= 0 means no limit.
func ParseJobs(r io.Reader, maxRows int) ([]models.EmailJob, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}

	names := make([]string, len(headers))
	seen := make(map[string]bool, len(headers))
	for i, h := range headers {
		names[i] = strings.TrimSpace(h)
		seen[normalize(names[i])] = true
	}
	if !seen["to"] && !seen["email"] {
		return nil, errors.New("csv must contain a to column")
	}
	if !seen["subject"] {
		return nil, errors.New("csv must contain a subject column")
	}

	var jobs []models.EmailJob
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if maxRows > 0 && len(jobs) == maxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
		}

		var job models.EmailJob
		for i, value := range record {
			value = strings.TrimSpace(value)
			if value == "" || names[i] == "" {
				continue
			}
			if set, ok := jobColumns[normalize(names[i])]; ok {
				set(&job, value)
				continue
			}
			if job.Tags == nil {
				job.Tags = make(map[string]string)
			}
			job.Tags[names[i]] = value
		}
		jobs = append(jobs, job)
	}

	if len(jobs) == 0 {
		return nil, errors.New("csv must contain header and at least one row")
	}
	return jobs, nil
}

func normalize(header string) string {
	return strings.ToLower(strings.ReplaceAll(header, "_", ""))
}
