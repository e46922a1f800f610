package mailops

import (
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
)

// SearchQuery captures the supported search criteria. Zero-valued fields
// are ignored; a fully empty query matches every message in the mailbox.
type SearchQuery struct {
	From        string `json:"from,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Text        string `json:"text,omitempty"`
	Since       string `json:"since,omitempty"`
	Before      string `json:"before,omitempty"`
	HeaderField string `json:"header_field,omitempty"`
	HeaderValue string `json:"header_value,omitempty"`
	Seen        *bool  `json:"seen,omitempty"`
}

const searchDateLayout = "2006-01-02"

// Criteria converts the query to IMAP search criteria, validating dates
// before anything touches the network.
func (q SearchQuery) Criteria() (*imap.SearchCriteria, error) {
	criteria := &imap.SearchCriteria{}

	if q.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "From", Value: q.From,
		})
	}
	if q.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "Subject", Value: q.Subject,
		})
	}
	if q.HeaderField != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: q.HeaderField, Value: q.HeaderValue,
		})
	}
	if q.Text != "" {
		criteria.Text = []string{q.Text}
	}

	if q.Since != "" {
		t, err := parseSearchDate("since", q.Since)
		if err != nil {
			return nil, err
		}
		criteria.Since = t
	}
	if q.Before != "" {
		t, err := parseSearchDate("before", q.Before)
		if err != nil {
			return nil, err
		}
		criteria.Before = t
	}

	if q.Seen != nil {
		if *q.Seen {
			criteria.Flag = append(criteria.Flag, imap.FlagSeen)
		} else {
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
		}
	}

	return criteria, nil
}

func parseSearchDate(field, value string) (time.Time, error) {
	t, err := time.Parse(searchDateLayout, value)
	if err != nil {
		return time.Time{}, &InvalidInputError{
			Field:  field,
			Reason: fmt.Sprintf("%q is not a date in YYYY-MM-DD form", value),
		}
	}
	return t, nil
}
