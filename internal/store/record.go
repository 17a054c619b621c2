package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"confirmbot/internal/shared"
)

// document is the JSON layout shared by the json and bolt drivers. Files written by
// older releases have no "version" key.
type document struct {
	Version      int      `json:"version,omitempty"`
	Users        []string `json:"users"`
	LastReminder *string  `json:"last_reminder"`
	IntervalDays int      `json:"interval_days"`
}

// MarshalRecord encodes rec as an indented JSON document.
func MarshalRecord(rec Record) ([]byte, error) {
	doc := document{
		Version:      CurrentVersion,
		Users:        rec.Users,
		LastReminder: rec.LastReminder,
		IntervalDays: rec.IntervalDays,
	}
	if doc.Users == nil {
		doc.Users = []string{}
	}
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// UnmarshalRecord decodes a JSON document. Unknown keys, wrong value types and
// trailing data are rejected.
func UnmarshalRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return Record{}, fmt.Errorf("%w: decode state document: %w", shared.ErrPersistence, err)
	}
	if dec.More() {
		return Record{}, fmt.Errorf("%w: trailing data after state document", shared.ErrPersistence)
	}
	if doc.Version > CurrentVersion {
		return Record{}, fmt.Errorf("%w: state version %d is newer than supported %d", shared.ErrPersistence, doc.Version, CurrentVersion)
	}
	return Record{
		Version:      doc.Version,
		Users:        doc.Users,
		LastReminder: doc.LastReminder,
		IntervalDays: doc.IntervalDays,
	}, nil
}
