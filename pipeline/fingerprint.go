// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"os/user"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Metadata field names under which a node's fingerprint is persisted with
// every key it writes.
const (
	mdFingerprint     = "fingerprint"
	mdFingerprintAt   = "fingerprint_at"
	mdFingerprintUser = "fingerprint_user"
)

// Fingerprint identifies the configuration a table was computed under.
// CreatedAt and User are provenance only; equality is defined exclusively
// over the canonical serialization of Config, so a rerun under the same
// configuration by a different user at a different time still matches.
type Fingerprint struct {
	Config    map[string]interface{}
	CreatedAt time.Time
	User      string

	canonical string
}

// NewFingerprint builds a fingerprint over cfg, stamped with the current
// time and user.
func NewFingerprint(cfg map[string]interface{}) (*Fingerprint, error) {
	canonical, err := canonicalJSON(cfg)
	if err != nil {
		return nil, err
	}
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return &Fingerprint{
		Config:    cfg,
		CreatedAt: time.Now(),
		User:      name,
		canonical: canonical,
	}, nil
}

// String returns the canonical JSON of the configuration. Map keys are
// serialized in sorted order, so two fingerprints over equal configurations
// always produce identical strings.
func (f *Fingerprint) String() string {
	return f.canonical
}

// Equal reports whether the two fingerprints were built over the same
// configuration. Provenance fields never participate.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if other == nil {
		return false
	}
	return f.canonical == other.canonical
}

// Matches reports whether a persisted canonical serialization belongs to
// this fingerprint's configuration.
func (f *Fingerprint) Matches(serialized string) bool {
	return serialized != "" && serialized == f.canonical
}

func canonicalJSON(cfg map[string]interface{}) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "serializing configuration fingerprint")
	}
	return string(b), nil
}
