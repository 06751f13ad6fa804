// ABOUTME: User record and credential types for passgate persistence
// ABOUTME: Defines UserRecord, Credential and deep-copy helpers used by the ceremony manager

package store

import (
	"bytes"
	"encoding/json"
	"time"
)

// Credential is one registered authenticator for a user. The ID is the
// authenticator-assigned credential ID and is treated as globally unique
// across all users.
type Credential struct {
	ID              []byte    `json:"credId"`
	PublicKey       []byte    `json:"publicKey"`
	AttestationType string    `json:"attestationType,omitempty"`
	Transports      []string  `json:"transports,omitempty"`
	SignCount       uint32    `json:"counter"`
	CreatedAt       time.Time `json:"createdAt"`
}

// UserRecord is the per-username credential state. A record is Pending from
// creation until its first credential is committed; a pending record that is
// never completed is reclaimed by the registration expiry.
type UserRecord struct {
	ID               string          `json:"id"`
	Username         string          `json:"username"`
	Credentials      []Credential    `json:"credentials"`
	LoginCount       int             `json:"loginCount"`
	LastLogin        *time.Time      `json:"lastLogin,omitempty"`
	Pending          bool            `json:"pending"`
	CurrentChallenge string          `json:"currentChallenge,omitempty"`
	CeremonyData     json.RawMessage `json:"ceremonyData,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Clone returns a deep copy of the record. The store hands out and accepts
// only clones so callers can mutate freely and commit via Put.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	c.CeremonyData = bytes.Clone(u.CeremonyData)
	c.Credentials = make([]Credential, len(u.Credentials))
	for i, cred := range u.Credentials {
		c.Credentials[i] = cred
		c.Credentials[i].ID = bytes.Clone(cred.ID)
		c.Credentials[i].PublicKey = bytes.Clone(cred.PublicKey)
		c.Credentials[i].Transports = append([]string(nil), cred.Transports...)
	}
	return &c
}

// Credential returns the credential with the given ID, or nil.
func (u *UserRecord) Credential(credID []byte) *Credential {
	for i := range u.Credentials {
		if bytes.Equal(u.Credentials[i].ID, credID) {
			return &u.Credentials[i]
		}
	}
	return nil
}
