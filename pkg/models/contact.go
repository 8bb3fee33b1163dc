package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LinkPrecedence marks a contact as the canonical record of its cluster or a member of it.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is one observed (email, phone) record.
type Contact struct {
	ID             int64          `json:"id" db:"id"`
	Email          *string        `json:"email" db:"email"`
	PhoneNumber    *string        `json:"phoneNumber" db:"phone_number"`
	LinkedID       *int64         `json:"linkedId" db:"linked_id"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence" db:"link_precedence"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty" db:"deleted_at"`
}

func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

func (c Contact) IsSecondary() bool {
	return c.LinkPrecedence == LinkPrecedenceSecondary
}

// HasEmail reports whether the contact's email equals email.
func (c Contact) HasEmail(email string) bool {
	return c.Email != nil && *c.Email == email
}

// HasPhoneNumber reports whether the contact's phone number equals phone.
func (c Contact) HasPhoneNumber(phone string) bool {
	return c.PhoneNumber != nil && *c.PhoneNumber == phone
}

// FlexibleString accepts a JSON string or number.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexibleString(n.String())
	return nil
}

func (f *FlexibleString) StringPtr() *string {
	if f == nil {
		return nil
	}
	s := string(*f)
	return &s
}

// IdentifyRequest is the request body for POST /identify
type IdentifyRequest struct {
	Email       *string         `json:"email" validate:"omitempty,max=255"`
	PhoneNumber *FlexibleString `json:"phoneNumber" validate:"omitempty,max=20"`
}

func (r IdentifyRequest) String() string {
	var parts []string
	if r.Email != nil {
		parts = append(parts, "email="+*r.Email)
	}
	if r.PhoneNumber != nil {
		parts = append(parts, "phoneNumber="+string(*r.PhoneNumber))
	}
	return strings.Join(parts, " ")
}

// ContactSummary is the consolidated view of a cluster.
type ContactSummary struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse is the response body for POST /identify
type IdentifyResponse struct {
	Contact ContactSummary `json:"contact"`
}
