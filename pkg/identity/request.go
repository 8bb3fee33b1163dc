package identity

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

const (
	emailKeyPrefix = "email:"
	phoneKeyPrefix = "phone:"
)

// Request is one normalized observation. Absent and blank values are nil.
type Request struct {
	Email       *string
	PhoneNumber *string
}

// NewRequest applies the configured normalizers (Trim when unset) and drops empty values.
func NewRequest(email, phone *string, emailNorm, phoneNorm normalizers.Normalizer) Request {
	return Request{
		Email:       normalizers.Optional(email, emailNorm),
		PhoneNumber: normalizers.Optional(phone, phoneNorm),
	}
}

func (r Request) Validate() error {
	if r.Email == nil && r.PhoneNumber == nil {
		return ErrInvalidInput
	}
	return nil
}

// LockKeys returns the sorted identifiers that serialize concurrent identify calls.
func (r Request) LockKeys() []string {
	keys := make([]string, 0, 2)
	if r.Email != nil {
		keys = append(keys, emailKeyPrefix+*r.Email)
	}
	if r.PhoneNumber != nil {
		keys = append(keys, phoneKeyPrefix+*r.PhoneNumber)
	}
	sort.Strings(keys)
	return keys
}

func (r Request) fields() map[string]any {
	fields := map[string]any{}
	if r.Email != nil {
		fields["email"] = *r.Email
	}
	if r.PhoneNumber != nil {
		fields["phone_number"] = *r.PhoneNumber
	}
	return fields
}
