package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyRequest_PhoneNumberStringOrNumber(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEmail *string
		wantPhone *string
		wantErr   bool
	}{
		{name: "string phone", body: `{"phoneNumber":"123456"}`, wantPhone: strPtr("123456")},
		{name: "numeric phone", body: `{"phoneNumber":123456}`, wantPhone: strPtr("123456")},
		{name: "null phone", body: `{"email":"a@x.com","phoneNumber":null}`, wantEmail: strPtr("a@x.com")},
		{name: "missing both", body: `{}`},
		{name: "boolean phone", body: `{"phoneNumber":true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req IdentifyRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmail, req.Email)
			assert.Equal(t, tt.wantPhone, req.PhoneNumber.StringPtr())
		})
	}
}

func TestContactSummary_JSONShape(t *testing.T) {
	body, err := json.Marshal(IdentifyResponse{Contact: ContactSummary{
		PrimaryContactID:    1,
		Emails:              []string{"a@x.com"},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"contact":{"primaryContactId":1,"emails":["a@x.com"],"phoneNumbers":[],"secondaryContactIds":[]}}`, string(body))
}

func TestContact_Matches(t *testing.T) {
	c := Contact{Email: strPtr("a@x.com"), LinkPrecedence: LinkPrecedencePrimary}
	assert.True(t, c.IsPrimary())
	assert.True(t, c.HasEmail("a@x.com"))
	assert.False(t, c.HasEmail("A@x.com"))
	assert.False(t, c.HasPhoneNumber("123"))
}

func strPtr(s string) *string { return &s }
