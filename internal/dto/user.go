package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// UserDocument is the stored shape of a user profile.
// It uses "mapstructure" tags to match the camelCase keys written by the
// web client, so frontmatter, jsonb rows and JSON blobs decode alike.
type UserDocument struct {
	ID            string `json:"id" mapstructure:"id"`
	FirstName     string `json:"firstName,omitempty" mapstructure:"firstName"`
	LastName      string `json:"lastName,omitempty" mapstructure:"lastName"`
	Email         string `json:"email,omitempty" mapstructure:"email"`
	Image         string `json:"image,omitempty" mapstructure:"image"`
	Role          string `json:"role,omitempty" mapstructure:"role"`
	Phone         string `json:"phone,omitempty" mapstructure:"phone"`
	EmailVerified bool   `json:"emailVerified,omitempty" mapstructure:"emailVerified"`
	VerifiedAt    int64  `json:"verifiedAt,omitempty" mapstructure:"verifiedAt"`
	CreatedAt     int64  `json:"createdAt,omitempty" mapstructure:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt" mapstructure:"updatedAt"`
}

// DecodeUser converts a loosely typed field map into a UserRecord.
// Timestamps may be numbers, json.Number, numeric strings, RFC3339 strings
// or time.Time values; all end up as unix milliseconds.
// Unknown keys are ignored. A document without updatedAt decodes with zero.
func DecodeUser(fields map[string]any) (domain.UserRecord, error) {
	var doc UserDocument
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       millisHook,
		Result:           &doc,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return domain.UserRecord{}, err
	}
	if err := dec.Decode(fields); err != nil {
		return domain.UserRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	return doc.Record(), nil
}

// UnmarshalUser decodes a JSON document body into a UserRecord.
func UnmarshalUser(data []byte) (domain.UserRecord, error) {
	var fields map[string]any
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	if err := d.Decode(&fields); err != nil {
		return domain.UserRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	return DecodeUser(fields)
}

// EncodeUser flattens a UserRecord into a field map suitable for frontmatter.
// Empty optional fields are omitted.
func EncodeUser(u domain.UserRecord) map[string]any {
	fields := map[string]any{
		"id":        u.ID,
		"updatedAt": u.UpdatedAt,
	}
	put := func(key, v string) {
		if v != "" {
			fields[key] = v
		}
	}
	put("firstName", u.FirstName)
	put("lastName", u.LastName)
	put("email", u.Email)
	put("image", u.Image)
	put("role", u.Role)
	put("phone", u.Phone)
	if u.EmailVerified {
		fields["emailVerified"] = true
	}
	if u.VerifiedAt != 0 {
		fields["verifiedAt"] = u.VerifiedAt
	}
	if u.CreatedAt != 0 {
		fields["createdAt"] = u.CreatedAt
	}
	return fields
}

// Record converts the document into the domain type.
func (d UserDocument) Record() domain.UserRecord {
	return domain.UserRecord{
		ID:            d.ID,
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		Email:         d.Email,
		Image:         d.Image,
		Role:          d.Role,
		Phone:         d.Phone,
		EmailVerified: d.EmailVerified,
		VerifiedAt:    d.VerifiedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

var int64Type = reflect.TypeOf(int64(0))

// millisHook normalises timestamp representations into unix milliseconds.
func millisHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != int64Type {
		return data, nil
	}

	switch v := data.(type) {
	case time.Time:
		return v.UnixMilli(), nil
	case *time.Time:
		if v == nil {
			return int64(0), nil
		}
		return v.UnixMilli(), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q", v)
		}
		return int64(f), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return int64(0), nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q", v)
		}
		return t.UnixMilli(), nil
	}
	return data, nil
}
