package validator

import (
	"strings"
	"testing"
)

func ptr(s string) *string { return &s }

func TestValidateProfile(t *testing.T) {
	tests := []struct {
		name      string
		first     *string
		image     *string
		wantField string
	}{
		{"all nil", nil, nil, ""},
		{"valid", ptr("Ann"), ptr("https://cdn.example.com/a.png"), ""},
		{"blank first name", ptr("  "), nil, "first_name"},
		{"long first name", ptr(strings.Repeat("a", 101)), nil, "first_name"},
		{"relative image", ptr("Ann"), ptr("/a.png"), "image"},
		{"cleared image", ptr("Ann"), ptr(""), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateProfile(tt.first, nil, tt.image)
			assertField(t, errs, tt.wantField)
		})
	}
}

func TestValidateTags(t *testing.T) {
	assertField(t, ValidateTags(nil), "tags")
	assertField(t, ValidateTags([]string{"billing", "returns"}), "")
	assertField(t, ValidateTags([]string{"billing", "has space"}), "tags")
	assertField(t, ValidateTag(""), "tag")
	assertField(t, ValidateTag("billing.eu"), "")
}

func TestValidateRoom(t *testing.T) {
	assertField(t, ValidateRoom(nil, nil), "user_ids")
	assertField(t, ValidateRoom([]string{"u2", ""}, nil), "user_ids")
	assertField(t, ValidateRoom([]string{"u2", "u3"}, ptr(" ")), "name")
	assertField(t, ValidateRoom([]string{"u2", "u3"}, ptr("team")), "")
}

func TestValidateText(t *testing.T) {
	assertField(t, ValidateText("hi"), "")
	assertField(t, ValidateText(""), "text")
	assertField(t, ValidateText(" \t"), "")
	assertField(t, ValidateText(strings.Repeat("x", maxTextLength+1)), "text")
}

func TestValidateAttachment(t *testing.T) {
	assertField(t, ValidateAttachment(nil, "a.png", "image/png", nil), "")
	assertField(t, ValidateAttachment(nil, "a.bin", "", nil), "")
	assertField(t, ValidateAttachment(nil, "", "image/png", nil), "filename")
	assertField(t, ValidateAttachment(nil, "a.png", "png", nil), "mime_type")
	assertField(t, ValidateAttachment(nil, "a.png", "image/png", ptr("ftp://x/a.png")), "url")
	assertField(t, ValidateAttachment(nil, "a.png", "image/png", ptr("https://cdn.example.com/a.png")), "")
}

func assertField(t *testing.T, errs ValidationErrors, field string) {
	t.Helper()
	if field == "" {
		if errs.HasErrors() {
			t.Fatalf("unexpected errors: %v", errs)
		}
		return
	}
	if _, ok := errs[field]; !ok {
		t.Fatalf("errors %v do not mention %q", errs, field)
	}
}
