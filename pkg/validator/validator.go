package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

const (
	maxNameLength     = 100
	maxTagLength      = 64
	maxTags           = 30
	maxRoomMembers    = 256
	maxTextLength     = 10000
	maxFilenameLength = 255
)

var tagRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
var mimeRegex = regexp.MustCompile(`^[a-zA-Z0-9!#$&^_.+-]+/[a-zA-Z0-9!#$&^_.+-]+$`)

func ValidateProfile(firstName, lastName, image *string) ValidationErrors {
	errs := make(ValidationErrors)

	validateName("first_name", "First name", firstName, errs)
	validateName("last_name", "Last name", lastName, errs)

	if image != nil && *image != "" && !isHTTPURL(*image) {
		errs.Add("image", "Image must be an http(s) URL")
	}

	return errs
}

func ValidateTags(tags []string) ValidationErrors {
	errs := make(ValidationErrors)

	if len(tags) == 0 {
		errs.Add("tags", "At least one tag is required")
		return errs
	}
	if len(tags) > maxTags {
		errs.Add("tags", fmt.Sprintf("At most %d tags are allowed", maxTags))
		return errs
	}
	for _, tag := range tags {
		if msg := tagError(tag); msg != "" {
			errs.Add("tags", msg)
			break
		}
	}

	return errs
}

func ValidateTag(tag string) ValidationErrors {
	errs := make(ValidationErrors)
	if msg := tagError(tag); msg != "" {
		errs.Add("tag", msg)
	}
	return errs
}

func ValidateRoom(userIDs []string, name *string) ValidationErrors {
	errs := make(ValidationErrors)

	if len(userIDs) == 0 {
		errs.Add("user_ids", "At least one other user is required")
	} else if len(userIDs) > maxRoomMembers {
		errs.Add("user_ids", "Too many users")
	} else {
		for _, id := range userIDs {
			if strings.TrimSpace(id) == "" {
				errs.Add("user_ids", "User ids must not be empty")
				break
			}
		}
	}

	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			errs.Add("name", "Room name must not be empty")
		} else if utf8.RuneCountInString(n) > maxNameLength {
			errs.Add("name", "Room name is too long")
		}
	}

	return errs
}

func ValidateText(text string) ValidationErrors {
	errs := make(ValidationErrors)

	if text == "" {
		errs.Add("text", "Message text is required")
	} else if utf8.RuneCountInString(text) > maxTextLength {
		errs.Add("text", "Message text is too long")
	}

	return errs
}

// ValidateAttachment checks the caption and file metadata of an attachment
// message. url is only checked when non-nil.
func ValidateAttachment(caption *string, filename, mimeType string, fileURL *string) ValidationErrors {
	errs := make(ValidationErrors)

	if caption != nil && utf8.RuneCountInString(*caption) > maxTextLength {
		errs.Add("text", "Caption is too long")
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		errs.Add("filename", "File name is required")
	} else if len(filename) > maxFilenameLength {
		errs.Add("filename", "File name is too long")
	}

	if mimeType != "" && !mimeRegex.MatchString(mimeType) {
		errs.Add("mime_type", "Invalid MIME type")
	}

	if fileURL != nil {
		if strings.TrimSpace(*fileURL) == "" {
			errs.Add("url", "File URL is required")
		} else if !isHTTPURL(*fileURL) {
			errs.Add("url", "File URL must be an http(s) URL")
		}
	}

	return errs
}

func validateName(field, label string, value *string, errs ValidationErrors) {
	if value == nil {
		return
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		errs.Add(field, label+" must not be empty")
	} else if utf8.RuneCountInString(v) > maxNameLength {
		errs.Add(field, label+" is too long")
	}
}

func tagError(tag string) string {
	tag = strings.TrimSpace(tag)
	switch {
	case tag == "":
		return "Tags must not be empty"
	case len(tag) > maxTagLength:
		return "Tag is too long"
	case !tagRegex.MatchString(tag):
		return "Tags can only contain letters, numbers, _, . and -"
	}
	return ""
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
