package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxUsernameLength    = 80
	maxDescriptionLength = 1000
)

type Profile struct {
	Email          string  `json:"email"`
	Username       *string `json:"username"`
	Description    *string `json:"description"`
	ProfilePicture *string `json:"profile_picture"`
}

// Field records whether a JSON key was present at all, so an explicit null
// can clear a value while an absent key leaves it alone.
type Field struct {
	Set   bool
	Value *string
}

func (f *Field) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		f.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f.Value = &s
	return nil
}

type Update struct {
	Username       Field `json:"username"`
	Description    Field `json:"description"`
	ProfilePicture Field `json:"profile_picture"`
}

var ErrNoFields = errors.New("at least one valid field must be provided")

// Normalize validates the update and escapes the free text. An empty or
// null username is ignored rather than cleared.
func (u Update) Normalize() (Update, error) {
	if !u.Username.Set && !u.Description.Set && !u.ProfilePicture.Set {
		return Update{}, ErrNoFields
	}

	var out Update

	if u.Username.Set && u.Username.Value != nil {
		name := html.EscapeString(strings.TrimSpace(*u.Username.Value))
		if name != "" {
			if !utf8.ValidString(name) || utf8.RuneCountInString(name) > maxUsernameLength {
				return Update{}, fmt.Errorf("username cannot be longer than %d characters", maxUsernameLength)
			}
			out.Username = Field{Set: true, Value: &name}
		}
	}

	if u.Description.Set {
		out.Description = Field{Set: true}
		if u.Description.Value != nil {
			if !utf8.ValidString(*u.Description.Value) {
				return Update{}, errors.New("description must be valid text")
			}
			description := html.EscapeString(strings.TrimSpace(*u.Description.Value))
			if utf8.RuneCountInString(description) > maxDescriptionLength {
				return Update{}, fmt.Errorf("description cannot be longer than %d characters", maxDescriptionLength)
			}
			out.Description.Value = &description
		}
	}

	if u.ProfilePicture.Set {
		out.ProfilePicture = Field{Set: true}
		if u.ProfilePicture.Value != nil && strings.TrimSpace(*u.ProfilePicture.Value) != "" {
			parsed, err := uuid.Parse(strings.TrimSpace(*u.ProfilePicture.Value))
			if err != nil {
				return Update{}, errors.New("profile_picture must be an image id")
			}
			id := parsed.String()
			out.ProfilePicture.Value = &id
		}
	}

	return out, nil
}
