package sdk

import (
	"encoding/json"
	"fmt"
)

// Known user record keys as returned by the directory API.
const (
	fieldID                = "id"
	fieldUserPrincipalName = "userPrincipalName"
	fieldDisplayName       = "displayName"
	fieldMail              = "mail"
)

// User is a snapshot of a directory user record.
// Fields this client does not interpret are kept in Extra so they survive re-encoding.
type User struct {
	ID                string
	UserPrincipalName string
	DisplayName       string
	Mail              string

	Extra map[string]json.RawMessage

	// blank holds known keys that arrived as null or "", keyed to their raw value.
	blank map[string]json.RawMessage
}

// UnmarshalJSON decodes the known fields and keeps everything else in Extra.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*u = User{}
	known := map[string]*string{
		fieldID:                &u.ID,
		fieldUserPrincipalName: &u.UserPrincipalName,
		fieldDisplayName:       &u.DisplayName,
		fieldMail:              &u.Mail,
	}

	for key, value := range raw {
		target, ok := known[key]
		if !ok {
			if u.Extra == nil {
				u.Extra = make(map[string]json.RawMessage)
			}
			u.Extra[key] = value
			continue
		}
		// null leaves the field empty
		if err := json.Unmarshal(value, target); err != nil {
			return fmt.Errorf("invalid %s in user record: %w", key, err)
		}
		if *target == "" {
			if u.blank == nil {
				u.blank = make(map[string]json.RawMessage)
			}
			u.blank[key] = value
		}
	}
	return nil
}

// MarshalJSON writes the known fields merged over Extra. Known keys that were
// decoded as null or "" are written back the same way.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+4)
	for key, value := range u.Extra {
		out[key] = value
	}

	setIfPresent := func(key, value string) {
		if value != "" {
			out[key] = value
		} else if raw, ok := u.blank[key]; ok {
			out[key] = raw
		}
	}
	setIfPresent(fieldID, u.ID)
	setIfPresent(fieldUserPrincipalName, u.UserPrincipalName)
	setIfPresent(fieldDisplayName, u.DisplayName)
	setIfPresent(fieldMail, u.Mail)

	return json.Marshal(out)
}

// CreateUserInput holds the values needed to create a directory user.
type CreateUserInput struct {
	DisplayName string
	// Username is the local part of the principal name and the mail nickname.
	Username string
	// Password is validated by the directory service, not locally.
	Password string
}

type createUserRequest struct {
	AccountEnabled    bool            `json:"accountEnabled"`
	DisplayName       string          `json:"displayName"`
	MailNickname      string          `json:"mailNickname"`
	UserPrincipalName string          `json:"userPrincipalName"`
	PasswordProfile   passwordProfile `json:"passwordProfile"`
}

type passwordProfile struct {
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
	Password                      string `json:"password"`
}

type userCollection struct {
	Value []User `json:"value"`
}

type graphErrorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
