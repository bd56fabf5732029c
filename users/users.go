package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Identity is the result of the identity check (GET /api/users/me)
type Identity struct {
	Username        string `json:"username"`
	UserID          string `json:"userId"`
	IsEmailVerified bool   `json:"isEmailVerified"`
	AuthProvider    string `json:"authProvider"`
}

// Millis is a timestamp the backend encodes as milliseconds since the epoch
type Millis struct {
	time.Time
}

func (m Millis) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(m.UnixMilli(), 10)), nil
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		m.Time = time.Time{}
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("[users Millis] %s is not an epoch-millisecond timestamp: %w", data, err)
	}
	m.Time = time.UnixMilli(int64(ms))
	return nil
}

// Message is the {messageTitle, message} envelope most account endpoints reply with
type Message struct {
	MessageTitle string `json:"messageTitle"`
	Message      string `json:"message"`
}

// LoginResponse is returned by password and Google login
type LoginResponse struct {
	Message
	Username             string `json:"username"`
	UserID               string `json:"userId"`
	IsEmailVerified      bool   `json:"isEmailVerified"`
	AccessTokenExpiresAt Millis `json:"accessTokenExpiresAt"`
}

type Credentials struct {
	EmailAddress string `json:"emailAddress"`
	Password     string `json:"password"`
}

type Signup struct {
	Username     string `json:"username"`
	EmailAddress string `json:"emailAddress"`
	Password     string `json:"password"`
}

// UserRef is a Message that names the user an action applies to
type UserRef struct {
	Message
	UserID string `json:"userId"`
}

type refreshResponse struct {
	AccessTokenExpiresAt Millis `json:"accessTokenExpiresAt"`
}
