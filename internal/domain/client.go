package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	minClientNameLength = 3
	minClientAge        = 18
)

// Client is the holder of one or more accounts.
type Client struct {
	ID        uuid.UUID
	Name      string
	CPF       string
	Email     string
	BirthDate time.Time
	Phone     string
	Active    bool
	CreatedAt time.Time
}

// NewClient validates and builds an active client.
func NewClient(name, cpf, email string, birthDate time.Time, phone string, now time.Time) (*Client, error) {
	c := &Client{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		CPF:       strings.TrimSpace(cpf),
		Email:     strings.TrimSpace(email),
		BirthDate: birthDate,
		Phone:     strings.TrimSpace(phone),
		Active:    true,
		CreatedAt: now.UTC(),
	}
	if err := c.validate(now); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) validate(now time.Time) error {
	if utf8.RuneCountInString(c.Name) < minClientNameLength {
		return Errorf(ErrInvalidClient, "name must have at least %d characters", minClientNameLength)
	}
	if c.CPF == "" {
		return Errorf(ErrInvalidClient, "cpf is required")
	}
	if c.Email == "" {
		return Errorf(ErrInvalidClient, "email is required")
	}
	if c.Phone == "" {
		return Errorf(ErrInvalidClient, "phone is required")
	}
	if c.BirthDate.IsZero() {
		return Errorf(ErrInvalidClient, "birth date is required")
	}
	if Age(c.BirthDate, now) < minClientAge {
		return Errorf(ErrInvalidClient, "client must be at least %d years old", minClientAge)
	}
	return nil
}

// Age returns completed years between birth and now.
func Age(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

func (c *Client) Activate()   { c.Active = true }
func (c *Client) Deactivate() { c.Active = false }

// UpdateContact replaces non-blank contact fields.
func (c *Client) UpdateContact(email, phone string) {
	if s := strings.TrimSpace(email); s != "" {
		c.Email = s
	}
	if s := strings.TrimSpace(phone); s != "" {
		c.Phone = s
	}
}
