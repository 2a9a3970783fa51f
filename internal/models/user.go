package models

import "time"

// User is the immutable identity anchor created at signup. Password and SSN
// are stored only as one-way bcrypt hashes and never serialized.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	SSNHash      string    `json:"-"`
	Phone        string    `json:"phone"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	DateOfBirth  string    `json:"date_of_birth"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	ZipCode      string    `json:"zip_code"`
	CreatedAt    time.Time `json:"created_at"`
}
