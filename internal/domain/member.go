package domain

import (
	"time"

	"github.com/google/uuid"
)

// MemberStatus enumerates the lifecycle states of a cooperative member.
// A member becomes active when their membership fee payment settles.
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

// Member represents one cooperative member.
type Member struct {
	ID           uuid.UUID    `json:"id"`
	MemberNumber string       `json:"member_number"`
	FullName     string       `json:"full_name"`
	Status       MemberStatus `json:"status"`
	JoinedAt     *time.Time   `json:"joined_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// RegisterMemberRequest is the DTO for registering a new member. The member
// stays pending until the membership fee is paid.
type RegisterMemberRequest struct {
	MemberNumber string `json:"member_number"`
	FullName     string `json:"full_name"`
}
