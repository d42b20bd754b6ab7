package models

import (
	"strconv"
	"time"
)

type Severity string

const (
	SeverityUnknown  Severity = "UNKNOWN"
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
	SeverityExtreme  Severity = "EXTREME"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityUnknown, SeverityMinor, SeverityModerate, SeveritySevere, SeverityExtreme:
		return true
	}
	return false
}

type AlertStatus string

const (
	StatusDraft           AlertStatus = "DRAFT"
	StatusPendingApproval AlertStatus = "PENDING_APPROVAL"
	StatusApproved        AlertStatus = "APPROVED"
	StatusDelivered       AlertStatus = "DELIVERED"
	StatusRejected        AlertStatus = "REJECTED"
	StatusCancelled       AlertStatus = "CANCELLED"
	StatusExpired         AlertStatus = "EXPIRED"
)

// Terminal reports whether no further transition is legal from s.
func (s AlertStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (s AlertStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusDelivered,
		StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type ChannelType string

const (
	ChannelEmail     ChannelType = "EMAIL"
	ChannelSMS       ChannelType = "SMS"
	ChannelPush      ChannelType = "PUSH"
	ChannelBroadcast ChannelType = "BROADCAST"
)

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelBroadcast:
		return true
	}
	return false
}

// Point is one polygon vertex, longitude first to match GeoJSON ordering.
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Area is owned by exactly one Alert. The polygon is a closed ring: the
// first and last points are equal.
type Area struct {
	Description string  `json:"description"`
	Polygon     []Point `json:"polygon"`
	RegionCode  string  `json:"regionCode,omitempty"`
}

type Alert struct {
	ID              string
	Headline        string
	Description     string
	Severity        Severity
	Channel         ChannelType
	Status          AlertStatus
	Areas           []Area
	ExpiresAt       time.Time
	CreatedBy       string
	ApproverID      string // set by approve and reject
	RejectionReason string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// VersionToken renders the version counter as the opaque precondition value
// handed to API callers.
func (a *Alert) VersionToken() string {
	return strconv.FormatInt(a.Version, 10)
}
