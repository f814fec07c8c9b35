package models

import "time"

// CustomerProfile is the authoritative customer record held by the backend.
type CustomerProfile struct {
	ID             string `json:"id"`
	IdentityNumber string `json:"identityNumber,omitempty"`
	BirthDate      string `json:"birthDate,omitempty"`
	FullName       string `json:"fullName,omitempty"`
	CityID         string `json:"cityId,omitempty"`
	DistrictID     string `json:"districtId,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	Job            string `json:"job,omitempty"`
}

// IsComplete reports whether the profile carries everything the purchase flow
// needs: full name, birth date, city and district.
func (p *CustomerProfile) IsComplete() bool {
	return p.FullName != "" && p.BirthDate != "" && p.CityID != "" && p.DistrictID != ""
}

// ProfileUpdate is a partial profile update. Nil fields are not sent, so an
// update never nulls out data already present server-side.
type ProfileUpdate struct {
	FullName   *string `json:"fullName,omitempty"`
	BirthDate  *string `json:"birthDate,omitempty"`
	CityID     *string `json:"cityId,omitempty"`
	DistrictID *string `json:"districtId,omitempty"`
	Email      *string `json:"email,omitempty"`
	Job        *string `json:"job,omitempty"`
}

// IsEmpty reports whether the update carries no fields at all.
func (u *ProfileUpdate) IsEmpty() bool {
	return u.FullName == nil && u.BirthDate == nil && u.CityID == nil &&
		u.DistrictID == nil && u.Email == nil && u.Job == nil
}

// City is an address-lookup entry.
type City struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// District is an address-lookup entry scoped to a city.
type District struct {
	ID     string `json:"id"`
	CityID string `json:"cityId"`
	Name   string `json:"name"`
}

// IdentitySession tracks a single OTP challenge from issue to verification.
type IdentitySession struct {
	Token       string      `json:"token"`
	Phone       PhoneNumber `json:"phone"`
	CodeHash    string      `json:"code_hash,omitempty"` // set only by the local OTP provider
	Deadline    time.Time   `json:"deadline"`
	Attempts    int         `json:"attempts"`
	CustomerID  string      `json:"customer_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	LastRequest LoginRequest `json:"last_request"`
}

// Expired reports whether the countdown deadline has passed.
func (s *IdentitySession) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}
