package identity

import (
	"fmt"
	"time"
)

// Doctor is the practitioner account that owns patients and appointments.
type Doctor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Specialty    string    `json:"specialty"`
	Phone        *string   `json:"phone,omitempty"`
	Address      *string   `json:"address,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Gender is the optional patient gender.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is one of the accepted values.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Patient is a person receiving care, owned by exactly one doctor.
type Patient struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	DateOfBirth    *string   `json:"dateOfBirth,omitempty"`
	Gender         *Gender   `json:"gender,omitempty"`
	Address        *string   `json:"address,omitempty"`
	MedicalHistory *string   `json:"medicalHistory,omitempty"`
	DoctorID       string    `json:"doctorId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PatientUpdate carries the fields a patient edit changes. DoctorID is
// present only so an attempt to reassign a patient can be rejected.
type PatientUpdate struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	DateOfBirth    *string `json:"dateOfBirth,omitempty"`
	Gender         *Gender `json:"gender,omitempty"`
	Address        *string `json:"address,omitempty"`
	MedicalHistory *string `json:"medicalHistory,omitempty"`
	DoctorID       *string `json:"doctorId,omitempty"`
}

// Registration is the sign-up form for a new doctor account.
type Registration struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Specialty string `json:"specialty"`
}

// Session is the authenticated context a scheduling workspace is bound to.
// Doctor is nil while no doctor is signed in.
type Session struct {
	Doctor *Doctor
}

// Authenticated reports whether a doctor is present.
func (s Session) Authenticated() bool { return s.Doctor != nil }

// DoctorID returns the signed-in doctor's id, or "".
func (s Session) DoctorID() string {
	if s.Doctor == nil {
		return ""
	}
	return s.Doctor.ID
}

func (s Session) String() string {
	if s.Doctor == nil {
		return "session(anonymous)"
	}
	return fmt.Sprintf("session(%s)", s.Doctor.ID)
}
