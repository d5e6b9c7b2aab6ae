package scheduling

import "time"

// DateTimeLayout is the wire format the scheduling service uses for
// appointment timestamps ("dd/MM/yyyy HH:mm").
const DateTimeLayout = "02/01/2006 15:04"

type Dentist struct {
	CRO      string `json:"cro"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"lastName,omitempty"`
}

type Patient struct {
	RG       string `json:"rg"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"lastName,omitempty"`
}

// Appointment is the authoritative record served by the scheduling service.
type Appointment struct {
	ID          int     `json:"id"`
	Description string  `json:"description"`
	DateAndTime string  `json:"dateAndTime"`
	DentistCRO  string  `json:"dentistCRO"`
	PatientRG   string  `json:"patientRG"`
	Dentist     Dentist `json:"dentist"`
	Patient     Patient `json:"patient"`
}

// StartsAt parses the appointment's scheduled date and time.
func (a Appointment) StartsAt() (time.Time, error) {
	return time.Parse(DateTimeLayout, a.DateAndTime)
}

// PatientDocument prefers the nested patient summary and falls back to the
// flat field older scheduling-service versions emit.
func (a Appointment) PatientDocument() string {
	if a.Patient.RG != "" {
		return a.Patient.RG
	}
	return a.PatientRG
}

// DentistLicense prefers the nested dentist summary, same fallback rule.
func (a Appointment) DentistLicense() string {
	if a.Dentist.CRO != "" {
		return a.Dentist.CRO
	}
	return a.DentistCRO
}
