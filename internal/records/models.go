package records

import "time"

// Field names of a client record that are encrypted at rest.
const (
	FieldSSN         = "ssn"
	FieldDiagnosis   = "diagnosis"
	FieldMedications = "medications"
	FieldPhone       = "phone"
	FieldEmail       = "email"
)

// EncryptedFields lists every PHI column sealed by the crypto engine before storage.
var EncryptedFields = []string{FieldSSN, FieldDiagnosis, FieldMedications, FieldPhone, FieldEmail}

// Client is a care recipient as returned to API callers.
type Client struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SSN         string    `json:"ssn,omitempty"`
	Diagnosis   string    `json:"diagnosis,omitempty"`
	Medications string    `json:"medications,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Unreadable lists fields whose stored ciphertext failed to decrypt.
	Unreadable []string `json:"unreadable_fields,omitempty"`
}

// CreateClientRequest is the payload for creating a client.
type CreateClientRequest struct {
	Name        string `json:"name"`
	SSN         string `json:"ssn"`
	Diagnosis   string `json:"diagnosis"`
	Medications string `json:"medications"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// ListResponse wraps a page of clients.
type ListResponse struct {
	Items []Client `json:"items"`
	Total int      `json:"total"`
}

// row is the stored shape: PHI fields hold tokens, never plaintext.
type row map[string]any

func (r row) str(key string) string {
	s, _ := r[key].(string)
	return s
}
