package models

// Roles carried by the externally issued identity token. Token issuance and
// refresh happen outside this service; we only consume the verified claims.
const (
	RolePatient   = "patient"
	RoleClinician = "clinician"
)

// Identity is a verified principal behind a connection or HTTP request.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
