package domain

// OTCPINSource records which input decided the permission.
type OTCPINSource string

const (
	OTCPINSourceUserData        OTCPINSource = "user_data"
	OTCPINSourceStorageGranted  OTCPINSource = "storage_granted"
	OTCPINSourceStorageDisabled OTCPINSource = "storage_disabled"
	OTCPINSourceDefault         OTCPINSource = "default"
	OTCPINSourceError           OTCPINSource = "error"
)

// OTCPINStatus says whether the member may change their PIN.
type OTCPINStatus struct {
	Granted bool         `json:"granted"`
	Source  OTCPINSource `json:"source"`
	Value   string       `json:"value"`
}
