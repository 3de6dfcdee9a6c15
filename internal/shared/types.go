package shared

// KeyMetadata describes the owner of an API key accepted by the guard.
type KeyMetadata struct {
	KeyID   uint64 `json:"key_id"`
	OwnerID uint64 `json:"owner_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Active  bool   `json:"active"`
	APIKey  string `json:"-"`
}
