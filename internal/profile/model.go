package profile

// Profile is the public display data of a user
type Profile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	ChurchID    *string `json:"church_id,omitempty"`
}
