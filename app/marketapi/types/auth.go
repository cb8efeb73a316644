package types

// User is an admin account. Hash is a bcrypt hash.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

// LoginRequest contains credentials for admin authentication
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
