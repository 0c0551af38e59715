package domain

// ============================================================
// Auth — Request / Response types (matches backend API contract)
// ============================================================

// User is the account record returned by login and GET /api/auth/me.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// LoginResponse is the body for 200 from POST /api/auth/login.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// SignupRequest is the body for POST /api/auth/signup.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
