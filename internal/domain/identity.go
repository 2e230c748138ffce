package domain

// Credentials is the body of the e-mail/password sign-up and login endpoints.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body for POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// FederatedSignIn is the body for POST /v1/auth/google.
type FederatedSignIn struct {
	IDToken string `json:"idToken"`
}

// AuthSession is returned by every successful sign-in.
type AuthSession struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// Identity is what the rest of the API knows about the caller: a verified
// user id and, when available, the e-mail.
type Identity struct {
	UserID string
	Email  string
}

// Profile is returned by GET /v1/me.
type Profile struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	IsPremium bool   `json:"isPremium"`
	ShowAds   bool   `json:"showAds"`
}

// GreetingRequest is the body for POST /v1/greeting.
type GreetingRequest struct {
	Name string `json:"name"`
}

// GreetingResponse carries the greeting text.
type GreetingResponse struct {
	Message   string `json:"message"`
	Simulated bool   `json:"simulated"`
}

// PremiumUpdate is the body for PUT /v1/me/premium.
type PremiumUpdate struct {
	IsPremium bool `json:"isPremium"`
}
