package supabase

// sessionResponse is the body of /token and, when auto-confirm is on, /signup
type sessionResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         *userDTO `json:"user"`
}

// userDTO is the account record returned by /user, /signup and inside sessions
type userDTO struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
	AppMetadata  appMetadata  `json:"app_metadata"`
}

type userMetadata struct {
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type appMetadata struct {
	Provider string `json:"provider,omitempty"`
}

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type pkceRequest struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

type updateUserRequest struct {
	Data map[string]any `json:"data"`
}

// errorResponse covers the error shapes GoTrue has used across versions
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}
