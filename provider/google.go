package provider

import "golang.org/x/oauth2"

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// NewGoogle builds the Google adapter. Offline access and forced consent
// are requested so a refresh token is issued on every authorization.
func NewGoogle(cfg Config) Adapter {
	a := newRESTAdapter(
		"google",
		&oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     googleEndpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		googleUserInfoURL,
		decodeGoogleIdentity,
	)
	a.authParams = []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	return a
}

func decodeGoogleIdentity(body []byte) (*Identity, error) {
	var info googleUserInfo
	if err := decodeJSON(body, &info); err != nil {
		return nil, err
	}

	return &Identity{
		ProviderUserID: info.ID,
		Email:          info.Email,
		Name:           info.Name,
		Picture:        info.Picture,
	}, nil
}
