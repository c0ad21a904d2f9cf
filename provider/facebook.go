package provider

import "golang.org/x/oauth2"

const facebookUserInfoURL = "https://graph.facebook.com/v18.0/me?fields=id,name,email,picture"

var facebookEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.facebook.com/v18.0/dialog/oauth",
	TokenURL: "https://graph.facebook.com/v18.0/oauth/access_token",
}

type facebookUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// NewFacebook builds the Facebook adapter. Accounts registered with a
// phone number carry no email, which surfaces as ErrEmailNotAvailable.
func NewFacebook(cfg Config) Adapter {
	return newRESTAdapter(
		"facebook",
		&oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     facebookEndpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		facebookUserInfoURL,
		decodeFacebookIdentity,
	)
}

func decodeFacebookIdentity(body []byte) (*Identity, error) {
	var user facebookUser
	if err := decodeJSON(body, &user); err != nil {
		return nil, err
	}

	return &Identity{
		ProviderUserID: user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Picture:        user.Picture.Data.URL,
	}, nil
}
