package provider

import "golang.org/x/oauth2"

const discordUserInfoURL = "https://discord.com/api/users/@me"

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
}

// NewDiscord builds the Discord adapter. The email scope only yields an
// address when the Discord account itself is verified.
func NewDiscord(cfg Config) Adapter {
	return newRESTAdapter(
		"discord",
		&oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     discordEndpoint,
			Scopes:       []string{"identify", "email"},
		},
		discordUserInfoURL,
		decodeDiscordIdentity,
	)
}

func decodeDiscordIdentity(body []byte) (*Identity, error) {
	var user discordUser
	if err := decodeJSON(body, &user); err != nil {
		return nil, err
	}

	name := user.GlobalName
	if name == "" {
		name = user.Username
	}

	var picture string
	if user.Avatar != "" && user.ID != "" {
		picture = "https://cdn.discordapp.com/avatars/" + user.ID + "/" + user.Avatar + ".png"
	}

	return &Identity{
		ProviderUserID: user.ID,
		Email:          user.Email,
		Name:           name,
		Picture:        picture,
	}, nil
}
