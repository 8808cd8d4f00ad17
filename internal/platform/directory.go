package platform

import "context"

// TokenSource yields a valid access token for a site.
type TokenSource interface {
	GetValidToken(ctx context.Context, siteURL string) (string, error)
}

// Directory looks up people on behalf of a site using that site's token.
type Directory struct {
	client *Client
	tokens TokenSource
}

// NewDirectory creates a people directory over client.
func NewDirectory(client *Client, tokens TokenSource) *Directory {
	return &Directory{client: client, tokens: tokens}
}

// LookupPersonID returns the platform user id for email on siteURL.
func (d *Directory) LookupPersonID(ctx context.Context, siteURL, email string) (string, error) {
	tok, err := d.tokens.GetValidToken(ctx, siteURL)
	if err != nil {
		return "", err
	}
	return d.client.LookupPersonID(ctx, tok, email)
}
