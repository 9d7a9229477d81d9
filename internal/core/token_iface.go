package core

import "context"

// TokenService issues short-lived access credentials for the media service.
type TokenService interface {
	FetchToken(ctx context.Context) (string, error)
}
