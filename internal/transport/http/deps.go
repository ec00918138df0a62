package http

import (
	"github.com/birthday-notifier/internal/infrastructure/dynamo"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo *dynamo.UserRepo
}
