package handler

const (
	// BaseLayout is the default path for layout templates.
	BaseLayout = "layouts/base"

	// RootPath is the root path the route group.
	RootPath = "/"

	// ErrorTemplate renders failed requests.
	ErrorTemplate = "error"

	// CurrentUserLocal is the fiber.Locals key holding the authenticated *models.User.
	CurrentUserLocal = "CurrentUser"
)
