package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityWebhook                      // Shared secret from the payment collaborator
	SecurityAccess                       // Bearer access token required
)

// EndpointSecurityConfig maps HTTP route names to their required security level.
// Routes missing from the map require an access token.
var EndpointSecurityConfig = map[string]SecurityLevel{
	"Health": SecurityPublic,

	"PaymentWebhook": SecurityWebhook,

	"CreateBooking":         SecurityAccess,
	"GetBooking":            SecurityAccess,
	"ListMyBookings":        SecurityAccess,
	"AttachDriver":          SecurityAccess,
	"PayBooking":            SecurityAccess,
	"QuoteCancellation":     SecurityAccess,
	"CancelBooking":         SecurityAccess,
	"CheckIn":               SecurityAccess,
	"CheckOut":              SecurityAccess,
	"LeaveReview":           SecurityAccess,
	"RegisterDriver":        SecurityAccess,
	"GetDriver":             SecurityAccess,
	"GetDriverVerification": SecurityAccess,
	"SubmitDocument":        SecurityAccess,
	"VerifyDocument":        SecurityAccess,
	"RejectDocument":        SecurityAccess,
}

// RequiredSecurityLevel returns the level for a route, defaulting to SecurityAccess.
func RequiredSecurityLevel(route string) SecurityLevel {
	if lvl, ok := EndpointSecurityConfig[route]; ok {
		return lvl
	}
	return SecurityAccess
}
