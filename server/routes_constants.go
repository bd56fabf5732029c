package server

import "github.com/jrsteele09/readit-web/auth"

// Route path constants
// Paths the guards know about come from the auth package so both agree
const (
	RouteIndex = "/{$}"

	// Guest pages
	RouteLogin          = auth.PathLogin
	RouteSignup         = auth.PathSignup
	RouteForgotPassword = "/forgot-password"
	RouteResetPassword  = "/reset-password"
	RouteResetResend    = "/reset-password/resend"

	// Google sign-in
	RouteGoogleLogin    = "/auth/google"
	RouteGoogleCallback = "/auth/google/callback"

	RouteLogout = "/logout"

	// Email verification
	RouteVerifyEmail = auth.PathVerifyEmail

	// Signed-in pages
	RouteDashboard     = auth.PathDashboard
	RouteProfileMe     = auth.PathMe
	RouteProfile       = auth.PathUsers + "{id}"
	RouteSettings      = "/settings"
	RouteBooks         = "/books"
	RouteBookPurchase  = "/books/{id}/purchase"
	RouteBookRent      = "/books/{id}/rent"
	RouteWalletBuy     = "/wallet/buy"
	RouteNotifications = "/notifications"
	RouteNotification  = "/notifications/{id}/read"
	RouteRentals       = "/rentals"
	RouteRentalApprove = "/rentals/{id}/approve"
	RouteRentalReject  = "/rentals/{id}/reject"
	RouteRentalRate    = "/rentals/{id}/rate"
	RouteRentalCancel  = "/rentals/{id}/cancel"
	RouteRentalPickup  = "/rentals/{id}/pickup"
	RouteRentalReturn  = "/rentals/{id}/return"

	// Change password, one step per page
	RouteChangePasswordRequest = "/settings/change-password"
	RouteChangePasswordResend  = "/settings/change-password/resend"
	RouteChangePasswordCode    = auth.PathChangePasswordCode
	RouteChangePasswordNew     = auth.PathChangePasswordNew

	// API Routes
	RouteAPIValidatePassword = "/api/validate-password"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/"
)
