package fakeapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users/login", b.handleLogin)
	mux.HandleFunc("POST /api/users/google-login", b.handleGoogleLogin)
	mux.HandleFunc("POST /api/users/logout", b.handleLogout)
	mux.HandleFunc("POST /api/users/signup", b.handleSignup)
	mux.HandleFunc("GET /api/users/me", b.authed(b.handleMe))
	mux.HandleFunc("POST /api/users/refresh", b.handleRefresh)
	mux.HandleFunc("POST /api/users/send-verification-email", b.handleMessage("Verification email sent"))
	mux.HandleFunc("POST /api/users/resend-verification-code", b.handleMessage("Verification code resent"))
	mux.HandleFunc("POST /api/users/verify-email", b.handleVerifyEmail)
	mux.HandleFunc("POST /api/users/forgot-password", b.handleForgotPassword)
	mux.HandleFunc("POST /api/users/verify-reset-code", b.handleCode("Code verified"))
	mux.HandleFunc("POST /api/users/reset-password", b.handleCode("Password reset"))
	mux.HandleFunc("POST /api/users/resend-reset-code", b.handleMessage("Reset code resent"))
	mux.HandleFunc("POST /api/users/change-password/request-code", b.authed(b.handleAuthedMessage("Code sent")))
	mux.HandleFunc("POST /api/users/change-password/verify-code", b.authed(b.handleAuthedCode("Code verified")))
	mux.HandleFunc("POST /api/users/change-password/resend-code", b.authed(b.handleAuthedMessage("Code resent")))
	mux.HandleFunc("POST /api/users/change-password", b.authed(b.handleChangePassword))
	mux.HandleFunc("GET /api/users/username/{userId}", b.handleUsername)

	mux.HandleFunc("GET /api/dashboard/summary", b.authed(b.handleDashboard))
	mux.HandleFunc("GET /api/wallets/get-current-balance", b.authed(b.handleBalance))
	mux.HandleFunc("GET /api/wallets/get-reserved-amount", b.authed(b.handleReserved))
	mux.HandleFunc("GET /api/books/{$}", b.authed(b.handleBooks))
	mux.HandleFunc("GET /api/books/book-genres", b.handleGenres)
	mux.HandleFunc("POST /api/books/{$}", b.authed(b.handleSaveBook(http.StatusCreated)))
	mux.HandleFunc("PATCH /api/books/{id}", b.authed(b.handleSaveBook(http.StatusOK)))
	mux.HandleFunc("DELETE /api/books/{id}", b.authed(b.handleDeleteBook))
	mux.HandleFunc("GET /api/notifications", b.authed(b.handleNotifications))
	mux.HandleFunc("PATCH /api/notifications/{id}/mark-as-read", b.authed(b.handleAuthedMessage("Notification marked as read")))
	mux.HandleFunc("GET /api/rentals/my-rentals", b.authed(b.handleRentals))
	mux.HandleFunc("GET /api/rentals/my-lendings", b.authed(b.handleRentals))
	mux.HandleFunc("POST /api/rentals/{id}/approve", b.authed(b.handleAuthedMessage("Rental approved")))
	mux.HandleFunc("POST /api/rentals/{id}/reject", b.authed(b.handleAuthedMessage("Rental rejected")))
	mux.HandleFunc("POST /api/rentals/{id}/cancel", b.authed(b.handleAuthedMessage("Rental cancelled")))
	mux.HandleFunc("POST /api/rentals/{id}/confirm-pickup", b.authed(b.handleAuthedMessage("Pickup confirmed")))
	mux.HandleFunc("POST /api/rentals/{id}/confirm-return", b.authed(b.handleAuthedMessage("Return confirmed")))
	mux.HandleFunc("GET /api/rentals/check/{bookId}", b.authed(b.handleRentalCheck))
	mux.HandleFunc("POST /api/rentals/create", b.authed(b.handleCreateRental))
	mux.HandleFunc("POST /api/wallets/buy-readits", b.authed(b.handleBuyReadits))
	mux.HandleFunc("PATCH /api/wallets/update-reserved-amount", b.authed(b.handleAuthedMessage("Reserved amount updated")))
	mux.HandleFunc("POST /api/purchases/create", b.authed(b.handleAuthedMessage("Purchase created")))
	mux.HandleFunc("GET /api/purchases/check/{bookId}", b.authed(b.handlePurchaseCheck))
	mux.HandleFunc("POST /api/ratings/{rentalId}/rate", b.authed(b.handleAuthedMessage("Rating submitted")))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, body := b.record(r)
		r.Body = io.NopCloser(bytes.NewReader(body))

		b.mu.Lock()
		override, ok := b.overrides[route]
		b.mu.Unlock()
		if ok {
			override(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acc *Account)

// authed rejects requests without a live access cookie the way the backend does
func (b *Backend) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := b.authenticated(r)
		if acc == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
			return
		}
		h(w, r, acc)
	}
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, v)
}

func (b *Backend) loginResponse(w http.ResponseWriter, acc *Account) {
	b.mu.Lock()
	accessToken, exp := b.issueAccessLocked(acc.UserID)
	refreshToken := b.issueRefreshLocked(acc.UserID)
	b.mu.Unlock()

	setSessionCookies(w, accessToken, refreshToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"messageTitle":         "Login successful",
		"message":              "Welcome back, " + acc.Username,
		"username":             acc.Username,
		"userId":               acc.UserID,
		"isEmailVerified":      acc.EmailVerified,
		"accessTokenExpiresAt": exp.UnixMilli(),
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		EmailAddress string `json:"emailAddress"`
		Password     string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, message("Login failed", "Invalid request body."))
		return
	}

	b.mu.Lock()
	acc, ok := b.accounts[in.EmailAddress]
	b.mu.Unlock()
	if !ok || acc.Provider != "password" || acc.Password != in.Password {
		writeJSON(w, http.StatusUnauthorized, message("Login failed", "Invalid email or password."))
		return
	}
	b.loginResponse(w, acc)
}

func (b *Backend) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
	}
	if err := decode(r, &in); err != nil || in.Code == "" {
		writeJSON(w, http.StatusBadRequest, message("Google login failed", "Missing authorization code."))
		return
	}

	b.mu.Lock()
	email, ok := b.googleCodes[in.Code]
	delete(b.googleCodes, in.Code)
	acc := b.accounts[email]
	b.mu.Unlock()
	if !ok || acc == nil {
		writeJSON(w, http.StatusUnauthorized, message("Google login failed", "Invalid authorization code."))
		return
	}
	b.loginResponse(w, acc)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if c, err := r.Cookie(AccessCookie); err == nil {
		delete(b.access, c.Value)
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		delete(b.refresh, c.Value)
	}
	b.mu.Unlock()

	clearSessionCookies(w)
	writeJSON(w, http.StatusOK, message("Logged out", "You have been logged out."))
}

func (b *Backend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username     string `json:"username"`
		EmailAddress string `json:"emailAddress"`
		Password     string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, message("Signup failed", "Invalid request body."))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[in.EmailAddress]; exists {
		writeJSON(w, http.StatusConflict, message("Signup failed", "Email address is already registered."))
		return
	}
	acc := &Account{
		UserID:   uuid.NewString(),
		Username: in.Username,
		Email:    in.EmailAddress,
		Password: in.Password,
		Provider: "password",
	}
	b.accounts[acc.Email] = acc
	writeJSON(w, http.StatusCreated, map[string]any{
		"messageTitle": "Signup successful",
		"message":      "Check your inbox for a verification code.",
		"userId":       acc.UserID,
	})
}

func (b *Backend) handleMe(w http.ResponseWriter, _ *http.Request, acc *Account) {
	writeJSON(w, http.StatusOK, map[string]any{
		"username":        acc.Username,
		"userId":          acc.UserID,
		"isEmailVerified": acc.EmailVerified,
		"authProvider":    acc.Provider,
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	c, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, message("Session expired", "Missing refresh token."))
		return
	}

	b.mu.Lock()
	userID, ok := b.refresh[c.Value]
	var accessToken string
	var exp time.Time
	if ok {
		accessToken, exp = b.issueAccessLocked(userID)
	}
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, message("Session expired", "Invalid refresh token."))
		return
	}

	setSessionCookies(w, accessToken, "")
	writeJSON(w, http.StatusOK, map[string]any{"accessTokenExpiresAt": exp.UnixMilli()})
}

func (b *Backend) handleMessage(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, message(msg, msg+"."))
	}
}

func (b *Backend) handleAuthedMessage(msg string) authedHandler {
	return func(w http.ResponseWriter, _ *http.Request, _ *Account) {
		writeJSON(w, http.StatusOK, message(msg, msg+"."))
	}
}

func codeValid(r *http.Request) bool {
	var in struct {
		Code string `json:"code"`
	}
	return decode(r, &in) == nil && in.Code == ValidCode
}

func (b *Backend) handleCode(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !codeValid(r) {
			writeJSON(w, http.StatusBadRequest, message("Invalid code", "The code is invalid or has expired."))
			return
		}
		writeJSON(w, http.StatusOK, message(msg, msg+"."))
	}
}

func (b *Backend) handleAuthedCode(msg string) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *Account) {
		b.handleCode(msg)(w, r)
	}
}

func (b *Backend) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"userId"`
		Code   string `json:"code"`
	}
	if err := decode(r, &in); err != nil || in.Code != ValidCode {
		writeJSON(w, http.StatusBadRequest, message("Verification failed", "The code is invalid or has expired."))
		return
	}

	b.mu.Lock()
	acc := b.accountByIDLocked(in.UserID)
	if acc != nil {
		acc.EmailVerified = true
	}
	b.mu.Unlock()
	if acc == nil {
		writeJSON(w, http.StatusNotFound, message("Verification failed", "User not found."))
		return
	}
	writeJSON(w, http.StatusOK, message("Email verified", "Your email address has been verified."))
}

func (b *Backend) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		EmailAddress string `json:"emailAddress"`
	}
	_ = decode(r, &in)

	b.mu.Lock()
	acc, ok := b.accounts[in.EmailAddress]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, message("Reset failed", "No account uses that email address."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messageTitle": "Reset code sent",
		"message":      "Check your inbox for a reset code.",
		"userId":       acc.UserID,
	})
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, message("Change failed", "Invalid request body."))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if acc.Password != in.CurrentPassword {
		writeJSON(w, http.StatusBadRequest, message("Change failed", "Current password is incorrect."))
		return
	}
	acc.Password = in.NewPassword
	writeJSON(w, http.StatusOK, message("Password changed", "Your password has been changed."))
}

func (b *Backend) handleUsername(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	acc := b.accountByIDLocked(r.PathValue("userId"))
	b.mu.Unlock()
	if acc == nil {
		writeJSON(w, http.StatusNotFound, message("Not found", "User not found."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": acc.Username})
}

func (b *Backend) handleDashboard(w http.ResponseWriter, _ *http.Request, _ *Account) {
	writeJSON(w, http.StatusOK, map[string]any{
		"books_borrowed":    3,
		"currently_lending": 1,
		"currently_renting": 2,
		"books_sold":        4,
		"books_bought":      5,
		"total_earnings":    120.5,
	})
}

func (b *Backend) handleBalance(w http.ResponseWriter, _ *http.Request, _ *Account) {
	writeJSON(w, http.StatusOK, map[string]any{"currentWalletBalance": 250})
}

func (b *Backend) handleReserved(w http.ResponseWriter, _ *http.Request, _ *Account) {
	writeJSON(w, http.StatusOK, map[string]any{"reservedAmount": 40})
}

func (b *Backend) handleBooks(w http.ResponseWriter, _ *http.Request, acc *Account) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{
			"bookId":          "book-1",
			"title":           "The Left Hand of Darkness",
			"author":          "Ursula K. Le Guin",
			"genre":           "Science Fiction",
			"condition":       "Good",
			"availability":    "For Rent",
			"dailyRentPrice":  5,
			"securityDeposit": 50,
			"ownerId":         acc.UserID,
			"ownerUsername":   acc.Username,
		},
		{
			"bookId":        "book-2",
			"title":         "Noli Me Tangere",
			"author":        "Jose Rizal",
			"genre":         "Classic",
			"condition":     "Like New",
			"availability":  "For Sale",
			"purchasePrice": 300,
			"ownerId":       "owner-2",
			"ownerUsername": "lender",
		},
	})
}

func (b *Backend) handleGenres(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []string{"Classic", "Fantasy", "Science Fiction"})
}

func (b *Backend) handleNotifications(w http.ResponseWriter, _ *http.Request, acc *Account) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{
			"notificationId":   "n-1",
			"header":           "Rental request",
			"message":          "lender wants to rent your book",
			"createdAt":        "2025-01-01T10:00:00Z",
			"isRead":           false,
			"notificationType": "rental",
			"senderId":         "owner-2",
			"receiverId":       acc.UserID,
		},
	})
}

func (b *Backend) handlePurchaseCheck(w http.ResponseWriter, r *http.Request, _ *Account) {
	b.mu.Lock()
	_, exists := b.calls["POST /api/purchases/create"]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists && r.PathValue("bookId") != ""})
}

func (b *Backend) handleRentals(w http.ResponseWriter, _ *http.Request, _ *Account) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{
			"rental_id":            "rental-1",
			"rent_status":          "ongoing",
			"book_id":              "book-1",
			"title":                "The Left Hand of Darkness",
			"author":               "Ursula K. Le Guin",
			"from":                 "lender",
			"actual_deposit":       50,
			"actual_rate":          5,
			"rental_duration_days": 7,
			"cost":                 35,
		},
	})
}

// bookTitles are the titles of the books handleBooks lists
var bookTitles = map[string]string{
	"book-1": "The Left Hand of Darkness",
	"book-2": "Noli Me Tangere",
}

func (b *Backend) handleSaveBook(status int) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *Account) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, message("Invalid book", "Expected form data."))
			return
		}
		if r.PostFormValue("title") == "" || r.PostFormValue("author") == "" {
			writeJSON(w, http.StatusBadRequest, message("Invalid book", "Title and author are required."))
			return
		}
		id := r.PathValue("id")
		if id == "" {
			id = "book-" + uuid.NewString()[:8]
		}
		writeJSON(w, status, map[string]any{
			"messageTitle": "Book saved",
			"message":      "Your book has been saved.",
			"bookId":       id,
		})
	}
}

func (b *Backend) handleDeleteBook(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in struct {
		Title string `json:"title"`
	}
	title, ok := bookTitles[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, message("Not found", "Book not found."))
		return
	}
	if err := decode(r, &in); err != nil || in.Title != title {
		writeJSON(w, http.StatusBadRequest, message("Delete failed", "The title does not match."))
		return
	}
	writeJSON(w, http.StatusOK, message("Book deleted", "Your book has been deleted."))
}

func (b *Backend) handleCreateRental(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in struct {
		BookID             string  `json:"bookId"`
		RentalDurationDays int     `json:"rentalDurationDays"`
		TotalRentCost      float64 `json:"totalRentCost"`
	}
	if err := decode(r, &in); err != nil || in.BookID == "" || in.RentalDurationDays < 1 || in.TotalRentCost <= 0 {
		writeJSON(w, http.StatusBadRequest, message("Rental failed", "Invalid rental request."))
		return
	}
	b.mu.Lock()
	b.rentalRequests[in.BookID] = true
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, message("Rental requested", "Rental request sent successfully."))
}

func (b *Backend) handleRentalCheck(w http.ResponseWriter, r *http.Request, _ *Account) {
	b.mu.Lock()
	exists := b.rentalRequests[r.PathValue("bookId")]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

func (b *Backend) handleBuyReadits(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in struct {
		SelectedPack string `json:"selectedPack"`
	}
	if err := decode(r, &in); err != nil || in.SelectedPack == "" {
		writeJSON(w, http.StatusBadRequest, message("Top-up failed", "Choose a Readits pack."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoiceUrl": InvoiceURL + in.SelectedPack})
}
