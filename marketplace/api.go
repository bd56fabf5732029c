// Package marketplace holds typed calls to the backend's book, rental, purchase,
// wallet, notification and rating endpoints. Every call goes through the
// authenticated request wrapper, so an expired access token is refreshed once.
package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"

	"github.com/jrsteele09/readit-web/apiclient"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
)

// Requester issues authenticated backend calls
type Requester interface {
	Request(ctx context.Context, req apiclient.Request, out any) error
}

type API struct {
	client Requester
}

func NewAPI(client Requester) *API {
	return &API{client: client}
}

func (a *API) get(ctx context.Context, path string, query url.Values, out any) error {
	return a.client.Request(ctx, apiclient.Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (a *API) send(ctx context.Context, method, path string, body any) error {
	return a.client.Request(ctx, apiclient.Request{Method: method, Path: path, Body: body}, nil)
}

func (a *API) DashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	var summary DashboardSummary
	if err := a.get(ctx, "/api/dashboard/summary", nil, &summary); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace DashboardSummary]")
	}
	return &summary, nil
}

// WalletBalance reads the current and reserved balances
func (a *API) WalletBalance(ctx context.Context) (*Wallet, error) {
	var current struct {
		CurrentWalletBalance float64 `json:"currentWalletBalance"`
	}
	if err := a.get(ctx, "/api/wallets/get-current-balance", nil, &current); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace WalletBalance] current balance")
	}
	var reserved struct {
		ReservedAmount float64 `json:"reservedAmount"`
	}
	if err := a.get(ctx, "/api/wallets/get-reserved-amount", nil, &reserved); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace WalletBalance] reserved amount")
	}
	return &Wallet{Current: current.CurrentWalletBalance, Reserved: reserved.ReservedAmount}, nil
}

func (a *API) ListBooks(ctx context.Context, q BookQuery) ([]Book, error) {
	var books []Book
	if err := a.get(ctx, "/api/books/", q.values(), &books); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace ListBooks]")
	}
	return books, nil
}

func (a *API) BookGenres(ctx context.Context) ([]string, error) {
	var genres []string
	if err := a.get(ctx, "/api/books/book-genres", nil, &genres); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace BookGenres]")
	}
	return genres, nil
}

func (a *API) Notifications(ctx context.Context, q NotificationQuery) ([]Notification, error) {
	var notifications []Notification
	if err := a.get(ctx, "/api/notifications", q.values(), &notifications); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace Notifications]")
	}
	return notifications, nil
}

func (a *API) MarkNotificationRead(ctx context.Context, notificationID string) error {
	path := "/api/notifications/" + url.PathEscape(notificationID) + "/mark-as-read"
	return apperrors.Wrapf(a.send(ctx, http.MethodPatch, path, nil), "[marketplace MarkNotificationRead]")
}

// MyRentals lists the books the user is renting from others
func (a *API) MyRentals(ctx context.Context) ([]Rental, error) {
	var rentals []Rental
	if err := a.get(ctx, "/api/rentals/my-rentals", nil, &rentals); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace MyRentals]")
	}
	return rentals, nil
}

// MyLendings lists the user's books rented out to others
func (a *API) MyLendings(ctx context.Context) ([]Rental, error) {
	var lendings []Rental
	if err := a.get(ctx, "/api/rentals/my-lendings", nil, &lendings); err != nil {
		return nil, apperrors.Wrapf(err, "[marketplace MyLendings]")
	}
	return lendings, nil
}

// ApproveRental accepts a rental request and proposes the meetup time
func (a *API) ApproveRental(ctx context.Context, rentalID, meetupTime string) error {
	path := "/api/rentals/" + url.PathEscape(rentalID) + "/approve"
	body := map[string]string{"meetupTime": meetupTime}
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, path, body), "[marketplace ApproveRental]")
}

// RejectRental declines a rental request; reason may be empty
func (a *API) RejectRental(ctx context.Context, rentalID, reason string) error {
	body := map[string]string{"reason": reason}
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, rentalPath(rentalID, "reject"), body), "[marketplace RejectRental]")
}

// CancelRental withdraws the user's own pending request
func (a *API) CancelRental(ctx context.Context, rentalID string) error {
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, rentalPath(rentalID, "cancel"), nil), "[marketplace CancelRental]")
}

// ConfirmPickup records that the book changed hands at the meetup
func (a *API) ConfirmPickup(ctx context.Context, rentalID string) error {
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, rentalPath(rentalID, "confirm-pickup"), nil), "[marketplace ConfirmPickup]")
}

func (a *API) ConfirmReturn(ctx context.Context, rentalID string) error {
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, rentalPath(rentalID, "confirm-return"), nil), "[marketplace ConfirmReturn]")
}

func rentalPath(rentalID, action string) string {
	return "/api/rentals/" + url.PathEscape(rentalID) + "/" + action
}

// CreateRental reserves the rental cost in the wallet and then files the rental request
func (a *API) CreateRental(ctx context.Context, req RentalRequest) error {
	reserve := map[string]float64{"amount_to_reserve": req.TotalRentCost}
	if err := a.send(ctx, http.MethodPatch, "/api/wallets/update-reserved-amount", reserve); err != nil {
		return apperrors.Wrapf(err, "[marketplace CreateRental] reserve amount")
	}
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, "/api/rentals/create", req), "[marketplace CreateRental]")
}

// HasRentalRequest reports whether the user already asked to rent bookID
func (a *API) HasRentalRequest(ctx context.Context, bookID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := a.get(ctx, "/api/rentals/check/"+url.PathEscape(bookID), nil, &resp); err != nil {
		return false, apperrors.Wrapf(err, "[marketplace HasRentalRequest]")
	}
	return resp.Exists, nil
}

// CreateBook lists a new book and returns its id
func (a *API) CreateBook(ctx context.Context, l BookListing) (string, error) {
	var resp struct {
		BookID string `json:"bookId"`
	}
	if err := a.sendForm(ctx, http.MethodPost, "/api/books/", l, &resp); err != nil {
		return "", apperrors.Wrapf(err, "[marketplace CreateBook]")
	}
	return resp.BookID, nil
}

func (a *API) UpdateBook(ctx context.Context, bookID string, l BookListing) error {
	return apperrors.Wrapf(a.sendForm(ctx, http.MethodPatch, "/api/books/"+url.PathEscape(bookID), l, nil), "[marketplace UpdateBook]")
}

// DeleteBook removes a listing. The backend wants the title as confirmation.
func (a *API) DeleteBook(ctx context.Context, bookID, title string) error {
	body := map[string]string{"title": title}
	return apperrors.Wrapf(a.send(ctx, http.MethodDelete, "/api/books/"+url.PathEscape(bookID), body), "[marketplace DeleteBook]")
}

// sendForm sends the listing as multipart form data, the encoding the book endpoints
// accept
func (a *API) sendForm(ctx context.Context, method, path string, l BookListing, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := l.fields()
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("%w: %s: %w", apperrors.ErrInvalidRequest, k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}
	return a.client.Request(ctx, apiclient.Request{
		Method: method,
		Path:   path,
		Body:   buf.Bytes(),
		Header: http.Header{"Content-Type": {mw.FormDataContentType()}},
	}, out)
}

// BuyReadits starts a top-up for pack and returns the payment page to send the user to
func (a *API) BuyReadits(ctx context.Context, pack string) (string, error) {
	var resp struct {
		InvoiceURL string `json:"invoiceUrl"`
	}
	body := map[string]string{"selectedPack": pack}
	if err := a.client.Request(ctx, apiclient.Request{Method: http.MethodPost, Path: "/api/wallets/buy-readits", Body: body}, &resp); err != nil {
		return "", apperrors.Wrapf(err, "[marketplace BuyReadits]")
	}
	if resp.InvoiceURL == "" {
		return "", fmt.Errorf("%w: [marketplace BuyReadits] no invoice url", apperrors.ErrServer)
	}
	return resp.InvoiceURL, nil
}

// CreatePurchase reserves the purchase cost in the wallet and then files the purchase
// request
func (a *API) CreatePurchase(ctx context.Context, p Purchase) error {
	reserve := map[string]float64{"amount_to_reserve": p.TotalBuyCost}
	if err := a.send(ctx, http.MethodPatch, "/api/wallets/update-reserved-amount", reserve); err != nil {
		return apperrors.Wrapf(err, "[marketplace CreatePurchase] reserve amount")
	}
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, "/api/purchases/create", p), "[marketplace CreatePurchase]")
}

// HasPurchaseRequest reports whether the user already asked to buy bookID
func (a *API) HasPurchaseRequest(ctx context.Context, bookID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := a.get(ctx, "/api/purchases/check/"+url.PathEscape(bookID), nil, &resp); err != nil {
		return false, apperrors.Wrapf(err, "[marketplace HasPurchaseRequest]")
	}
	return resp.Exists, nil
}

func (a *API) RateRental(ctx context.Context, rentalID string, r Rating) error {
	path := "/api/ratings/" + url.PathEscape(rentalID) + "/rate"
	return apperrors.Wrapf(a.send(ctx, http.MethodPost, path, r), "[marketplace RateRental]")
}
