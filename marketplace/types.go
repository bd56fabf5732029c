package marketplace

import (
	"net/url"
	"slices"
	"strconv"
)

type DashboardSummary struct {
	BooksBorrowed    int     `json:"books_borrowed"`
	CurrentlyLending int     `json:"currently_lending"`
	CurrentlyRenting int     `json:"currently_renting"`
	BooksSold        int     `json:"books_sold"`
	BooksBought      int     `json:"books_bought"`
	TotalEarnings    float64 `json:"total_earnings"`
}

// Wallet is the user's Readits balance. Reserved credits back pending rentals and
// purchases and cannot be spent.
type Wallet struct {
	Current  float64
	Reserved float64
}

func (w Wallet) Available() float64 {
	return w.Current - w.Reserved
}

type Book struct {
	BookID          string  `json:"bookId"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Genre           string  `json:"genre"`
	Condition       string  `json:"condition"`
	Description     string  `json:"description"`
	Availability    string  `json:"availability"`
	DailyRentPrice  float64 `json:"dailyRentPrice"`
	SecurityDeposit float64 `json:"securityDeposit"`
	PurchasePrice   float64 `json:"purchasePrice"`
	OwnerID         string  `json:"ownerId"`
	OwnerUsername   string  `json:"ownerUsername"`
	FirstImageURL   *string `json:"firstImageUrl"`
}

// BookQuery filters the book list. Zero values are left out of the query.
type BookQuery struct {
	BooksPerPage int
	PageNumber   int
	Search       string
	Genre        string
	Availability string
}

func (q BookQuery) values() url.Values {
	v := url.Values{}
	setInt(v, "booksPerPage", q.BooksPerPage)
	setInt(v, "pageNumber", q.PageNumber)
	setString(v, "searchValue", q.Search)
	setString(v, "bookGenre", q.Genre)
	setString(v, "bookAvailability", q.Availability)
	return v
}

type Notification struct {
	NotificationID   string `json:"notificationId"`
	Header           string `json:"header"`
	Message          string `json:"message"`
	CreatedAt        string `json:"createdAt"`
	IsRead           bool   `json:"isRead"`
	NotificationType string `json:"notificationType"`
	SenderID         string `json:"senderId"`
	ReceiverID       string `json:"receiverId"`
}

type NotificationQuery struct {
	PerPage    int
	PageNumber int
	// ReadStatus is "read", "unread" or empty for both
	ReadStatus string
	// Order is "newest" or "oldest"
	Order string
}

func (q NotificationQuery) values() url.Values {
	v := url.Values{}
	setInt(v, "booksPerPage", q.PerPage)
	setInt(v, "pageNumber", q.PageNumber)
	setString(v, "readStatus", q.ReadStatus)
	setString(v, "order", q.Order)
	return v
}

type Rental struct {
	RentalID           string  `json:"rental_id"`
	RentStatus         string  `json:"rent_status"`
	BookID             string  `json:"book_id"`
	Title              string  `json:"title"`
	Author             string  `json:"author"`
	Image              string  `json:"image"`
	From               string  `json:"from"`
	ActualDeposit      float64 `json:"actual_deposit"`
	ActualRate         float64 `json:"actual_rate"`
	RentalDurationDays int     `json:"rental_duration_days"`
	MeetupLocation     string  `json:"meetup_location"`
	MeetupDate         string  `json:"meetup_date"`
	MeetupTime         string  `json:"meetup_time"`
	RentStartDate      string  `json:"rent_start_date"`
	RentEndDate        string  `json:"rent_end_date"`
	UserRated          bool    `json:"user_rated"`
	OwnerRated         bool    `json:"owner_rated"`
	Cost               float64 `json:"cost"`
}

// Status is the progress badge for the rental
func (r Rental) Status() RentalStatus {
	return StatusOf(r.RentStatus)
}

// RentalStatus is the display label and step (1-6) of a rental state; unknown
// states have step 0
type RentalStatus struct {
	Label    string
	Progress int
}

var rentalStatuses = map[string]RentalStatus{
	"pending":                      {Label: "Requested", Progress: 1},
	"approved":                     {Label: "Confirmed", Progress: 2},
	"awaiting_pickup_confirmation": {Label: "Ready for Pickup", Progress: 3},
	"ongoing":                      {Label: "Renting", Progress: 4},
	"awaiting_return_confirmation": {Label: "Ready for Return", Progress: 5},
	"completed":                    {Label: "Completed", Progress: 6},
}

func StatusOf(state string) RentalStatus {
	if s, ok := rentalStatuses[state]; ok {
		return s
	}
	return RentalStatus{Label: state}
}

type Purchase struct {
	BookID           string  `json:"book_id"`
	TotalBuyCost     float64 `json:"total_buy_cost"`
	MeetupLocation   string  `json:"meetup_location"`
	MeetupDate       string  `json:"meetup_date"`
	MeetupTimeWindow string  `json:"meetup_time_window"`
}

// RentalRequest asks a book's owner to lend it for RentalDurationDays. The JSON keys
// are camelCase, unlike purchases.
type RentalRequest struct {
	BookID             string  `json:"bookId"`
	OwnerUserID        string  `json:"ownerUserId"`
	TotalRentCost      float64 `json:"totalRentCost"`
	RentalDurationDays int     `json:"rentalDurationDays"`
	MeetupTimeWindow   string  `json:"meetupTimeWindow"`
	MeetupLocation     string  `json:"meetupLocation"`
	MeetupDate         string  `json:"meetupDate"`
	ActualRate         float64 `json:"actualRate"`
	ActualDeposit      float64 `json:"actualDeposit"`
}

// MaxRentalDays is the longest rental period a request may ask for
const MaxRentalDays = 30

// RentalCost is the amount reserved for renting b for days: the daily rate for every
// day plus the refundable deposit
func RentalCost(b Book, days int) float64 {
	return b.DailyRentPrice*float64(days) + b.SecurityDeposit
}

// NewRentalRequest prices a request for b at the book's current rate and deposit
func NewRentalRequest(b Book, days int) RentalRequest {
	return RentalRequest{
		BookID:             b.BookID,
		OwnerUserID:        b.OwnerID,
		TotalRentCost:      RentalCost(b, days),
		RentalDurationDays: days,
		ActualRate:         b.DailyRentPrice,
		ActualDeposit:      b.SecurityDeposit,
	}
}

// BookListing is the editable part of a book the user offers. Images are managed
// elsewhere.
type BookListing struct {
	Title           string
	Author          string
	Genre           string
	Condition       string
	Description     string
	Availability    string
	DailyRentPrice  float64
	SecurityDeposit float64
	PurchasePrice   float64
}

func (l BookListing) fields() map[string]string {
	price := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	return map[string]string{
		"title":           l.Title,
		"author":          l.Author,
		"genre":           l.Genre,
		"condition":       l.Condition,
		"description":     l.Description,
		"availability":    l.Availability,
		"dailyRentPrice":  price(l.DailyRentPrice),
		"securityDeposit": price(l.SecurityDeposit),
		"purchasePrice":   price(l.PurchasePrice),
	}
}

// ReaditsPacks are the top-up packs offered for sale, smallest first
var ReaditsPacks = []string{"starter", "reader", "bookworm"}

func ValidPack(pack string) bool {
	return slices.Contains(ReaditsPacks, pack)
}

// RatingSide says whether the rater was the renter or the lender
type RatingSide string

const (
	RatingFromRental  RatingSide = "rental"
	RatingFromLending RatingSide = "lending"
)

type Rating struct {
	Rating int        `json:"rating"`
	Review string     `json:"review"`
	From   RatingSide `json:"from"`
}

func setInt(v url.Values, key string, n int) {
	if n > 0 {
		v.Set(key, strconv.Itoa(n))
	}
}

func setString(v url.Values, key, s string) {
	if s != "" {
		v.Set(key, s)
	}
}
