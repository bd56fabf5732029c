package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/readit-web/auth"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/jrsteele09/readit-web/marketplace"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	booksPerPage         = 12
	notificationsPerPage = 20
)

func (s *Server) marketAPI(r *http.Request) *marketplace.API {
	return marketplace.NewAPI(executionContext(r).Client)
}

// backendError renders the page for a failed backend call. A session that could not be
// renewed goes back to the login page.
func (s *Server) backendError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())
	switch {
	case errors.Is(err, apperrors.ErrSessionExpired):
		logger.Info().Err(err).Msg("session expired")
		redirectWithError(w, r, RouteLogin, "Your session has expired. Please log in again.")
	case errors.Is(err, apperrors.ErrClient):
		logger.Info().Err(err).Msg("backend rejected request")
		title := apperrors.UserMessage(err)
		if title == "" {
			title = http.StatusText(apperrors.StatusCode(err))
		}
		s.render(w, r, apperrors.StatusCode(err), pageError, pageView{Title: title})
	default:
		logger.Error().Err(err).Msg("backend call failed")
		s.render(w, r, http.StatusBadGateway, pageError, pageView{Title: "The Readit service is unavailable right now"})
	}
}

// navigate runs the route guard for a page load of path within the current request and
// reports whether the page may be shown. A denied navigation has already been redirected.
func (s *Server) navigate(w http.ResponseWriter, r *http.Request, path string) bool {
	d := executionContext(r).Guard.Check(r.Context(), auth.Destination{Path: path, Method: http.MethodGet})
	if !d.Allow {
		redirectSuccess(w, r, d.Location)
		return false
	}
	return true
}

type dashboardData struct {
	Summary *marketplace.DashboardSummary
	Wallet  *marketplace.Wallet
	Packs   []string
}

// DashboardHandler shows the activity summary and wallet
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api := s.marketAPI(r)
		data := dashboardData{Packs: marketplace.ReaditsPacks}

		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() (err error) {
			data.Summary, err = api.DashboardSummary(ctx)
			return err
		})
		g.Go(func() (err error) {
			data.Wallet, err = api.WalletBalance(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			s.backendError(w, r, err)
			return
		}

		s.render(w, r, http.StatusOK, pageDashboard, pageView{
			Title:  "Dashboard",
			Notice: r.URL.Query().Get("notice"),
			Error:  r.URL.Query().Get("error"),
			Data:   data,
		})
	}
}

type profileData struct {
	Username string
	Own      bool
}

func (s *Server) MyProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := executionContext(r).Store.Get()
		s.render(w, r, http.StatusOK, pageProfile, pageView{
			Title: sess.Username,
			Data:  profileData{Username: sess.Username, Own: true},
		})
	}
}

// ProfileHandler shows another user's profile. The route guard sends the user's own id
// to /users/me before this runs.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, err := executionContext(r).Users.UsernameFromUserID(r.Context(), r.PathValue("id"))
		if err != nil {
			s.backendError(w, r, err)
			return
		}
		s.render(w, r, http.StatusOK, pageProfile, pageView{
			Title: username,
			Data:  profileData{Username: username},
		})
	}
}

func (s *Server) SettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.render(w, r, http.StatusOK, pageSettings, pageView{Title: "Settings", Notice: q.Get("notice"), Error: q.Get("error")})
	}
}

type booksData struct {
	Query    marketplace.BookQuery
	Genres   []string
	Books    []marketplace.Book
	NextPage int
}

// BooksHandler lists books matching the search, genre and availability filters
func (s *Server) BooksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := strconv.Atoi(q.Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		data := booksData{Query: marketplace.BookQuery{
			BooksPerPage: booksPerPage,
			PageNumber:   page,
			Search:       strings.TrimSpace(q.Get("search")),
			Genre:        q.Get("genre"),
			Availability: q.Get("availability"),
		}}

		api := s.marketAPI(r)
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() (err error) {
			data.Books, err = api.ListBooks(ctx, data.Query)
			return err
		})
		g.Go(func() (err error) {
			data.Genres, err = api.BookGenres(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			s.backendError(w, r, err)
			return
		}
		if len(data.Books) == booksPerPage {
			data.NextPage = page + 1
		}

		s.render(w, r, http.StatusOK, pageBooks, pageView{
			Title:  "Books",
			Notice: q.Get("notice"),
			Error:  q.Get("error"),
			Data:   data,
		})
	}
}

// PurchaseHandler files a purchase request for a book unless one already exists
func (s *Server) PurchaseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		bookID := r.PathValue("id")
		cost, err := strconv.ParseFloat(r.PostFormValue("totalBuyCost"), 64)
		if err != nil || cost <= 0 {
			redirectWithError(w, r, RouteBooks, "That book has no purchase price.")
			return
		}

		api := s.marketAPI(r)
		exists, err := api.HasPurchaseRequest(r.Context(), bookID)
		if err != nil {
			s.backendError(w, r, err)
			return
		}
		if exists {
			redirectWithError(w, r, RouteBooks, "You have already asked to buy this book.")
			return
		}

		err = api.CreatePurchase(r.Context(), marketplace.Purchase{
			BookID:           bookID,
			TotalBuyCost:     cost,
			MeetupLocation:   strings.TrimSpace(r.PostFormValue("meetupLocation")),
			MeetupDate:       r.PostFormValue("meetupDate"),
			MeetupTimeWindow: strings.TrimSpace(r.PostFormValue("meetupTimeWindow")),
		})
		s.bookRequestDone(w, r, err, "We could not file your purchase request.", "Purchase requested. The seller will be in touch.")
	}
}

// bookRequestDone returns to the books page after a purchase or rental request. A
// rejected request shows the backend's reason there.
func (s *Server) bookRequestDone(w http.ResponseWriter, r *http.Request, err error, fallback, notice string) {
	switch {
	case err == nil:
		redirectWithNotice(w, r, RouteBooks, notice)
	case errors.Is(err, apperrors.ErrClient):
		_, msg := formFailure(err, fallback)
		redirectWithError(w, r, RouteBooks, msg)
	default:
		s.backendError(w, r, err)
	}
}

// RentHandler files a rental request for a book priced at the rate and deposit shown
// on the books page, unless one already exists
func (s *Server) RentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		days, err := strconv.Atoi(r.PostFormValue("rentalDurationDays"))
		if err != nil || days < 1 || days > marketplace.MaxRentalDays {
			redirectWithError(w, r, RouteBooks, "Choose a rental period of 1 to 30 days.")
			return
		}
		rate, rateErr := strconv.ParseFloat(r.PostFormValue("dailyRentPrice"), 64)
		deposit, depositErr := strconv.ParseFloat(r.PostFormValue("securityDeposit"), 64)
		if rateErr != nil || depositErr != nil || rate <= 0 || deposit < 0 {
			redirectWithError(w, r, RouteBooks, "That book is not for rent.")
			return
		}

		bookID := r.PathValue("id")
		api := s.marketAPI(r)
		exists, err := api.HasRentalRequest(r.Context(), bookID)
		if err != nil {
			s.backendError(w, r, err)
			return
		}
		if exists {
			redirectWithError(w, r, RouteBooks, "You have already asked to rent this book.")
			return
		}

		req := marketplace.NewRentalRequest(marketplace.Book{
			BookID:          bookID,
			OwnerID:         r.PostFormValue("ownerId"),
			DailyRentPrice:  rate,
			SecurityDeposit: deposit,
		}, days)
		req.MeetupLocation = strings.TrimSpace(r.PostFormValue("meetupLocation"))
		req.MeetupDate = r.PostFormValue("meetupDate")
		req.MeetupTimeWindow = strings.TrimSpace(r.PostFormValue("meetupTimeWindow"))

		err = api.CreateRental(r.Context(), req)
		s.bookRequestDone(w, r, err, "We could not file your rental request.", "Rental requested. The owner will be in touch.")
	}
}

// BuyReaditsHandler starts a wallet top-up and sends the browser to the payment page
func (s *Server) BuyReaditsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		pack := r.PostFormValue("pack")
		if !marketplace.ValidPack(pack) {
			redirectWithError(w, r, RouteDashboard, "Choose a Readits pack.")
			return
		}

		invoice, err := s.marketAPI(r).BuyReadits(r.Context(), pack)
		switch {
		case err == nil:
			redirectSuccess(w, r, invoice)
		case errors.Is(err, apperrors.ErrClient):
			_, msg := formFailure(err, "We could not start your top-up.")
			redirectWithError(w, r, RouteDashboard, msg)
		default:
			s.backendError(w, r, err)
		}
	}
}

// NotificationsHandler lists the newest notifications, optionally only read or unread ones
func (s *Server) NotificationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "read" && status != "unread" {
			status = ""
		}
		notifications, err := s.marketAPI(r).Notifications(r.Context(), marketplace.NotificationQuery{
			PerPage:    notificationsPerPage,
			PageNumber: 1,
			ReadStatus: status,
			Order:      "newest",
		})
		if err != nil {
			s.backendError(w, r, err)
			return
		}
		s.render(w, r, http.StatusOK, pageNotifications, pageView{Title: "Notifications", Data: notifications})
	}
}

func (s *Server) MarkNotificationReadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.marketAPI(r).MarkNotificationRead(r.Context(), r.PathValue("id")); err != nil {
			s.backendError(w, r, err)
			return
		}
		redirectSuccess(w, r, RouteNotifications)
	}
}

type rentalGroup struct {
	Side  marketplace.RatingSide
	Items []marketplace.Rental
}

type rentalsData struct {
	Rentals  rentalGroup
	Lendings rentalGroup
}

// RentalsHandler shows the books the user rents and lends side by side
func (s *Server) RentalsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := rentalsData{
			Rentals:  rentalGroup{Side: marketplace.RatingFromRental},
			Lendings: rentalGroup{Side: marketplace.RatingFromLending},
		}

		api := s.marketAPI(r)
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() (err error) {
			data.Rentals.Items, err = api.MyRentals(ctx)
			return err
		})
		g.Go(func() (err error) {
			data.Lendings.Items, err = api.MyLendings(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			s.backendError(w, r, err)
			return
		}

		q := r.URL.Query()
		s.render(w, r, http.StatusOK, pageRentals, pageView{
			Title:  "Rentals",
			Notice: q.Get("notice"),
			Error:  q.Get("error"),
			Data:   data,
		})
	}
}

// rentalAction runs a rental write and returns to the rentals page with its outcome
func (s *Server) rentalAction(w http.ResponseWriter, r *http.Request, notice string, action func(*marketplace.API) error) {
	err := action(s.marketAPI(r))
	switch {
	case err == nil:
		redirectWithNotice(w, r, RouteRentals, notice)
	case errors.Is(err, apperrors.ErrClient):
		_, msg := formFailure(err, "That rental could not be updated.")
		redirectWithError(w, r, RouteRentals, msg)
	default:
		s.backendError(w, r, err)
	}
}

func (s *Server) ApproveRentalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		meetupTime := strings.TrimSpace(r.PostFormValue("meetupTime"))
		s.rentalAction(w, r, "Rental approved.", func(api *marketplace.API) error {
			return api.ApproveRental(r.Context(), r.PathValue("id"), meetupTime)
		})
	}
}

func (s *Server) RejectRentalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		reason := strings.TrimSpace(r.PostFormValue("reason"))
		s.rentalAction(w, r, "Rental rejected.", func(api *marketplace.API) error {
			return api.RejectRental(r.Context(), r.PathValue("id"), reason)
		})
	}
}

func (s *Server) CancelRentalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.rentalAction(w, r, "Rental request cancelled.", func(api *marketplace.API) error {
			return api.CancelRental(r.Context(), r.PathValue("id"))
		})
	}
}

func (s *Server) ConfirmPickupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.rentalAction(w, r, "Pickup confirmed.", func(api *marketplace.API) error {
			return api.ConfirmPickup(r.Context(), r.PathValue("id"))
		})
	}
}

func (s *Server) ConfirmReturnHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.rentalAction(w, r, "Return confirmed.", func(api *marketplace.API) error {
			return api.ConfirmReturn(r.Context(), r.PathValue("id"))
		})
	}
}

// RateRentalHandler rates the other party of a completed rental (1 to 5)
func (s *Server) RateRentalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		rating, err := strconv.Atoi(r.PostFormValue("rating"))
		if err != nil || rating < 1 || rating > 5 {
			redirectWithError(w, r, RouteRentals, "Choose a rating from 1 to 5.")
			return
		}
		from := marketplace.RatingSide(r.PostFormValue("from"))
		if from != marketplace.RatingFromRental && from != marketplace.RatingFromLending {
			redirectWithError(w, r, RouteRentals, "That rental could not be rated.")
			return
		}

		s.rentalAction(w, r, "Thanks for your rating.", func(api *marketplace.API) error {
			return api.RateRental(r.Context(), r.PathValue("id"), marketplace.Rating{
				Rating: rating,
				Review: strings.TrimSpace(r.PostFormValue("review")),
				From:   from,
			})
		})
	}
}
