package api

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"library-lending/library"
)

type registerRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=150"`
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type bookRequest struct {
	Title           string           `json:"title" validate:"required,max=200"`
	AuthorID        int64            `json:"author_id" validate:"required,gt=0"`
	PublisherID     *int64           `json:"publisher_id" validate:"omitempty,gt=0"`
	ISBN            *string          `json:"isbn" validate:"omitempty,max=17"`
	PublicationYear int              `json:"publication_year" validate:"gte=0,lte=3000"`
	Pages           *int             `json:"pages" validate:"omitempty,gt=0"`
	Language        string           `json:"language" validate:"max=50"`
	Description     string           `json:"description"`
	Kind            library.BookKind `json:"kind" validate:"omitempty,oneof=novel story essay poetry biography history science other"`
	TotalCopies     int              `json:"total_copies" validate:"gte=0"`
	Popular         bool             `json:"popular"`
	IsNew           bool             `json:"is_new"`
	CategoryIDs     []int64          `json:"category_ids" validate:"omitempty,dive,gt=0"`
}

func (r bookRequest) input() library.BookInput {
	return library.BookInput{
		Title: r.Title, AuthorID: r.AuthorID, PublisherID: r.PublisherID, ISBN: r.ISBN, PublicationYear: r.PublicationYear,
		Pages: r.Pages, Language: r.Language, Description: r.Description, Kind: r.Kind,
		TotalCopies: r.TotalCopies, Popular: r.Popular, IsNew: r.IsNew, CategoryIDs: r.CategoryIDs,
	}
}

type inventoryRequest struct {
	TotalCopies *int `json:"total_copies" validate:"required,gte=0"`
}

type loanRequest struct {
	// Staff may lend on behalf of another user.
	UserID int64 `json:"user_id" validate:"omitempty,gt=0"`
}

type renewRequest struct {
	Days int `json:"days" validate:"omitempty,gt=0,lte=90"`
}

type authorRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Biography   *string `json:"biography"`
	Nationality *string `json:"nationality" validate:"omitempty,max=100"`
}

type categoryRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description"`
}

type publisherRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Country *string `json:"country" validate:"omitempty,max=100"`
	Website *string `json:"website" validate:"omitempty,url"`
}

func (r publisherRequest) publisher() library.Publisher {
	return library.Publisher{Name: r.Name, Country: r.Country, Website: r.Website}
}

type reviewRequest struct {
	BookID  int64   `json:"book_id" validate:"required,gt=0"`
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment"`
}

type reviewUpdateRequest struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment"`
}

type contactRequest struct {
	Phone      *string `json:"phone" validate:"omitempty,max=15"`
	Address    *string `json:"address"`
	CardNumber *string `json:"card_number" validate:"omitempty,max=20"`
}

type policyRequest struct {
	Active                *bool `json:"active"`
	MaxConcurrentLoans    *int  `json:"max_concurrent_loans" validate:"omitempty,gte=0,lte=50"`
	DefaultLoanPeriodDays *int  `json:"default_loan_period_days" validate:"omitempty,gt=0,lte=365"`
}

type bookQuery struct {
	Q         string `query:"q"`
	Category  int64  `query:"category" validate:"gte=0"`
	Author    int64  `query:"author" validate:"gte=0"`
	Publisher int64  `query:"publisher" validate:"gte=0"`
	Available string `query:"available" validate:"omitempty,oneof=true false"`
	Popular   string `query:"popular" validate:"omitempty,oneof=true false"`
	New       string `query:"new" validate:"omitempty,oneof=true false"`
	YearFrom  int    `query:"year_from" validate:"gte=0"`
	YearTo    int    `query:"year_to" validate:"gte=0"`
	Ordering  string `query:"ordering" validate:"omitempty,oneof=title -title publication_year -publication_year created_at -created_at available -available"`
	Page      int    `query:"page" validate:"gte=0"`
	PageSize  int    `query:"page_size" validate:"gte=0"`
}

func (q bookQuery) filter() library.BookFilter {
	return library.BookFilter{
		Query: q.Q, CategoryID: q.Category, AuthorID: q.Author, PublisherID: q.Publisher,
		Available: optBool(q.Available), Popular: optBool(q.Popular), New: optBool(q.New),
		YearFrom: q.YearFrom, YearTo: q.YearTo, OrderBy: q.Ordering,
		Page: q.Page, PageSize: q.PageSize,
	}
}

func optBool(s string) *bool {
	if s == "" {
		return nil
	}
	b := s == "true"
	return &b
}

type loanQuery struct {
	User  int64  `query:"user" validate:"gte=0"`
	Book  int64  `query:"book" validate:"gte=0"`
	State string `query:"state" validate:"omitempty,oneof=active renewed overdue returned"`
}

type reservationQuery struct {
	User  int64  `query:"user" validate:"gte=0"`
	Book  int64  `query:"book" validate:"gte=0"`
	State string `query:"state" validate:"omitempty,oneof=pending notified completed cancelled"`
}

type reviewQuery struct {
	Book int64 `query:"book" validate:"gte=0"`
	User int64 `query:"user" validate:"gte=0"`
}

// fieldName reports validation failures under the wire name of a field.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "query"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func (s *Server) bindBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	return s.validate.Struct(dst)
}

func (s *Server) bindQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query string")
	}
	return s.validate.Struct(dst)
}

func idParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}
