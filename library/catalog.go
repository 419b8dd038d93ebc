package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	homeListSize    = 6
)

var bookKinds = map[BookKind]bool{
	KindNovel: true, KindStory: true, KindEssay: true, KindPoetry: true,
	KindBiography: true, KindHistory: true, KindScience: true, KindOther: true,
}

// BookInput is the editable part of a book. Copies are managed through
// AdjustTotal once the book exists.
type BookInput struct {
	Title           string
	AuthorID        int64
	PublisherID     *int64 // nil or 0 means none
	ISBN            *string
	PublicationYear int
	Pages           *int
	Language        string
	Description     string
	Kind            BookKind
	TotalCopies     int
	Popular         bool
	IsNew           bool
	CategoryIDs     []int64
}

func (in *BookInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("title is required: %w", ErrInvalidArgument)
	}
	if in.AuthorID == 0 {
		return fmt.Errorf("author is required: %w", ErrInvalidArgument)
	}
	if in.Kind == "" {
		in.Kind = KindNovel
	}
	if !bookKinds[in.Kind] {
		return fmt.Errorf("unknown kind %q: %w", in.Kind, ErrInvalidArgument)
	}
	if in.Language == "" {
		in.Language = "English"
	}
	if in.TotalCopies < 0 {
		return fmt.Errorf("total copies %d: %w", in.TotalCopies, ErrInvalidArgument)
	}
	if in.ISBN != nil && strings.TrimSpace(*in.ISBN) == "" {
		in.ISBN = nil
	}
	if in.PublisherID != nil && *in.PublisherID == 0 {
		in.PublisherID = nil
	}
	return nil
}

// BookFilter narrows ListBooks. Zero values mean "any".
type BookFilter struct {
	Query       string // matched against title, author, description and ISBN
	CategoryID  int64
	AuthorID    int64
	PublisherID int64
	Available   *bool
	Popular     *bool
	New         *bool
	YearFrom    int
	YearTo      int
	OrderBy     string // title, publication_year, created_at, available; "-" prefix descends; empty is newest first
	Page        int
	PageSize    int
}

// BookPage is one page of a book listing.
type BookPage struct {
	Books    []Book `json:"books"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// HomeView is the landing page content.
type HomeView struct {
	Popular []Book `json:"popular"`
	New     []Book `json:"new"`
}

// ------------------ Authors & categories ------------------

func (lm *LibraryManager) CreateAuthor(ctx context.Context, a Author) (*Author, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return nil, fmt.Errorf("author name is required: %w", ErrInvalidArgument)
	}
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertReturningID(ctx, tx, `INSERT INTO authors (name, biography, nationality) VALUES (?, ?, ?)`,
			a.Name, a.Biography, a.Nationality)
		a.ID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create author: %w", err)
	}
	return &a, nil
}

func (lm *LibraryManager) GetAuthor(ctx context.Context, id int64) (*Author, error) {
	var a Author
	err := lm.db.db.GetContext(ctx, &a, lm.db.db.Rebind(`SELECT * FROM authors WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("author", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get author %d: %w", id, err)
	}
	return &a, nil
}

// FindAuthorByName returns the author with exactly this name, if any.
func (lm *LibraryManager) FindAuthorByName(ctx context.Context, name string) (*Author, error) {
	var a Author
	err := lm.db.db.GetContext(ctx, &a, lm.db.db.Rebind(`SELECT * FROM authors WHERE name = ? ORDER BY id LIMIT 1`),
		strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("author %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find author %q: %w", name, err)
	}
	return &a, nil
}

// EnsureAuthor returns the author called name, creating it on first use.
func (lm *LibraryManager) EnsureAuthor(ctx context.Context, name string) (*Author, error) {
	a, err := lm.FindAuthorByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return lm.CreateAuthor(ctx, Author{Name: name})
	}
	return a, err
}

func (lm *LibraryManager) ListAuthors(ctx context.Context) ([]Author, error) {
	out := []Author{}
	err := lm.db.db.SelectContext(ctx, &out, `SELECT * FROM authors ORDER BY name, id`)
	return out, err
}

// UpdateAuthor replaces the author's fields.
func (lm *LibraryManager) UpdateAuthor(ctx context.Context, id int64, a Author) (*Author, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return nil, fmt.Errorf("author name is required: %w", ErrInvalidArgument)
	}
	a.ID = id
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE authors SET name = ?, biography = ?, nationality = ?
            WHERE id = ?`), a.Name, a.Biography, a.Nationality, id)
		return affected(res, err, "author", id)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAuthor removes an author with no books left in the catalog.
func (lm *LibraryManager) DeleteAuthor(ctx context.Context, id int64) error {
	return lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		var books int
		if err := tx.GetContext(ctx, &books, tx.Rebind(`SELECT COUNT(*) FROM books WHERE author_id = ?`), id); err != nil {
			return err
		}
		if books > 0 {
			return fmt.Errorf("author %d still has %d books: %w", id, books, ErrInvalidArgument)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM authors WHERE id = ?`), id)
		return affected(res, err, "author", id)
	})
}

func (lm *LibraryManager) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("category name is required: %w", ErrInvalidArgument)
	}
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertReturningID(ctx, tx, `INSERT INTO categories (name, description) VALUES (?, ?)`,
			c.Name, c.Description)
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q exists: %w", c.Name, ErrInvalidArgument)
		}
		c.ID = id
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (lm *LibraryManager) ListCategories(ctx context.Context) ([]Category, error) {
	out := []Category{}
	err := lm.db.db.SelectContext(ctx, &out, `SELECT * FROM categories ORDER BY name`)
	return out, err
}

func (lm *LibraryManager) UpdateCategory(ctx context.Context, id int64, c Category) (*Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("category name is required: %w", ErrInvalidArgument)
	}
	c.ID = id
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE categories SET name = ?, description = ? WHERE id = ?`),
			c.Name, c.Description, id)
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q exists: %w", c.Name, ErrInvalidArgument)
		}
		return affected(res, err, "category", id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCategory removes the category. Its books stay in the catalog.
func (lm *LibraryManager) DeleteCategory(ctx context.Context, id int64) error {
	return lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM categories WHERE id = ?`), id)
		return affected(res, err, "category", id)
	})
}

// ------------------ Publishers ------------------

func (p *Publisher) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("publisher name is required: %w", ErrInvalidArgument)
	}
	for _, f := range []**string{&p.Country, &p.Website} {
		if *f != nil && strings.TrimSpace(**f) == "" {
			*f = nil
		}
	}
	return nil
}

func (lm *LibraryManager) CreatePublisher(ctx context.Context, p Publisher) (*Publisher, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertReturningID(ctx, tx, `INSERT INTO publishers (name, country, website) VALUES (?, ?, ?)`,
			p.Name, p.Country, p.Website)
		p.ID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	return &p, nil
}

func (lm *LibraryManager) GetPublisher(ctx context.Context, id int64) (*Publisher, error) {
	var p Publisher
	err := lm.db.db.GetContext(ctx, &p, lm.db.db.Rebind(`SELECT * FROM publishers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("publisher", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get publisher %d: %w", id, err)
	}
	return &p, nil
}

func (lm *LibraryManager) ListPublishers(ctx context.Context) ([]Publisher, error) {
	out := []Publisher{}
	err := lm.db.db.SelectContext(ctx, &out, `SELECT * FROM publishers ORDER BY name, id`)
	return out, err
}

func (lm *LibraryManager) UpdatePublisher(ctx context.Context, id int64, p Publisher) (*Publisher, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	p.ID = id
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE publishers SET name = ?, country = ?, website = ?
            WHERE id = ?`), p.Name, p.Country, p.Website, id)
		return affected(res, err, "publisher", id)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePublisher removes the publisher. Its books stay in the catalog
// without one.
func (lm *LibraryManager) DeletePublisher(ctx context.Context, id int64) error {
	return lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM publishers WHERE id = ?`), id)
		return affected(res, err, "publisher", id)
	})
}

// affected turns a write that matched no row into a not-found error.
func affected(res sql.Result, err error, entity string, id int64) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(entity, id)
	}
	return nil
}

// ------------------ Books ------------------

// CreateBook adds a title with all of its copies on the shelf.
func (lm *LibraryManager) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := lm.Now()
	var id int64
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := bookRefsExist(ctx, tx, in); err != nil {
			return err
		}
		var err error
		id, err = insertReturningID(ctx, tx, `INSERT INTO books
            (title, author_id, publisher_id, isbn, publication_year, pages, language, description, kind,
             total_copies, available_copies, popular, is_new, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.Title, in.AuthorID, in.PublisherID, in.ISBN, in.PublicationYear, in.Pages, in.Language, in.Description, in.Kind,
			in.TotalCopies, in.TotalCopies, in.Popular, in.IsNew, now, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("isbn %s already catalogued: %w", *in.ISBN, ErrInvalidArgument)
		}
		if err != nil {
			return fmt.Errorf("insert book: %w", err)
		}
		return setBookCategories(ctx, tx, id, in.CategoryIDs)
	})
	if err != nil {
		return nil, err
	}
	return lm.GetBook(ctx, id)
}

// UpdateBook replaces a book's descriptive fields. TotalCopies is ignored.
func (lm *LibraryManager) UpdateBook(ctx context.Context, id int64, in BookInput) (*Book, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := lm.Now()
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := bookRefsExist(ctx, tx, in); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE books SET
            title = ?, author_id = ?, publisher_id = ?, isbn = ?, publication_year = ?, pages = ?, language = ?,
            description = ?, kind = ?, popular = ?, is_new = ?, updated_at = ?
            WHERE id = ?`),
			in.Title, in.AuthorID, in.PublisherID, in.ISBN, in.PublicationYear, in.Pages, in.Language,
			in.Description, in.Kind, in.Popular, in.IsNew, now, id)
		if isUniqueViolation(err) {
			return fmt.Errorf("isbn %s already catalogued: %w", *in.ISBN, ErrInvalidArgument)
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("book", id)
		}
		if in.CategoryIDs != nil {
			return setBookCategories(ctx, tx, id, in.CategoryIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lm.GetBook(ctx, id)
}

// DeleteBook removes a title that has no copy out on loan.
func (lm *LibraryManager) DeleteBook(ctx context.Context, id int64) error {
	return lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		var open int
		if err := tx.GetContext(ctx, &open, tx.Rebind(`SELECT COUNT(*) FROM loans
            WHERE book_id = ? AND state IN `+openLoanStatesSQL), id); err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("book %d has %d copies on loan: %w", id, open, ErrInvalidArgument)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM books WHERE id = ?`), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("book", id)
		}
		return nil
	})
}

func bookRefsExist(ctx context.Context, tx *sqlx.Tx, in BookInput) error {
	if err := rowExists(ctx, tx, "authors", "author", in.AuthorID); err != nil {
		return err
	}
	if in.PublisherID != nil {
		return rowExists(ctx, tx, "publishers", "publisher", *in.PublisherID)
	}
	return nil
}

// rowExists returns a not-found error naming entity when table has no row id.
func rowExists(ctx context.Context, tx *sqlx.Tx, table, entity string, id int64) error {
	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM `+table+` WHERE id = ?`), id); err != nil {
		return err
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

func setBookCategories(ctx context.Context, tx *sqlx.Tx, bookID int64, ids []int64) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM book_categories WHERE book_id = ?`), bookID); err != nil {
		return err
	}
	seen := make(map[int64]bool, len(ids))
	for _, cid := range ids {
		if seen[cid] {
			continue
		}
		seen[cid] = true
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO book_categories (book_id, category_id) VALUES (?, ?)`),
			bookID, cid); err != nil {
			return fmt.Errorf("link category %d: %w", cid, err)
		}
	}
	return nil
}

// GetBook returns a book with its categories and rating summary.
func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := lm.db.db.GetContext(ctx, &b, lm.db.db.Rebind(`SELECT b.*, a.name AS author_name, p.name AS publisher_name
        FROM books b JOIN authors a ON a.id = b.author_id
        LEFT JOIN publishers p ON p.id = b.publisher_id
        WHERE b.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}

	b.Categories = []Category{}
	if err := lm.db.db.SelectContext(ctx, &b.Categories, lm.db.db.Rebind(`SELECT c.*
        FROM categories c JOIN book_categories bc ON bc.category_id = c.id
        WHERE bc.book_id = ? ORDER BY c.name`), id); err != nil {
		return nil, err
	}
	if b.AverageRating, b.ReviewCount, err = lm.bookRating(ctx, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks returns one page of the catalog matching f.
func (lm *LibraryManager) ListBooks(ctx context.Context, f BookFilter) (*BookPage, error) {
	page := max(f.Page, 1)
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)

	base := lm.db.builder.
		From(goqu.T("books").As("b")).
		Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		LeftJoin(goqu.T("publishers").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("b.publisher_id")))).
		Where(lm.bookConditions(f)...)

	countSQL, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book count: %w", err)
	}
	var total int
	if err := lm.db.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}

	listSQL, listArgs, err := base.
		Select(goqu.T("b").All(), goqu.I("a.name").As("author_name"), goqu.I("p.name").As("publisher_name")).
		Order(bookOrder(f.OrderBy)...).
		Limit(uint(size)).Offset(uint((page - 1) * size)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book list: %w", err)
	}
	books := []Book{}
	if err := lm.db.db.SelectContext(ctx, &books, listSQL, listArgs...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return &BookPage{Books: books, Total: total, Page: page, PageSize: size}, nil
}

func (lm *LibraryManager) bookConditions(f BookFilter) []exp.Expression {
	var where []exp.Expression
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + q + "%"
		where = append(where, goqu.Or(
			goqu.I("b.title").ILike(pattern),
			goqu.I("a.name").ILike(pattern),
			goqu.I("b.description").ILike(pattern),
			goqu.I("b.isbn").ILike(pattern),
		))
	}
	if f.CategoryID != 0 {
		where = append(where, goqu.I("b.id").In(
			lm.db.builder.From("book_categories").Select("book_id").Where(goqu.C("category_id").Eq(f.CategoryID)),
		))
	}
	if f.AuthorID != 0 {
		where = append(where, goqu.I("b.author_id").Eq(f.AuthorID))
	}
	if f.PublisherID != 0 {
		where = append(where, goqu.I("b.publisher_id").Eq(f.PublisherID))
	}
	if f.Available != nil {
		if *f.Available {
			where = append(where, goqu.I("b.available_copies").Gt(0))
		} else {
			where = append(where, goqu.I("b.available_copies").Eq(0))
		}
	}
	if f.Popular != nil {
		where = append(where, goqu.I("b.popular").Eq(*f.Popular))
	}
	if f.New != nil {
		where = append(where, goqu.I("b.is_new").Eq(*f.New))
	}
	if f.YearFrom != 0 {
		where = append(where, goqu.I("b.publication_year").Gte(f.YearFrom))
	}
	if f.YearTo != 0 {
		where = append(where, goqu.I("b.publication_year").Lte(f.YearTo))
	}
	return where
}

var bookOrderColumns = map[string]string{
	"title":            "b.title",
	"publication_year": "b.publication_year",
	"created_at":       "b.created_at",
	"available":        "b.available_copies",
}

func bookOrder(orderBy string) []exp.OrderedExpression {
	desc := strings.HasPrefix(orderBy, "-")
	col, ok := bookOrderColumns[strings.TrimPrefix(orderBy, "-")]
	if !ok {
		// Newest additions first.
		return []exp.OrderedExpression{goqu.I("b.created_at").Desc(), goqu.I("b.id").Desc()}
	}
	first := goqu.I(col).Asc()
	if desc {
		first = goqu.I(col).Desc()
	}
	return []exp.OrderedExpression{first, goqu.I("b.id").Asc()}
}

// SearchBooks matches q against title, author name, description and ISBN.
func (lm *LibraryManager) SearchBooks(ctx context.Context, q string, page, pageSize int) (*BookPage, error) {
	return lm.ListBooks(ctx, BookFilter{Query: q, Page: page, PageSize: pageSize})
}

// PopularBooks lists books flagged popular, newest first.
func (lm *LibraryManager) PopularBooks(ctx context.Context, limit int) ([]Book, error) {
	yes := true
	p, err := lm.ListBooks(ctx, BookFilter{Popular: &yes, OrderBy: "-created_at", PageSize: limit})
	if err != nil {
		return nil, err
	}
	return p.Books, nil
}

// NewBooks lists books flagged new, newest first.
func (lm *LibraryManager) NewBooks(ctx context.Context, limit int) ([]Book, error) {
	yes := true
	p, err := lm.ListBooks(ctx, BookFilter{New: &yes, OrderBy: "-created_at", PageSize: limit})
	if err != nil {
		return nil, err
	}
	return p.Books, nil
}

// Home returns a handful of popular and new books.
func (lm *LibraryManager) Home(ctx context.Context) (*HomeView, error) {
	popular, err := lm.PopularBooks(ctx, homeListSize)
	if err != nil {
		return nil, err
	}
	fresh, err := lm.NewBooks(ctx, homeListSize)
	if err != nil {
		return nil, err
	}
	return &HomeView{Popular: popular, New: fresh}, nil
}
