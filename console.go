package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-lending/library"
)

func newConsoleCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive circulation desk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			mgr, err := openManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()

			c := &console{
				mgr:          mgr,
				in:           bufio.NewScanner(cmd.InOrStdin()),
				out:          cmd.OutOrStdout(),
				readPassword: readPassword,
			}
			c.run(cmd.Context())
			return nil
		},
	}
}

// readPassword reads a password from the terminal without echoing it.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// console is the staff-facing REPL. Borrower actions ask for the borrower's
// own credentials; staff actions do not.
type console struct {
	mgr          *library.LibraryManager
	in           *bufio.Scanner
	out          io.Writer
	readPassword func(prompt string) (string, error)
}

const consoleHelp = `Available commands:
  Books:        add book, list books, search book, adjust copies
  Users:        add user, list users, reset password
  Circulation:  checkout, return, renew, loans, reserve, list reservations, cancel reservation
  Other:        notifications, sweep, help, exit`

func (c *console) run(ctx context.Context) {
	fmt.Fprintln(c.out, "Library circulation desk")
	fmt.Fprintln(c.out, consoleHelp)

	for {
		fmt.Fprint(c.out, "\n> ")
		if !c.in.Scan() {
			return
		}
		var err error
		switch cmd := strings.TrimSpace(c.in.Text()); cmd {
		case "":
		case "add book":
			err = c.addBook(ctx)
		case "list books":
			err = c.listBooks(ctx)
		case "search book":
			err = c.searchBooks(ctx)
		case "adjust copies":
			err = c.adjustCopies(ctx)
		case "add user":
			err = c.addUser(ctx)
		case "list users":
			err = c.listUsers(ctx)
		case "reset password":
			err = c.resetPassword(ctx)
		case "checkout":
			err = c.checkout(ctx)
		case "return":
			err = c.returnLoan(ctx)
		case "renew":
			err = c.renew(ctx)
		case "loans":
			err = c.loans(ctx)
		case "reserve":
			err = c.reserve(ctx)
		case "list reservations":
			err = c.listReservations(ctx)
		case "cancel reservation":
			err = c.cancelReservation(ctx)
		case "notifications":
			err = c.notifications(ctx)
		case "sweep":
			err = runSweep(ctx, c.mgr, slog.New(slog.NewTextHandler(c.out, nil)))
		case "help":
			fmt.Fprintln(c.out, consoleHelp)
		case "exit", "quit":
			fmt.Fprintln(c.out, "Goodbye!")
			return
		default:
			fmt.Fprintf(c.out, "Unknown command %q. Type 'help' for the list.\n", cmd)
		}
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

var errAborted = errors.New("input closed")

func (c *console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label+": ")
	if !c.in.Scan() {
		return "", errAborted
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *console) promptID(label string) (int64, error) {
	s, err := c.prompt(label)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToLower(label), s)
	}
	return id, nil
}

func (c *console) promptInt(label string, def int) (int, error) {
	s, err := c.prompt(fmt.Sprintf("%s [%d]", label, def))
	if err != nil || s == "" {
		return def, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToLower(label), s)
	}
	return n, nil
}

// login asks for a borrower's username and password.
func (c *console) login(ctx context.Context) (*library.User, error) {
	username, err := c.prompt("Username")
	if err != nil {
		return nil, err
	}
	password, err := c.readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	u, err := c.mgr.Authenticate(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return u, nil
}

func (c *console) addBook(ctx context.Context) error {
	title, err := c.prompt("Title")
	if err != nil {
		return err
	}
	authorName, err := c.prompt("Author")
	if err != nil {
		return err
	}
	copies, err := c.promptInt("Copies", 1)
	if err != nil {
		return err
	}
	author, err := c.mgr.EnsureAuthor(ctx, authorName)
	if err != nil {
		return err
	}
	b, err := c.mgr.CreateBook(ctx, library.BookInput{Title: title, AuthorID: author.ID, TotalCopies: copies})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added book ID %d: '%s' by %s (%d copies)\n", b.ID, b.Title, author.Name, b.TotalCopies)
	return nil
}

func (c *console) printBooks(ctx context.Context, books []library.Book) error {
	fmt.Fprintf(c.out, "%-5s %-30s %-25s %-10s %s\n", "ID", "Title", "Author", "Available", "Waiting")
	fmt.Fprintln(c.out, strings.Repeat("-", 85))
	for _, b := range books {
		queue, err := c.mgr.ReservationQueue(ctx, b.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%-5d %-30s %-25s %-10s %d\n",
			b.ID,
			truncate(b.Title, 30),
			truncate(b.AuthorName, 25),
			fmt.Sprintf("%d/%d", b.AvailableCopies, b.TotalCopies),
			len(queue))
	}
	return nil
}

func (c *console) listBooks(ctx context.Context) error {
	page, err := c.mgr.ListBooks(ctx, library.BookFilter{PageSize: library.MaxPageSize})
	if err != nil {
		return err
	}
	if page.Total == 0 {
		fmt.Fprintln(c.out, "No books in library.")
		return nil
	}
	if err := c.printBooks(ctx, page.Books); err != nil {
		return err
	}
	if page.Total > len(page.Books) {
		fmt.Fprintf(c.out, "... %d more, use 'search book' to narrow down\n", page.Total-len(page.Books))
	}
	return nil
}

func (c *console) searchBooks(ctx context.Context) error {
	q, err := c.prompt("Query")
	if err != nil {
		return err
	}
	page, err := c.mgr.SearchBooks(ctx, q, 1, library.MaxPageSize)
	if err != nil {
		return err
	}
	if page.Total == 0 {
		fmt.Fprintf(c.out, "No books found matching '%s'.\n", q)
		return nil
	}
	fmt.Fprintf(c.out, "Found %d book(s) matching '%s':\n", page.Total, q)
	return c.printBooks(ctx, page.Books)
}

func (c *console) adjustCopies(ctx context.Context) error {
	bookID, err := c.promptID("Book ID")
	if err != nil {
		return err
	}
	total, err := c.promptInt("Total copies", 1)
	if err != nil {
		return err
	}
	if err := c.mgr.AdjustTotal(ctx, bookID, total); err != nil {
		return err
	}
	b, err := c.mgr.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "'%s' now has %d copies, %d on the shelf\n", b.Title, b.TotalCopies, b.AvailableCopies)
	return nil
}

func (c *console) addUser(ctx context.Context) error {
	username, err := c.prompt("Username")
	if err != nil {
		return err
	}
	email, err := c.prompt("Email")
	if err != nil {
		return err
	}
	staff, err := c.prompt("Staff account? (y/N)")
	if err != nil {
		return err
	}
	password, err := c.readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	confirm, err := c.readPassword("Repeat password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	u, err := c.mgr.CreateUser(ctx, library.NewUser{
		Username:        username,
		Email:           email,
		Password:        password,
		PasswordConfirm: confirm,
		IsAdmin:         strings.EqualFold(staff, "y"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added user '%s' with ID %d\n", u.Username, u.ID)
	return nil
}

func (c *console) listUsers(ctx context.Context) error {
	users, err := c.mgr.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(c.out, "No users registered.")
		return nil
	}
	fmt.Fprintf(c.out, "%-5s %-20s %-30s %-6s %s\n", "ID", "Username", "Email", "Staff", "Open loans")
	fmt.Fprintln(c.out, strings.Repeat("-", 75))
	for _, u := range users {
		n, err := c.mgr.CountActiveLoans(ctx, u.ID)
		if err != nil {
			return err
		}
		staff := "no"
		if u.IsAdmin {
			staff = "yes"
		}
		fmt.Fprintf(c.out, "%-5d %-20s %-30s %-6s %d\n", u.ID, truncate(u.Username, 20), truncate(u.Email, 30), staff, n)
	}
	return nil
}

func (c *console) resetPassword(ctx context.Context) error {
	userID, err := c.promptID("User ID")
	if err != nil {
		return err
	}
	u, err := c.mgr.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	password, err := c.readPassword(fmt.Sprintf("New password for %s (ID: %d): ", u.Username, u.ID))
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if err := c.mgr.ResetPassword(ctx, u.ID, password); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Password reset for %s (ID: %d)\n", u.Username, u.ID)
	return nil
}

func (c *console) checkout(ctx context.Context) error {
	bookID, err := c.promptID("Book ID")
	if err != nil {
		return err
	}
	u, err := c.login(ctx)
	if err != nil {
		return err
	}
	loan, err := c.mgr.Issue(ctx, u.ID, bookID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Loan %d: '%s' checked out to %s, due %s\n",
		loan.ID, loan.BookTitle, u.Username, loan.DueAt.Format("02/01/2006"))
	return nil
}

func (c *console) returnLoan(ctx context.Context) error {
	loanID, err := c.promptID("Loan ID")
	if err != nil {
		return err
	}
	ok, err := c.mgr.ReturnLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(c.out, "Loan %d was already returned\n", loanID)
		return nil
	}
	loan, err := c.mgr.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "'%s' returned\n", loan.BookTitle)

	held, err := c.mgr.ListReservations(ctx, library.ReservationFilter{
		BookID: loan.BookID,
		States: []library.ReservationState{library.ReservationNotified},
	})
	if err != nil {
		return err
	}
	for _, r := range held {
		if holder, err := c.mgr.GetUser(ctx, r.UserID); err == nil {
			fmt.Fprintf(c.out, "Reserved copy is ready for %s until %s\n", holder.Username, r.ExpiresAt.Format("02/01/2006"))
		}
	}
	return nil
}

func (c *console) renew(ctx context.Context) error {
	loanID, err := c.promptID("Loan ID")
	if err != nil {
		return err
	}
	u, err := c.login(ctx)
	if err != nil {
		return err
	}
	loan, err := c.mgr.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if loan.UserID != u.ID && !u.IsAdmin {
		return library.ErrForbidden
	}
	ok, err := c.mgr.Renew(ctx, loanID, 0)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(c.out, "Loan %d cannot be renewed (returned, overdue or no renewals left)\n", loanID)
		return nil
	}
	if loan, err = c.mgr.GetLoan(ctx, loanID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "'%s' renewed until %s (%d of %d renewals used)\n",
		loan.BookTitle, loan.DueAt.Format("02/01/2006"), loan.RenewalCount, loan.MaxRenewals)
	return nil
}

func (c *console) loans(ctx context.Context) error {
	u, err := c.login(ctx)
	if err != nil {
		return err
	}
	loans, err := c.mgr.ActiveLoans(ctx, u.ID)
	if err != nil {
		return err
	}
	if len(loans) == 0 {
		fmt.Fprintln(c.out, "No open loans.")
		return nil
	}
	fmt.Fprintf(c.out, "%-5s %-30s %-12s %-10s %s\n", "ID", "Title", "Due", "State", "Days left")
	fmt.Fprintln(c.out, strings.Repeat("-", 70))
	for _, l := range loans {
		fmt.Fprintf(c.out, "%-5d %-30s %-12s %-10s %d\n",
			l.ID, truncate(l.BookTitle, 30), l.DueAt.Format("02/01/2006"), l.EffectiveState, l.DaysRemaining)
	}
	return nil
}

func (c *console) reserve(ctx context.Context) error {
	bookID, err := c.promptID("Book ID")
	if err != nil {
		return err
	}
	u, err := c.login(ctx)
	if err != nil {
		return err
	}
	r, err := c.mgr.CreateReservation(ctx, u.ID, bookID)
	if err != nil {
		return err
	}
	queue, err := c.mgr.ReservationQueue(ctx, bookID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "'%s' reserved for %s (reservation %d)\n", r.BookTitle, u.Username, r.ID)
	for i, q := range queue {
		if q.ID == r.ID {
			fmt.Fprintf(c.out, "Position in queue: %d\n", i+1)
		}
	}
	return nil
}

func (c *console) listReservations(ctx context.Context) error {
	s, err := c.prompt("Book ID (or press Enter for all books)")
	if err != nil {
		return err
	}
	var f library.ReservationFilter
	if s != "" {
		if f.BookID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return fmt.Errorf("invalid book id: %q", s)
		}
	}
	f.States = []library.ReservationState{library.ReservationPending, library.ReservationNotified}
	list, err := c.mgr.ListReservations(ctx, f)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No active reservations.")
		return nil
	}
	fmt.Fprintf(c.out, "%-5s %-30s %-20s %-10s %s\n", "ID", "Title", "User", "State", "Requested")
	fmt.Fprintln(c.out, strings.Repeat("-", 85))
	for _, r := range list {
		name := strconv.FormatInt(r.UserID, 10)
		if u, err := c.mgr.GetUser(ctx, r.UserID); err == nil {
			name = u.Username
		}
		fmt.Fprintf(c.out, "%-5d %-30s %-20s %-10s %s\n",
			r.ID, truncate(r.BookTitle, 30), truncate(name, 20), r.State, r.RequestedAt.Format("02/01/2006 15:04"))
	}
	return nil
}

func (c *console) cancelReservation(ctx context.Context) error {
	id, err := c.promptID("Reservation ID")
	if err != nil {
		return err
	}
	u, err := c.login(ctx)
	if err != nil {
		return err
	}
	if err := c.mgr.CancelReservation(ctx, library.Actor{UserID: u.ID, IsAdmin: u.IsAdmin}, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Reservation %d cancelled\n", id)
	return nil
}

func (c *console) notifications(ctx context.Context) error {
	u, err := c.login(ctx)
	if err != nil {
		return err
	}
	list, err := c.mgr.ListNotifications(ctx, u.ID, true)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No unread notifications.")
		return nil
	}
	for _, n := range list {
		fmt.Fprintf(c.out, "[%s] %s: %s\n", n.Kind, n.Title, n.Message)
	}
	_, err = c.mgr.MarkAllNotificationsRead(ctx, u.ID)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
