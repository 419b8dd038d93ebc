package api

import (
	"github.com/gofiber/fiber/v2"

	"library-lending/library"
)

// scopeUser limits a listing to the caller unless the caller is staff, who
// may look at any user (0 meaning everyone).
func scopeUser(a library.Actor, requested int64) int64 {
	if a.IsAdmin {
		return requested
	}
	return a.UserID
}

func (s *Server) issueLoan(c *fiber.Ctx) error {
	bookID, err := idParam(c)
	if err != nil {
		return err
	}
	var req loanRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	actor := actorOf(c)
	userID := actor.UserID
	if req.UserID != 0 && req.UserID != actor.UserID {
		if !actor.IsAdmin {
			return library.ErrForbidden
		}
		userID = req.UserID
	}

	loan, err := s.mgr.Issue(c.UserContext(), userID, bookID)
	if err != nil {
		return err
	}
	view, err := s.mgr.GetLoan(c.UserContext(), loan.ID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (s *Server) listLoans(c *fiber.Ctx) error {
	var q loanQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	f := library.LoanFilter{UserID: scopeUser(actorOf(c), q.User), BookID: q.Book}
	if q.State != "" {
		f.States = []library.LoanState{library.LoanState(q.State)}
	}
	loans, err := s.mgr.ListLoans(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(loans)
}

func (s *Server) activeLoans(c *fiber.Ctx) error {
	loans, err := s.mgr.ActiveLoans(c.UserContext(), actorOf(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(loans)
}

func (s *Server) loanHistory(c *fiber.Ctx) error {
	loans, err := s.mgr.LoanHistory(c.UserContext(), actorOf(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(loans)
}

// ownLoan loads a loan the caller is allowed to see.
func (s *Server) ownLoan(c *fiber.Ctx) (*library.LoanView, error) {
	id, err := idParam(c)
	if err != nil {
		return nil, err
	}
	view, err := s.mgr.GetLoan(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if a := actorOf(c); !a.IsAdmin && a.UserID != view.UserID {
		return nil, library.ErrForbidden
	}
	return view, nil
}

func (s *Server) getLoan(c *fiber.Ctx) error {
	view, err := s.ownLoan(c)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) renewLoan(c *fiber.Ctx) error {
	view, err := s.ownLoan(c)
	if err != nil {
		return err
	}
	var req renewRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	ok, err := s.mgr.Renew(c.UserContext(), view.ID, req.Days)
	if err != nil {
		return err
	}
	if !ok {
		return errNotRenewable
	}
	if view, err = s.mgr.GetLoan(c.UserContext(), view.ID); err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) returnLoan(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ok, err := s.mgr.ReturnLoan(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !ok {
		return errNotReturned
	}
	view, err := s.mgr.GetLoan(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(view)
}
