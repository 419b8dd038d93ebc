package api

import (
	"github.com/gofiber/fiber/v2"

	"library-lending/library"
)

type profileResponse struct {
	User    *library.User    `json:"user"`
	Profile *library.Profile `json:"profile"`
}

func (s *Server) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	u, err := s.mgr.CreateUser(c.UserContext(), library.NewUser{
		Username:        req.Username,
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(c.UserContext(), "user registered", "user_id", u.ID, "request_id", requestID(c))
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (s *Server) profileOf(c *fiber.Ctx, userID int64) (*profileResponse, error) {
	u, err := s.mgr.GetUser(c.UserContext(), userID)
	if err != nil {
		return nil, err
	}
	p, err := s.mgr.GetProfile(c.UserContext(), userID)
	if err != nil {
		return nil, err
	}
	return &profileResponse{User: u, Profile: p}, nil
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	resp, err := s.profileOf(c, actorOf(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	var req contactRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	userID := actorOf(c).UserID
	if _, err := s.mgr.UpdateContact(c.UserContext(), userID, library.ContactUpdate{
		Phone: req.Phone, Address: req.Address, CardNumber: req.CardNumber,
	}); err != nil {
		return err
	}
	resp, err := s.profileOf(c, userID)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) profileStats(c *fiber.Ctx) error {
	st, err := s.mgr.UserStats(c.UserContext(), actorOf(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *Server) updateUserPolicy(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req policyRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	p, err := s.mgr.UpdatePolicy(c.UserContext(), id, library.PolicyUpdate{
		Active:                req.Active,
		MaxConcurrentLoans:    req.MaxConcurrentLoans,
		DefaultLoanPeriodDays: req.DefaultLoanPeriodDays,
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(c.UserContext(), "lending policy updated",
		"user_id", id, "by", actorOf(c).UserID, "request_id", requestID(c))
	return c.JSON(p)
}
