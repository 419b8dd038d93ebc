package api

import (
	"github.com/gofiber/fiber/v2"

	"library-lending/library"
)

func (s *Server) createReservation(c *fiber.Ctx) error {
	bookID, err := idParam(c)
	if err != nil {
		return err
	}
	r, err := s.mgr.CreateReservation(c.UserContext(), actorOf(c).UserID, bookID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (s *Server) listReservations(c *fiber.Ctx) error {
	var q reservationQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	f := library.ReservationFilter{UserID: scopeUser(actorOf(c), q.User), BookID: q.Book}
	if q.State != "" {
		f.States = []library.ReservationState{library.ReservationState(q.State)}
	}
	list, err := s.mgr.ListReservations(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) activeReservations(c *fiber.Ctx) error {
	list, err := s.mgr.ActiveReservations(c.UserContext(), actorOf(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) cancelReservation(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.mgr.CancelReservation(c.UserContext(), actorOf(c), id); err != nil {
		return err
	}
	r, err := s.mgr.GetReservation(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(r)
}
