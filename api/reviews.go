package api

import "github.com/gofiber/fiber/v2"

func (s *Server) listReviews(c *fiber.Ctx) error {
	var q reviewQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	list, err := s.mgr.ListReviews(c.UserContext(), q.Book, q.User)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) createReview(c *fiber.Ctx) error {
	var req reviewRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	r, err := s.mgr.CreateReview(c.UserContext(), actorOf(c).UserID, req.BookID, req.Rating, req.Comment)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (s *Server) updateReview(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req reviewUpdateRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	r, err := s.mgr.UpdateReview(c.UserContext(), actorOf(c), id, req.Rating, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) deleteReview(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.mgr.DeleteReview(c.UserContext(), actorOf(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
