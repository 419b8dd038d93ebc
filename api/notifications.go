package api

import "github.com/gofiber/fiber/v2"

func (s *Server) listNotifications(c *fiber.Ctx) error {
	list, err := s.mgr.ListNotifications(c.UserContext(), actorOf(c).UserID, false)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) unreadNotifications(c *fiber.Ctx) error {
	list, err := s.mgr.ListNotifications(c.UserContext(), actorOf(c).UserID, true)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.mgr.MarkNotificationRead(c.UserContext(), actorOf(c).UserID, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) markAllRead(c *fiber.Ctx) error {
	n, err := s.mgr.MarkAllNotificationsRead(c.UserContext(), actorOf(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": n})
}
