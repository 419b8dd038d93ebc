package api

import (
	"github.com/gofiber/fiber/v2"

	"library-lending/library"
)

const shelfSize = 12

func (s *Server) home(c *fiber.Ctx) error {
	view, err := s.mgr.Home(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) listBooks(c *fiber.Ctx) error {
	var q bookQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	page, err := s.mgr.ListBooks(c.UserContext(), q.filter())
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) searchBooks(c *fiber.Ctx) error {
	var q bookQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	if q.Q == "" {
		return fiber.NewError(fiber.StatusBadRequest, "q is required")
	}
	page, err := s.mgr.SearchBooks(c.UserContext(), q.Q, q.Page, q.PageSize)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) popularBooks(c *fiber.Ctx) error {
	books, err := s.mgr.PopularBooks(c.UserContext(), shelfSize)
	if err != nil {
		return err
	}
	return c.JSON(books)
}

func (s *Server) newBooks(c *fiber.Ctx) error {
	books, err := s.mgr.NewBooks(c.UserContext(), shelfSize)
	if err != nil {
		return err
	}
	return c.JSON(books)
}

func (s *Server) getBook(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	book, err := s.mgr.GetBook(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(book)
}

func (s *Server) createBook(c *fiber.Ctx) error {
	var req bookRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	book, err := s.mgr.CreateBook(c.UserContext(), req.input())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(book)
}

func (s *Server) updateBook(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req bookRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	book, err := s.mgr.UpdateBook(c.UserContext(), id, req.input())
	if err != nil {
		return err
	}
	return c.JSON(book)
}

func (s *Server) deleteBook(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.mgr.DeleteBook(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// adjustInventory sets the physical copy count. Copies on loan are kept out
// of the available count.
func (s *Server) adjustInventory(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req inventoryRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	if err := s.mgr.AdjustTotal(c.UserContext(), id, *req.TotalCopies); err != nil {
		return err
	}
	book, err := s.mgr.GetBook(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(book)
}

func (s *Server) listAuthors(c *fiber.Ctx) error {
	authors, err := s.mgr.ListAuthors(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(authors)
}

func (s *Server) createAuthor(c *fiber.Ctx) error {
	var req authorRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	a, err := s.mgr.CreateAuthor(c.UserContext(), library.Author{
		Name: req.Name, Biography: req.Biography, Nationality: req.Nationality,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (s *Server) updateAuthor(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req authorRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	a, err := s.mgr.UpdateAuthor(c.UserContext(), id, library.Author{
		Name: req.Name, Biography: req.Biography, Nationality: req.Nationality,
	})
	if err != nil {
		return err
	}
	return c.JSON(a)
}

// deleteAuthor refuses while the author still has books in the catalog.
func (s *Server) deleteAuthor(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.mgr.DeleteAuthor(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) authorBooks(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if _, err := s.mgr.GetAuthor(c.UserContext(), id); err != nil {
		return err
	}
	var q bookQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	f := q.filter()
	f.AuthorID = id
	page, err := s.mgr.ListBooks(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) listCategories(c *fiber.Ctx) error {
	cats, err := s.mgr.ListCategories(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(cats)
}

func (s *Server) createCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	cat, err := s.mgr.CreateCategory(c.UserContext(), library.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

func (s *Server) updateCategory(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req categoryRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	cat, err := s.mgr.UpdateCategory(c.UserContext(), id, library.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		return err
	}
	return c.JSON(cat)
}

func (s *Server) deleteCategory(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.mgr.DeleteCategory(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) categoryBooks(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var q bookQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	f := q.filter()
	f.CategoryID = id
	page, err := s.mgr.ListBooks(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) listPublishers(c *fiber.Ctx) error {
	list, err := s.mgr.ListPublishers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) getPublisher(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	p, err := s.mgr.GetPublisher(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) createPublisher(c *fiber.Ctx) error {
	var req publisherRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	p, err := s.mgr.CreatePublisher(c.UserContext(), req.publisher())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (s *Server) updatePublisher(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req publisherRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	p, err := s.mgr.UpdatePublisher(c.UserContext(), id, req.publisher())
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// deletePublisher keeps the publisher's books; they lose the reference.
func (s *Server) deletePublisher(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.mgr.DeletePublisher(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) publisherBooks(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if _, err := s.mgr.GetPublisher(c.UserContext(), id); err != nil {
		return err
	}
	var q bookQuery
	if err := s.bindQuery(c, &q); err != nil {
		return err
	}
	f := q.filter()
	f.PublisherID = id
	page, err := s.mgr.ListBooks(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(page)
}
