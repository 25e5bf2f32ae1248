package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/model"
)

func (a *API) handleListNotes(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	notes, err := a.storage.ListNotes(c.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list notes")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch notes"})
	}
	return c.JSON(notes)
}

func (a *API) handleCreateNote(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Color   string `json:"color"`
	}
	if err := c.BodyParser(&req); err != nil || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid note data"})
	}

	note, err := a.storage.CreateNote(c.Context(), model.InsertNote{
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
		Color:   req.Color,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to create note")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create note"})
	}

	a.broadcaster.Broadcast("note:created", note)
	return c.JSON(note)
}

func (a *API) handleUpdateNote(c *fiber.Ctx) error {
	if _, err := a.requireUser(c); err != nil {
		return err
	}

	var patch model.NotePatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid note data"})
	}

	note, err := a.storage.UpdateNote(c.Context(), c.Params("id"), patch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Note not found"})
		}
		a.logger.Error().Err(err).Msg("Failed to update note")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid note data"})
	}

	a.broadcaster.Broadcast("note:updated", note)
	return c.JSON(note)
}

func (a *API) handleDeleteNote(c *fiber.Ctx) error {
	if _, err := a.requireUser(c); err != nil {
		return err
	}

	id := c.Params("id")
	deleted, err := a.storage.DeleteNote(c.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to delete note")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete note"})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Note not found"})
	}

	a.broadcaster.Broadcast("note:deleted", fiber.Map{"id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
