package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dailytrack/dailytrack/internal/classify"
	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/model"
)

func (a *API) handleListTasks(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	tasks, err := a.storage.ListTasks(c.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list tasks")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tasks"})
	}
	return c.JSON(tasks)
}

type taskRequest struct {
	Title     string `json:"title"`
	Company   string `json:"company"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	Completed bool   `json:"completed"`
	AddedDate string `json:"addedDate"`
}

func (a *API) handleCreateTask(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	var req taskRequest
	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid task data"})
	}

	// Reject a second task for the same posting URL.
	if req.URL != "" {
		existing, err := a.storage.ListTasks(c.Context(), userID)
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to list tasks for duplicate check")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create task"})
		}
		urls := make([]string, 0, len(existing))
		for _, t := range existing {
			if t.URL != "" {
				urls = append(urls, t.URL)
			}
		}
		if classify.IsDuplicate(req.URL, urls) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Task with this URL already exists"})
		}
	}

	task, err := a.storage.CreateTask(c.Context(), model.InsertTask{
		UserID:    userID,
		Title:     req.Title,
		Company:   req.Company,
		URL:       req.URL,
		Type:      req.Type,
		Completed: req.Completed,
		AddedDate: req.AddedDate,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to create task")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create task"})
	}

	a.broadcaster.Broadcast("task:created", task)
	return c.JSON(task)
}

func (a *API) handleUpdateTask(c *fiber.Ctx) error {
	if _, err := a.requireUser(c); err != nil {
		return err
	}

	var patch model.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to update task"})
	}

	task, err := a.storage.UpdateTask(c.Context(), c.Params("id"), patch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Task not found"})
		}
		a.logger.Error().Err(err).Msg("Failed to update task")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to update task"})
	}

	a.broadcaster.Broadcast("task:updated", task)
	return c.JSON(task)
}

func (a *API) handleDeleteTask(c *fiber.Ctx) error {
	if _, err := a.requireUser(c); err != nil {
		return err
	}

	id := c.Params("id")
	deleted, err := a.storage.DeleteTask(c.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to delete task")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete task"})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Task not found"})
	}

	a.broadcaster.Broadcast("task:deleted", fiber.Map{"id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
