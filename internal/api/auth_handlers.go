package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dailytrack/dailytrack/internal/auth"
	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/model"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse is the public shape of an account, the password hash
// never leaves the server.
func userResponse(user *model.User) fiber.Map {
	return fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	}
}

func (a *API) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration data"})
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration data"})
	}

	user, err := a.storage.CreateUser(c.Context(), model.InsertUser{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: auth.HashPassword(req.Password),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailExists):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email already exists"})
		case errors.Is(err, domain.ErrPhoneExists):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Phone number already exists"})
		default:
			a.logger.Error().Err(err).Msg("Registration failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Registration failed"})
		}
	}

	a.setSessionCookie(c, user.ID)
	return c.JSON(userResponse(user))
}

func (a *API) handleLogin(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid login data"})
	}

	// The login field holds an email or a username, email wins since it
	// is unique.
	user, err := a.storage.GetUserByEmail(c.Context(), req.Username)
	if errors.Is(err, domain.ErrNotFound) {
		user, err = a.storage.GetUserByUsername(c.Context(), req.Username)
	}
	if err != nil || !auth.CheckPassword(req.Password, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid username/email or password"})
	}

	a.setSessionCookie(c, user.ID)
	return c.JSON(userResponse(user))
}

func (a *API) handleLogout(c *fiber.Ctx) error {
	token := c.Cookies(a.sessions.Config().SessionCookie)
	if token != "" {
		a.sessions.Destroy(token)
	}
	c.ClearCookie(a.sessions.Config().SessionCookie)
	return c.JSON(fiber.Map{"success": true})
}

func (a *API) handleCheck(c *fiber.Ctx) error {
	noStore(c)
	_, ok := a.currentUser(c)
	return c.JSON(fiber.Map{"authenticated": ok})
}

func (a *API) handleMe(c *fiber.Ctx) error {
	noStore(c)
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	user, err := a.storage.GetUserByID(c.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		a.logger.Error().Err(err).Msg("Failed to fetch user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch user"})
	}
	return c.JSON(userResponse(user))
}

func (a *API) handleChangePassword(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.NewPassword == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "New password is required"})
	}
	if len(req.NewPassword) < 6 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Password must be at least 6 characters"})
	}

	user, err := a.storage.GetUserByID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update password"})
	}
	if !auth.CheckPassword(req.CurrentPassword, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Current password is incorrect"})
	}

	updated, err := a.storage.UpdatePassword(c.Context(), userID, auth.HashPassword(req.NewPassword))
	if err != nil || !updated {
		a.logger.Error().Err(err).Msg("Failed to update password")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update password"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Password updated successfully"})
}

func (a *API) handleDeleteAccount(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	deleted, err := a.storage.DeleteUser(c.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to delete account")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete account"})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	a.sessions.DestroyUser(userID)
	c.ClearCookie(a.sessions.Config().SessionCookie)
	return c.JSON(fiber.Map{"success": true, "message": "Account deleted successfully"})
}

func (a *API) handleForgotPasswordSendOTP(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email is required"})
	}

	// Do not reveal whether the email is registered.
	neutral := fiber.Map{
		"success": true,
		"message": "If this email is registered, you will receive an OTP",
	}

	_, err := a.storage.GetUserByEmail(c.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(neutral)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send OTP"})
	}

	if err := a.issueOTP(c, req.Email, auth.OTPKindEmail); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send OTP"})
	}
	return c.JSON(neutral)
}

// issueOTP generates, stores and delivers a one-time code.
func (a *API) issueOTP(c *fiber.Ctx, identifier, kind string) error {
	code, err := auth.GenerateOTP()
	if err != nil {
		return err
	}
	expiresAt := nowFunc().Add(a.sessions.Config().OTPExpiry)
	if err := a.storage.StoreOTP(c.Context(), identifier, code, kind, expiresAt); err != nil {
		return err
	}
	return a.sender.Send(identifier, code, kind)
}

func (a *API) handleForgotPasswordVerifyOTP(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	valid, err := a.storage.VerifyOTP(c.Context(), req.Email, req.OTP, auth.OTPKindEmail)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify OTP"})
	}
	if !valid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid or expired OTP"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "OTP verified"})
}

func (a *API) handleForgotPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		OTP      string `json:"otp"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	valid, err := a.storage.VerifyOTP(c.Context(), req.Email, req.OTP, auth.OTPKindEmail)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reset password"})
	}
	if !valid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid or expired OTP"})
	}

	updated, err := a.storage.UpdatePasswordByEmail(c.Context(), req.Email, auth.HashPassword(req.Password))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reset password"})
	}
	if !updated {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	if err := a.storage.DeleteOTP(c.Context(), req.Email, auth.OTPKindEmail); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to delete used OTP")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Password reset successful"})
}

func (a *API) handleMobileLoginSendOTP(c *fiber.Ctx) error {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := c.BodyParser(&req); err != nil || req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Phone number is required"})
	}

	user, err := a.storage.GetUserByPhone(c.Context(), req.Phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Phone number not registered"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send OTP"})
	}
	if user.Email == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "No email address registered for this phone number"})
	}

	if err := a.issueOTP(c, req.Phone, auth.OTPKindPhone); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send OTP"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "OTP sent to your registered email"})
}

func (a *API) handleMobileLoginVerifyOTP(c *fiber.Ctx) error {
	var req struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	valid, err := a.storage.VerifyOTP(c.Context(), req.Phone, req.OTP, auth.OTPKindPhone)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify OTP"})
	}
	if !valid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid or expired OTP"})
	}

	user, err := a.storage.GetUserByPhone(c.Context(), req.Phone)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	if err := a.storage.DeleteOTP(c.Context(), req.Phone, auth.OTPKindPhone); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to delete used OTP")
	}

	a.setSessionCookie(c, user.ID)
	return c.JSON(fiber.Map{
		"success":  true,
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}
