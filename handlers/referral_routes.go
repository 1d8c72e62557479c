// handlers/referral_routes.go
package handlers

import (
	"errors"
	"log"

	"tap-referral-system/middleware"
	"tap-referral-system/services"

	"github.com/gofiber/fiber/v2"
)

// reasonStatus maps the stable rejection reasons to HTTP statuses so the
// calling layer never has to re-derive ledger logic.
var reasonStatus = []struct {
	err    error
	status int
}{
	{services.ErrMalformedCode, fiber.StatusBadRequest},
	{services.ErrSelfReferral, fiber.StatusBadRequest},
	{services.ErrCycleDetected, fiber.StatusBadRequest},
	{services.ErrInvalidAmount, fiber.StatusBadRequest},
	{services.ErrDailyAlreadyClaimed, fiber.StatusBadRequest},
	{services.ErrCodeNotFound, fiber.StatusNotFound},
	{services.ErrParticipantNotFound, fiber.StatusNotFound},
	{services.ErrAlreadyBound, fiber.StatusConflict},
	{services.ErrCodeGenerationExhausted, fiber.StatusServiceUnavailable},
	{services.ErrTransactionAborted, fiber.StatusServiceUnavailable},
}

func rejectOrFail(c *fiber.Ctx, err error, fallback string) error {
	for _, m := range reasonStatus {
		if errors.Is(err, m.err) {
			return c.Status(m.status).JSON(fiber.Map{
				"error":  fallback,
				"reason": m.err.Error(),
			})
		}
	}
	log.Printf("[HTTP] %s: %v", fallback, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
}

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService, pointsService *services.PointsService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/referral/code", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		username, _ := c.Locals("username").(string)

		if _, err := referralService.EnsureParticipant(userID, username); err != nil {
			return rejectOrFail(c, err, "failed to resolve participant")
		}

		grant, err := referralService.RequestOrGenerateCode(userID)
		if err != nil {
			return rejectOrFail(c, err, "failed to generate referral code")
		}
		return c.JSON(grant)
	})

	secured.Post("/referral/apply", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			ReferralCode string `json:"referral_code"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		if err := referralService.ApplyReferralCode(userID, req.ReferralCode); err != nil {
			return rejectOrFail(c, err, "failed to apply referral code")
		}
		return c.JSON(fiber.Map{"message": "referral code applied successfully"})
	})

	secured.Get("/referral/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		stats, err := referralService.GetReferralStats(userID)
		if err != nil {
			return rejectOrFail(c, err, "failed to get referral stats")
		}
		return c.JSON(stats)
	})

	secured.Get("/referral/rewards", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		rewards, err := referralService.GetIncomingRewards(userID)
		if err != nil {
			return rejectOrFail(c, err, "failed to get referral rewards")
		}
		return c.JSON(rewards)
	})

	secured.Post("/tap", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		result, err := pointsService.RecordTap(userID)
		if err != nil {
			return rejectOrFail(c, err, "tap failed")
		}
		return c.JSON(result)
	})

	secured.Post("/daily/claim", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		result, err := pointsService.ClaimDailyBonus(userID)
		if err != nil {
			return rejectOrFail(c, err, "daily claim failed")
		}
		return c.JSON(result)
	})

	// Service-to-service ingest for point gains produced elsewhere.
	// Accepted means queued: distribution happens in the background and
	// never blocks the triggering request.
	app.Post("/events/points", func(c *fiber.Ctx) error {
		var req struct {
			ExternalUserID string `json:"external_user_id"`
			Amount         int64  `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		if err := pointsService.OnPointsEarned(req.ExternalUserID, req.Amount); err != nil {
			return rejectOrFail(c, err, "failed to queue point event")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "queued"})
	})
}
