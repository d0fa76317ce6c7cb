package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"speakerscribe/utils"
)

// WebhookSecretHeader carries the shared secret of notification deliveries.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects requests whose X-Webhook-Secret header does not
// match secret. An empty secret disables the check.
func WebhookSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		got := c.Get(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "Invalid webhook secret")
		}
		return c.Next()
	}
}
