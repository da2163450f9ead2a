package server

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// ZstdMiddleware decodes zstd request bodies and zstd-encodes responses for
// clients that accept it. Requests for which skip returns true pass through
// untouched; streaming routes must be skipped since their body is not
// buffered.
func ZstdMiddleware(skip func(c *fiber.Ctx) bool) fiber.Handler {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create zstd encoder")
	}

	return func(c *fiber.Ctx) error {
		if skip != nil && skip(c) {
			return c.Next()
		}

		if strings.EqualFold(c.Get(fiber.HeaderContentEncoding), "zstd") {
			if body := c.Request().Body(); len(body) > 0 {
				decoder, err := zstd.NewReader(bytes.NewReader(body))
				if err != nil {
					log.Err(err).Msg("Failed to create zstd decoder")
					return c.Status(fiber.StatusBadRequest).JSON(
						createResponse(map[string]any{}, fmt.Errorf("failed to decompress zstd data: %w", err)))
				}
				defer decoder.Close()

				decompressed, err := io.ReadAll(decoder)
				if err != nil {
					log.Err(err).Msg("Failed to decompress request")
					return c.Status(fiber.StatusBadRequest).JSON(
						createResponse(map[string]any{}, fmt.Errorf("failed to decompress zstd data: %w", err)))
				}

				c.Request().SetBody(decompressed)
				c.Request().Header.Del(fiber.HeaderContentEncoding)
				log.Trace().Int("size", len(decompressed)).Msg("Request body decompressed")
			}
		}

		if err := c.Next(); err != nil {
			return err
		}

		if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderAcceptEncoding)), "zstd") {
			return nil
		}
		responseBody := c.Response().Body()
		if len(responseBody) == 0 {
			return nil
		}

		compressed := encoder.EncodeAll(responseBody, nil)
		c.Response().SetBody(compressed)
		c.Set(fiber.HeaderContentEncoding, "zstd")
		c.Set(fiber.HeaderContentLength, fmt.Sprintf("%d", len(compressed)))

		log.Trace().
			Int("original_size", len(responseBody)).
			Int("compressed_size", len(compressed)).
			Msg("Response body compressed")
		return nil
	}
}

// isStreamRoute matches the server-sent event endpoints.
func isStreamRoute(c *fiber.Ctx) bool {
	return strings.HasSuffix(c.Path(), "/stream")
}

func isUncompressedRoute(whitelisted []string) func(c *fiber.Ctx) bool {
	return func(c *fiber.Ctx) bool {
		if isStreamRoute(c) {
			return true
		}
		path := c.Path()
		for _, route := range whitelisted {
			if path == route {
				return true
			}
		}
		return false
	}
}
