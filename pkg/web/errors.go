package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/quantfold/quantfold/pkg/lifecycle"
)

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleLifecycleError maps coordinator failure kinds to RFC 7807 problem
// documents.
func handleLifecycleError(c fiber.Ctx, err error) error {
	kind := lifecycle.KindOf(err)

	status := fiber.StatusInternalServerError

	switch kind {
	case lifecycle.KindNotFound:
		status = fiber.StatusNotFound
	case lifecycle.KindPermissionDenied:
		status = fiber.StatusForbidden
	case lifecycle.KindUnauthenticated:
		status = fiber.StatusUnauthorized
	case lifecycle.KindFailedPrecondition:
		status = fiber.StatusConflict
	case lifecycle.KindEngineUnavailable, lifecycle.KindVerificationFailed:
		status = fiber.StatusBadGateway
	case lifecycle.KindInternal:
		status = fiber.StatusInternalServerError
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(string(kind)).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
