package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func parseFor(t *testing.T, query string) Pagination {
	t.Helper()

	var got Pagination
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got = ParsePagination(c)
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	_, err := app.Test(req, -1)
	require.NoError(t, err)
	return got
}

func TestParsePagination(t *testing.T) {
	got := parseFor(t, "")
	require.Equal(t, Pagination{Page: 1, Limit: 20, Offset: 0}, got)

	got = parseFor(t, "page=3&limit=10")
	require.Equal(t, Pagination{Page: 3, Limit: 10, Offset: 20}, got)

	got = parseFor(t, "page=-1&limit=0")
	require.Equal(t, Pagination{Page: 1, Limit: 20, Offset: 0}, got)

	got = parseFor(t, "page=abc&limit=xyz")
	require.Equal(t, Pagination{Page: 1, Limit: 20, Offset: 0}, got)
}
