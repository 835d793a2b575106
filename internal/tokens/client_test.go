package tokens

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeTokenService runs an echo server mimicking the vendor token
// microservice and returns a client pointed at it.
func startFakeTokenService(t *testing.T) (*Client, *echo.Echo) {
	t.Helper()

	e := echo.New()
	e.HideBanner = true

	e.PUT("/api/login", func(c echo.Context) error {
		var body map[string]string
		if err := c.Bind(&body); err != nil {
			return err
		}
		if body["username"] != "admin" || body["password"] != "secret" {
			return c.JSON(http.StatusUnauthorized, "bad credentials")
		}
		return c.JSON(http.StatusOK, "admin-token")
	})
	e.POST("/api/Token", func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != "Basic admin-token" {
			return c.JSON(http.StatusUnauthorized, "missing admin token")
		}
		var body map[string]string
		if err := c.Bind(&body); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, "token-for-"+body["username"])
	})
	e.DELETE("/api/Token/:token", func(c echo.Context) error {
		if c.Param("token") == "unknown" {
			return c.JSON(http.StatusNotFound, "no such token")
		}
		return c.JSON(http.StatusOK, true)
	})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client := NewClient(host, port, AdminCredentials{
		Username: "admin",
		Password: "secret",
		Domain:   "Training",
	})
	return client, e
}

func TestLogin(t *testing.T) {
	client, _ := startFakeTokenService(t)

	token, err := client.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token", token)
}

func TestLoginBadCredentials(t *testing.T) {
	client, _ := startFakeTokenService(t)
	client.creds.Password = "wrong"

	_, err := client.Login(context.Background())
	assert.ErrorIs(t, err, ErrTokenRequest)
}

func TestCreateToken(t *testing.T) {
	client, _ := startFakeTokenService(t)
	ctx := context.Background()

	admin, err := client.Login(ctx)
	require.NoError(t, err)

	token, err := client.CreateToken(ctx, admin, "alice@corp.io", "Training")
	require.NoError(t, err)
	assert.Equal(t, "token-for-alice@corp.io", token)
}

func TestDeleteTokenNonFatal(t *testing.T) {
	client, _ := startFakeTokenService(t)
	ctx := context.Background()

	assert.True(t, client.DeleteToken(ctx, "admin-token", "token-for-alice@corp.io"))
	assert.False(t, client.DeleteToken(ctx, "admin-token", "unknown"))
}
