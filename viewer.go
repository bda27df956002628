package rankport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// adminTenantName is the SaaS operator's reserved tenant.
const adminTenantName = "admin"

// Role is resolved once from the JWT at the trust boundary; the rest of the
// code never looks at the raw claim string.
type Role int

const (
	RoleNone Role = iota
	RoleAdmin
	RoleOrganizer
	RolePlayer
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleOrganizer:
		return "organizer"
	case RolePlayer:
		return "player"
	}
	return "none"
}

func parseRole(claim string) (Role, error) {
	switch claim {
	case "admin":
		return RoleAdmin, nil
	case "organizer":
		return RoleOrganizer, nil
	case "player":
		return RolePlayer, nil
	}
	return RoleNone, fmt.Errorf("unknown role: %s", claim)
}

// アクセスしてきた人の情報
type Viewer struct {
	role       Role
	playerID   string
	tenantName string
	tenantID   int64
}

// リクエストヘッダをパースしてViewerを返す
func (s *Server) parseViewer(c echo.Context) (*Viewer, error) {
	cookie, err := c.Request().Cookie(s.cfg.CookieName)
	if err != nil {
		return nil, echo.NewHTTPError(
			http.StatusUnauthorized,
			fmt.Sprintf("cookie %s is not found", s.cfg.CookieName),
		)
	}
	tokenStr := cookie.Value

	keysrc, err := os.ReadFile(s.cfg.JWTKeyFile)
	if err != nil {
		return nil, fmt.Errorf("error os.ReadFile: keyFilename=%s: %w", s.cfg.JWTKeyFile, err)
	}
	key, _, err := jwk.DecodePEM(keysrc)
	if err != nil {
		return nil, fmt.Errorf("error jwk.DecodePEM: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenStr),
		jwt.WithKey(jwa.RS256, key),
	)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("error jwt.Parse: %s", err.Error()))
	}
	if token.Subject() == "" {
		return nil, echo.NewHTTPError(
			http.StatusUnauthorized,
			fmt.Sprintf("invalid token: subject is not found in token: %s", tokenStr),
		)
	}

	tr, ok := token.Get("role")
	if !ok {
		return nil, echo.NewHTTPError(
			http.StatusUnauthorized,
			fmt.Sprintf("invalid token: role is not found: %s", tokenStr),
		)
	}
	claim, ok := tr.(string)
	if !ok {
		return nil, echo.NewHTTPError(
			http.StatusUnauthorized,
			fmt.Sprintf("invalid token: invalid role: %s", tokenStr),
		)
	}
	role, err := parseRole(claim)
	if err != nil {
		return nil, echo.NewHTTPError(
			http.StatusUnauthorized,
			fmt.Sprintf("invalid token: invalid role: %s", tokenStr),
		)
	}

	// aud は1要素でテナント名がはいっている
	aud := token.Audience()
	if len(aud) != 1 {
		return nil, echo.NewHTTPError(
			http.StatusUnauthorized,
			fmt.Sprintf("invalid token: aud field is few or too much: %s", tokenStr),
		)
	}
	tenant, err := s.retrieveTenantRowFromHeader(c)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "tenant not found")
		}
		return nil, fmt.Errorf("error retrieveTenantRowFromHeader at parseViewer: %w", err)
	}
	if tenant.Name == adminTenantName && role != RoleAdmin {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "tenant not found")
	}
	if tenant.Name != aud[0] {
		return nil, echo.NewHTTPError(
			http.StatusUnauthorized,
			fmt.Sprintf("invalid token: tenant name is not match with %s: %s", c.Request().Host, tokenStr),
		)
	}

	return &Viewer{
		role:       role,
		playerID:   token.Subject(),
		tenantName: tenant.Name,
		tenantID:   tenant.ID,
	}, nil
}

// Hostヘッダからテナントを検索する
func (s *Server) retrieveTenantRowFromHeader(c echo.Context) (*TenantRow, error) {
	tenantName := strings.TrimSuffix(c.Request().Host, s.cfg.BaseHostname)

	// SaaS管理者用ドメイン
	if tenantName == adminTenantName {
		return &TenantRow{
			Name:        adminTenantName,
			DisplayName: adminTenantName,
		}, nil
	}

	// テナントの存在確認
	var tenant TenantRow
	if err := s.adminDB.GetContext(
		c.Request().Context(),
		&tenant,
		"SELECT * FROM tenant WHERE name = ?",
		tenantName,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error Select tenant: name=%s, %w", tenantName, err)
	}
	return &tenant, nil
}

// 参加者を認可する
// 参加者向けAPIで呼ばれる
func authorizePlayer(ctx context.Context, tenantDB dbOrTx, id string) error {
	player, err := retrievePlayer(ctx, tenantDB, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusUnauthorized, "player not found")
		}
		return fmt.Errorf("error retrievePlayer from viewer: %w", err)
	}
	if player.IsDisqualified {
		return echo.NewHTTPError(http.StatusForbidden, "player is disqualified")
	}
	return nil
}
